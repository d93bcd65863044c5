package s3blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avencia/agentmarket/internal/domain"
)

type fakeWriter struct {
	paths        []string
	contentTypes []string
	bodies       [][]byte
}

func (w *fakeWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.paths = append(w.paths, path)
	w.contentTypes = append(w.contentTypes, contentType)
	w.bodies = append(w.bodies, body)
	return nil
}

type fakeDecisionStore struct {
	recs []domain.DecisionRecord
}

func (s *fakeDecisionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.DecisionRecord, error) {
	var out []domain.DecisionRecord
	for _, r := range s.recs {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeAuditStore struct {
	events  []string
	entries []domain.AuditEntry
}

func (s *fakeAuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditStore) ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestArchiveDecisions(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	decisions := &fakeDecisionStore{recs: []domain.DecisionRecord{
		{ID: "old-1", AgentID: "a1", CreatedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "old-2", AgentID: "a2", CreatedAt: cutoff.Add(-24 * time.Hour)},
		{ID: "new-1", AgentID: "a3", CreatedAt: cutoff.Add(time.Hour)},
	}}
	writer := &fakeWriter{}
	audit := &fakeAuditStore{}
	arch := NewArchiver(writer, decisions, audit)

	count, err := arch.ArchiveDecisions(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.Len(t, writer.paths, 1)
	assert.Equal(t, "archive/decisions/2026-08.jsonl", writer.paths[0])
	assert.Equal(t, "application/x-ndjson", writer.contentTypes[0])

	lines := strings.Split(strings.TrimSpace(string(writer.bodies[0])), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"old-1"`)
	assert.Contains(t, lines[1], `"old-2"`)

	assert.Equal(t, []string{"archive.decisions"}, audit.events)
}

func TestArchiveDecisionsEmptySkipsUpload(t *testing.T) {
	writer := &fakeWriter{}
	audit := &fakeAuditStore{}
	arch := NewArchiver(writer, &fakeDecisionStore{}, audit)

	count, err := arch.ArchiveDecisions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.paths)
	assert.Empty(t, audit.events)
}

func TestArchiveAuditLog(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	audit := &fakeAuditStore{entries: []domain.AuditEntry{
		{ID: 1, Event: "listing_opened", CreatedAt: cutoff.Add(-time.Hour)},
	}}
	writer := &fakeWriter{}
	arch := NewArchiver(writer, &fakeDecisionStore{}, audit)

	count, err := arch.ArchiveAuditLog(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.Len(t, writer.paths, 1)
	assert.Equal(t, "archive/audit_log/2026-08.jsonl", writer.paths[0])
	assert.True(t, bytes.Contains(writer.bodies[0], []byte("listing_opened")))
	assert.Equal(t, []string{"archive.audit_log"}, audit.events)
}
