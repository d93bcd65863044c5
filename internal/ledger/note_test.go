package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteRoundTrip(t *testing.T) {
	note, err := EncodeNote(Message{Type: MessageBuy, Body: "vintage camera", Ref: "tx-123"})
	require.NoError(t, err)

	m := DecodeNote(note)
	require.NotNil(t, m)
	assert.Equal(t, MessageBuy, m.Type)
	assert.Equal(t, "vintage camera", m.Body)
	assert.Equal(t, "tx-123", m.Ref)
}

func TestDecodeNoteKeywordFallback(t *testing.T) {
	m := DecodeNote([]byte("please buy this for me"))
	require.NotNil(t, m)
	assert.Equal(t, MessageBuy, m.Type)
	assert.Equal(t, "please buy this for me", m.Body)

	m = DecodeNote([]byte("QUERY: is this still available?"))
	require.NotNil(t, m)
	assert.Equal(t, MessageQuery, m.Type)
}

func TestDecodeNoteUnrecognized(t *testing.T) {
	assert.Nil(t, DecodeNote(nil))
	assert.Nil(t, DecodeNote([]byte("hello there")))
	assert.Nil(t, DecodeNote([]byte(`{"type":"UNKNOWN"}`)))
}
