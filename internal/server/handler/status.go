package handler

import (
	"net/http"
	"time"
)

// QueueDepther reports the number of pairs waiting in the matching queue.
type QueueDepther interface {
	QueueDepth() int
}

// StatusHandler serves the backend status (mode, uptime, queue depth) for
// dashboards.
type StatusHandler struct {
	Mode    string
	Ledger  string
	Started time.Time
	Queue   QueueDepther // optional
}

// NewStatusHandler creates a StatusHandler. queue may be nil in modes that do
// not run the matching engine.
func NewStatusHandler(mode, ledgerBackend string, queue QueueDepther) *StatusHandler {
	return &StatusHandler{
		Mode:    mode,
		Ledger:  ledgerBackend,
		Started: time.Now().UTC(),
		Queue:   queue,
	}
}

// GetStatus responds with the current backend mode, ledger backend, uptime,
// and matching queue depth.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.Mode,
		"ledger_backend": h.Ledger,
		"uptime_seconds": int64(time.Since(h.Started).Seconds()),
	}
	if h.Queue != nil {
		resp["queue_depth"] = h.Queue.QueueDepth()
	}
	writeJSON(w, http.StatusOK, resp)
}
