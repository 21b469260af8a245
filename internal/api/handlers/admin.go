package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/zkorenberg/tboard/internal/board"
	"github.com/zkorenberg/tboard/internal/logger"
	"github.com/zkorenberg/tboard/internal/remote"
)

// AdminHandler handles the board's admin API: queue/history introspection
// and board shutdown.
type AdminHandler struct {
	brd    *board.Board
	ledger *remote.LeakedLedger
}

// NewAdminHandler creates a new admin handler. ledger may be nil if the
// board is not wired to a remote transport.
func NewAdminHandler(brd *board.Board, ledger *remote.LeakedLedger) *AdminHandler {
	return &AdminHandler{brd: brd, ledger: ledger}
}

// GetQueues handles GET /admin/queues.
func (h *AdminHandler) GetQueues(w http.ResponseWriter, r *http.Request) {
	primary, secondary := h.brd.QueueDepths()

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"primary_depth":    primary,
		"secondary_depths": secondary,
	})
}

// GetHistory handles GET /history, returning the execution-history table
// as JSON (spec.md §6 history_print's text format is served separately by
// GetHistoryText).
func (h *AdminHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": h.brd.History(),
	})
}

// GetHistoryText handles GET /history?format=text, rendering the spec.md
// §6 history_print text table.
func (h *AdminHandler) GetHistoryText(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.brd.WriteHistoryText(&buf); err != nil {
		logger.Error().Err(err).Msg("failed to render history")
		h.respondError(w, http.StatusInternalServerError, "failed to render history")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// Kill handles POST /admin/kill, force-terminating the board (spec.md
// §4.8 board_kill): in-flight tasks are abandoned, not drained.
func (h *AdminHandler) Kill(w http.ResponseWriter, r *http.Request) {
	killed := h.brd.Kill()

	logger.Info().Bool("killed", killed).Msg("board kill requested via admin API")

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"killed": killed,
	})
}

// ListLeaked handles GET /admin/leaked, listing remote-task envelopes
// abandoned at the most recent board shutdown (spec.md §9).
func (h *AdminHandler) ListLeaked(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		h.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": []remote.LeakedEntry{}})
		return
	}

	entries, err := h.ledger.List(r.Context(), 100)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list leaked envelopes")
		h.respondError(w, http.StatusInternalServerError, "failed to list leaked envelopes")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// HealthCheck handles GET /admin/health.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
	})
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
