package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Otaku-Wars/clashcore/internal/domain"
	"github.com/Otaku-Wars/clashcore/internal/platform/arena"
	"github.com/Otaku-Wars/clashcore/internal/reconcile"
)

// ActivityHandler serves the recent activity stream. Live events come from the
// reconciler's in-memory buffer; when an archive store is configured, filtered
// history queries fall through to it.
type ActivityHandler struct {
	rec    *reconcile.Reconciler
	store  domain.ActivityStore
	logger *slog.Logger
}

// NewActivityHandler creates an ActivityHandler. store may be nil when the
// archive is not configured.
func NewActivityHandler(rec *reconcile.Reconciler, store domain.ActivityStore, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{
		rec:    rec,
		store:  store,
		logger: logHandler(logger, "activity"),
	}
}

// List returns recent activity events, newest first.
// GET /api/activity?limit=N&character=ID
func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)

	var subject uint64
	if v := r.URL.Query().Get("character"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid character id")
			return
		}
		subject = id
	}

	if subject != 0 && h.store != nil {
		h.listFromStore(w, r, subject, limit)
		return
	}

	events := h.rec.Activity(limit)
	out := make([]json.RawMessage, 0, len(events))
	for _, ev := range events {
		if subject != 0 && ev.Subject() != subject {
			continue
		}
		raw, err := arena.EncodeActivityEvent(ev)
		if err != nil {
			h.logger.Warn("skipping unencodable event",
				slog.String("kind", string(ev.Kind())),
			)
			continue
		}
		out = append(out, raw)
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

// listFromStore serves a per-character history query from the durable archive,
// which reaches further back than the in-memory buffer.
func (h *ActivityHandler) listFromStore(w http.ResponseWriter, r *http.Request, subject uint64, limit int) {
	records, err := h.store.ListBySubject(r.Context(), subject, limit)
	if err != nil {
		h.logger.Error("archive query failed",
			slog.Uint64("character_id", subject),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}

	out := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		out = append(out, json.RawMessage(rec.Payload))
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
