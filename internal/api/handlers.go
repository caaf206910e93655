package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/grabby/grabbyd/internal/event"
	"github.com/grabby/grabbyd/internal/queue"
	"github.com/grabby/grabbyd/internal/rules"
)

// addRequest is the body of POST /api/queue and /api/queue/playlist.
type addRequest struct {
	URL      string        `json:"url"`
	Priority string        `json:"priority,omitempty"`
	Options  queue.Options `json:"options,omitempty"`
	// BandwidthLimit reserves bytes/sec for this item; zero uses the
	// default quantum.
	BandwidthLimit int64 `json:"bandwidth_limit,omitempty"`
	// SkipDuplicates defaults to true.
	SkipDuplicates *bool `json:"skip_duplicates,omitempty"`
}

func (s *Server) decodeAdd(w http.ResponseWriter, r *http.Request) (addRequest, bool) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return req, false
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return req, false
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be http or https")
		return req, false
	}
	return req, true
}

func (s *Server) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAdd(w, r)
	if !ok {
		return
	}
	skip := true
	if req.SkipDuplicates != nil {
		skip = *req.SkipDuplicates
	}

	id, err := s.sched.Add(r.Context(), req.URL, queue.ParsePriority(req.Priority), req.Options, skip)
	if errors.Is(err, queue.ErrDuplicate) {
		writeError(w, http.StatusConflict, "duplicate url")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.BandwidthLimit > 0 {
		_ = s.sched.SetBandwidthLimit(r.Context(), id, req.BandwidthLimit)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handlePlaylistAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAdd(w, r)
	if !ok {
		return
	}

	ids, err := s.sched.AddPlaylist(r.Context(), req.URL, queue.ParsePriority(req.Priority), req.Options)
	if errors.Is(err, queue.ErrDuplicate) {
		writeError(w, http.StatusConflict, "duplicate url")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": s.sched.Status()}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := queue.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status "+raw)
			return
		}
		resp["items"] = s.sched.ItemsByStatus(status)
	} else {
		items := make([]queue.Item, 0)
		for _, st := range queue.AllStatuses {
			items = append(items, s.sched.ItemsByStatus(st)...)
		}
		resp["items"] = items
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleItemGet(w http.ResponseWriter, r *http.Request) {
	it, ok := s.sched.Item(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown item")
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleItemCancel(w http.ResponseWriter, r *http.Request) {
	s.mutateItem(w, r, s.sched.Cancel)
}

func (s *Server) handleItemPause(w http.ResponseWriter, r *http.Request) {
	s.mutateItem(w, r, s.sched.Pause)
}

func (s *Server) handleItemResume(w http.ResponseWriter, r *http.Request) {
	s.mutateItem(w, r, s.sched.Resume)
}

func (s *Server) mutateItem(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	err := op(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, "unknown item")
	case errors.Is(err, queue.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	n := s.sched.PurgeCompleted(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events := s.bus.History().Query(event.Type(q.Get("type")), q.Get("source"), limit)
	if events == nil {
		events = []event.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEngines(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"engines": s.engines.Engines()})
}

func (s *Server) handleRulesGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"rules":      s.rules.List(),
		"statistics": s.rules.Statistics(),
	})
}

func (s *Server) handleRulesPut(w http.ResponseWriter, r *http.Request) {
	var next []rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := s.rules.Replace(next); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.rulesPath != "" {
		if err := rules.SaveFile(s.rulesPath, s.rules.List()); err != nil {
			s.logger.Warn().Err(err).Msg("could not persist rules")
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(next)})
}
