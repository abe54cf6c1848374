package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
	"github.com/sells-group/edgar-monitor/internal/store"
)

const maxPageSize = 100

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		zap.L().Error("stats query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}

	resp := map[string]any{"pipeline": stats}
	if s.sched != nil {
		resp["scheduler"] = s.sched.Stats()
	}
	if s.opts.Breakers != nil {
		states := make(map[string]string)
		for name, state := range s.opts.Breakers.States() {
			states[name] = state.String()
		}
		resp["breakers"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFilings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FilingFilter{
		Status:   model.StatusCompleted,
		FormType: model.FormType(q.Get("form_type")),
		Ticker:   q.Get("ticker"),
		Limit:    parseIntParam(q.Get("limit"), 50),
		Offset:   parseIntParam(q.Get("offset"), 0),
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}

	filings, err := s.store.ListFilings(r.Context(), filter)
	if err != nil {
		zap.L().Error("list filings failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"filings": filings,
		"count":   len(filings),
	})
}

func (s *Server) handleGetFiling(w http.ResponseWriter, r *http.Request) {
	accession := chi.URLParam(r, "accession")
	if !model.ValidAccession(accession) {
		writeError(w, http.StatusBadRequest, "malformed accession number")
		return
	}

	caller := callerClaims(r)
	if caller.Tier == model.TierFree {
		allowed, err := s.checkViewQuota(r, caller.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "view quota check failed")
			return
		}
		if !allowed {
			writeError(w, http.StatusForbidden, "daily view limit reached, upgrade for unlimited access")
			return
		}
	}

	filing, err := s.store.GetFiling(r.Context(), accession)
	if err != nil {
		zap.L().Error("get filing failed", zap.String("accession", accession), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if filing == nil {
		writeError(w, http.StatusNotFound, "filing not found")
		return
	}

	if caller.Tier == model.TierFree {
		if err := s.store.RecordView(r.Context(), caller.UserID, accession); err != nil {
			zap.L().Warn("record view failed", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, filing)
}

// checkViewQuota counts the caller's detail views since midnight UTC.
func (s *Server) checkViewQuota(r *http.Request, userID string) (bool, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	views, err := s.store.CountViewsSince(r.Context(), userID, dayStart)
	if err != nil {
		return false, err
	}
	return views < s.opts.FreeDailyViews, nil
}

func (s *Server) handleTriggerScan(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	triggered := s.sched.TriggerNow()
	if !triggered {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"triggered": false,
			"reason":    "scan already pending",
		})
		return
	}
	zap.L().Info("scan triggered via api", zap.String("user", callerClaims(r).UserID))
	writeJSON(w, http.StatusAccepted, map[string]any{"triggered": true})
}

func parseIntParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
