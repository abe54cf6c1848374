package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-monitor/internal/model"
)

const maxCommentLength = 4000

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	accession := chi.URLParam(r, "accession")
	if !model.ValidAccession(accession) {
		writeError(w, http.StatusBadRequest, "malformed accession number")
		return
	}

	var body struct {
		Sentiment model.VoteSentiment `json:"sentiment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidSentiment(body.Sentiment) {
		writeError(w, http.StatusBadRequest, "sentiment must be bullish, neutral, or bearish")
		return
	}

	counts, err := s.store.RecordVote(r.Context(), accession, callerClaims(r).UserID, body.Sentiment)
	if err != nil {
		zap.L().Error("record vote failed", zap.String("accession", accession), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "vote failed")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	accession := chi.URLParam(r, "accession")
	if !model.ValidAccession(accession) {
		writeError(w, http.StatusBadRequest, "malformed accession number")
		return
	}

	comments, err := s.store.ListComments(r.Context(), accession, 50)
	if err != nil {
		zap.L().Error("list comments failed", zap.String("accession", accession), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"comments": comments,
		"count":    len(comments),
	})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	accession := chi.URLParam(r, "accession")
	if !model.ValidAccession(accession) {
		writeError(w, http.StatusBadRequest, "malformed accession number")
		return
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	body.Body = strings.TrimSpace(body.Body)
	if body.Body == "" {
		writeError(w, http.StatusBadRequest, "comment body is required")
		return
	}
	if len(body.Body) > maxCommentLength {
		writeError(w, http.StatusBadRequest, "comment too long")
		return
	}

	comment, err := s.store.AddComment(r.Context(), accession, callerClaims(r).UserID, body.Body)
	if err != nil {
		zap.L().Error("add comment failed", zap.String("accession", accession), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "comment failed")
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleListWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListWatchlist(r.Context(), callerClaims(r).UserID)
	if err != nil {
		zap.L().Error("list watchlist failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"watchlist": entries,
		"count":     len(entries),
	})
}

func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Ticker string `json:"ticker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ticker := strings.ToUpper(strings.TrimSpace(body.Ticker))
	if ticker == "" || len(ticker) > 10 {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	if err := s.store.AddWatch(r.Context(), callerClaims(r).UserID, ticker); err != nil {
		zap.L().Error("add watch failed", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "watchlist update failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ticker": ticker})
}

func (s *Server) handleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	if err := s.store.RemoveWatch(r.Context(), callerClaims(r).UserID, ticker); err != nil {
		zap.L().Error("remove watch failed", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "watchlist update failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
