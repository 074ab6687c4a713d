package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/indexer"
	"github.com/TylerDurden17/support-agent/internal/lifecycle"
	"github.com/TylerDurden17/support-agent/internal/models"
	"github.com/TylerDurden17/support-agent/internal/retriever"
	"github.com/TylerDurden17/support-agent/internal/vector"
)

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Normalize(s.retrieval.DefaultK, s.retrieval.MaxK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	minScore := s.retrieval.MinScoreOrDefault()
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	s.logger.Debug("retrieve request", zap.String("query", req.Query), zap.Int("k", req.K))

	start := time.Now()
	result, err := s.kb.Retrieve(r.Context(), req.Query, req.K)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("retrieve failed", zap.Error(err))
		}
		s.respondError(w, status, err.Error())
		return
	}
	hits := result.Hits
	if hits == nil {
		hits = []models.Hit{}
	}
	s.respondJSON(w, http.StatusOK, models.RetrieveResponse{
		Query:     req.Query,
		K:         req.K,
		Hits:      hits,
		Relevant:  len(result.Relevant(minScore)),
		MinScore:  minScore,
		Sources:   result.Sources(),
		QueryTime: time.Since(start).Milliseconds(),
	})
}

type warningBody struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type rebuildResponse struct {
	BuildID   string        `json:"build_id"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Embedded  int           `json:"embedded"`
	Warnings  []warningBody `json:"warnings"`
	TookMs    int64         `json:"took_ms"`
}

func newRebuildResponse(report *indexer.Report) rebuildResponse {
	resp := rebuildResponse{
		BuildID:   report.BuildID,
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Embedded:  report.Embedded,
		Warnings:  make([]warningBody, 0, len(report.Warnings)),
		TookMs:    report.Took.Milliseconds(),
	}
	for _, w := range report.Warnings {
		resp.Warnings = append(resp.Warnings, warningBody{Path: w.Path, Error: w.Err.Error()})
	}
	return resp
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("rebuild requested")
	// A client that disconnects does not abort the rebuild.
	report, err := s.kb.Rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		s.logger.Error("rebuild failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, newRebuildResponse(report))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.kb.Status(r.Context()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps retrieval and lifecycle errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, retriever.ErrInvalidQuery), errors.Is(err, vector.ErrInvalidK):
		return http.StatusBadRequest
	case errors.Is(err, vector.ErrEmptyStore):
		return http.StatusConflict
	case errors.Is(err, retriever.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, lifecycle.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
