package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// EvaluateRequest is the body of POST /api/evaluate
type EvaluateRequest struct {
	StrategyID    string `json:"strategy_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	AsOf          string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to now
}

// EvaluateResponse is the result of one evaluation run
type EvaluateResponse struct {
	CorrelationID string            `json:"correlation_id"`
	StrategyID    string            `json:"strategy_id"`
	TargetWeights map[string]string `json:"target_weights"`
	Fallback      bool              `json:"fallback"`
	Success       bool              `json:"success"`
	Error         string            `json:"error,omitempty"`
	Trace         interface{}       `json:"trace"`
}

// handleHealth handles health check requests. Each database gets a ping
// and integrity check; any failure degrades the overall status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	databases := make(map[string]string, len(s.databases))
	for _, db := range s.databases {
		if err := db.HealthCheck(ctx); err != nil {
			s.log.Error().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			databases[db.Name()] = err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		databases[db.Name()] = "ok"
	}

	response := map[string]interface{}{
		"status":    status,
		"version":   "1.0.0",
		"service":   "alchemiser",
		"databases": databases,
	}

	s.writeJSON(w, httpStatus, response)
}

// handleEvaluate runs a strategy evaluation.
// POST /api/evaluate
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		parsed, err := time.Parse("2006-01-02", req.AsOf)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid as_of date, expected YYYY-MM-DD")
			return
		}
		asOf = parsed
	}

	result := s.engine.EvaluateStrategy(req.StrategyID, req.CorrelationID, asOf)

	weights := make(map[string]string, len(result.Allocation.TargetWeights))
	for symbol, weight := range result.Allocation.TargetWeights {
		weights[symbol] = weight.String()
	}

	s.writeJSON(w, http.StatusOK, EvaluateResponse{
		CorrelationID: result.Allocation.CorrelationID,
		StrategyID:    result.StrategyID,
		TargetWeights: weights,
		Fallback:      result.Fallback,
		Success:       result.Trace.Success,
		Error:         result.Trace.ErrorMessage,
		Trace:         result.Trace,
	})
}

// handleListStrategies lists available strategy files.
// GET /api/strategies
func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	names, err := s.resolver.ListStrategies()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list strategies: "+err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"strategies": names,
		"default":    s.cfg.DefaultStrategy,
	})
}

// handleTriggerBackfill starts a cache backfill in the background.
// POST /api/backfill
func (s *Server) handleTriggerBackfill(w http.ResponseWriter, r *http.Request) {
	if s.backfillJob == nil {
		s.writeError(w, http.StatusServiceUnavailable, "backfill job not configured")
		return
	}

	go func() {
		if err := s.backfillJob.Run(); err != nil {
			s.log.Error().Err(err).Msg("Manual backfill failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "started",
		"message": "Backfill running in background",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
