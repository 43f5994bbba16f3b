package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chainsight/chainsight/internal/domain"
	"github.com/chainsight/chainsight/internal/modules/agent"
	"github.com/chainsight/chainsight/internal/modules/deliveryrisk"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "chainsight",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleKPIs returns dataset-wide headline figures
func (s *Server) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := s.engine.KPIs()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, kpis)
}

// handleForecast returns a demand forecast
// GET /api/forecast?category=Toys&horizon=30
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	horizon := queryInt(r, "horizon", s.cfg.ForecastHorizonDays)

	summary, err := s.engine.ForecastDemand(r.Context(), r.URL.Query().Get("category"), horizon)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

// handleInventory returns reorder policies and recommendations
// GET /api/inventory?category=Toys
func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.CheckInventory(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleRegions returns per-region performance aggregates
func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.CompareRegions(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleTopProducts ranks categories by a metric
// GET /api/products/top?metric=revenue&n=10
func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "revenue"
	}

	report, err := s.engine.TopProducts(r.Context(), metric, queryInt(r, "n", 10))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleSupplierLeaderboard returns all supplier scores, best first
func (s *Server) handleSupplierLeaderboard(w http.ResponseWriter, r *http.Request) {
	scores, _, err := s.engine.SupplierLeaderboard(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"suppliers": scores})
}

// handleSupplier returns one supplier's full assessment
func (s *Server) handleSupplier(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.AnalyzeSupplier(r.Context(), chi.URLParam(r, "supplierID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleRiskEvaluation returns the classifier's held-out evaluation
func (s *Server) handleRiskEvaluation(w http.ResponseWriter, r *http.Request) {
	eval, err := s.engine.RiskEvaluation()
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eval)
}

// handleRiskWhatIf scores a hypothetical order
// POST /api/risk/whatif
func (s *Server) handleRiskWhatIf(w http.ResponseWriter, r *http.Request) {
	var oc deliveryrisk.OrderContext
	if err := json.NewDecoder(r.Body).Decode(&oc); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := s.engine.PredictDeliveryRisk(r.Context(), oc)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// ChatRequest is the agent chat request body
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the agent chat response
type ChatResponse struct {
	SessionID   string                 `json:"session_id"`
	Answer      string                 `json:"answer"`
	Invocations []agent.ToolInvocation `json:"invocations,omitempty"`
}

// handleAgentChat processes one agent turn
// POST /api/agent/chat
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	conv := s.session(req.SessionID)
	answer, err := s.agent.Chat(r.Context(), conv, req.Message)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var invocations []agent.ToolInvocation
	turns := conv.Turns()
	if len(turns) > 0 {
		invocations = turns[len(turns)-1].Invocations
	}

	s.writeJSON(w, http.StatusOK, ChatResponse{
		SessionID:   conv.ID(),
		Answer:      answer,
		Invocations: invocations,
	})
}

// handleRetrain triggers the retrain job immediately
// POST /api/system/retrain
func (s *Server) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if s.retrain == nil {
		s.writeError(w, http.StatusServiceUnavailable, "retrain job not registered")
		return
	}

	s.log.Info().Msg("Manual retrain triggered")

	if err := s.scheduler.RunNow(s.retrain); err != nil {
		s.log.Error().Err(err).Msg("Failed to retrain")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Models retrained",
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

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps the error taxonomy onto HTTP status codes
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound     *domain.NotFoundError
		untrained    *domain.UntrainedModelError
		insufficient *domain.InsufficientHistoryError
		invalidInput *domain.InvalidInputError
	)

	switch {
	case errors.As(err, &notFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &untrained), errors.As(err, &insufficient):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &invalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}
