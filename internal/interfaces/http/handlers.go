package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/retinalabs/retina/internal/cache"
	"github.com/retinalabs/retina/internal/guardrail"
	"github.com/retinalabs/retina/internal/persistence"
	"github.com/retinalabs/retina/internal/recommend"
	"github.com/retinalabs/retina/internal/sim"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// SimulateResponse is the /simulate payload.
type SimulateResponse struct {
	Fingerprint    string                    `json:"fingerprint"`
	Results        []sim.Result              `json:"results"`
	Recommendation *recommend.Recommendation `json:"recommendation,omitempty"`
	Diagnostics    sim.Diagnostics           `json:"diagnostics"`
	Cached         bool                      `json:"cached"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req sim.Request
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Options) == 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("at least one option required"))
		return
	}
	if len(req.Options) > s.cfg.Sim.MaxOptions {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("too many options: %d > %d", len(req.Options), s.cfg.Sim.MaxOptions))
		return
	}
	if req.Runs > s.cfg.Sim.MaxRuns {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("too many runs: %d > %d", req.Runs, s.cfg.Sim.MaxRuns))
		return
	}
	if req.Capital.Multiplier == 0 && req.Capital.MinCapital == 0 {
		req.Capital.Multiplier = s.cfg.Tenant.Capital.Multiplier
		req.Capital.MinCapital = s.cfg.Tenant.Capital.MinCapital
	}

	fingerprint := sim.Fingerprint(req)
	if s.deps.Cache != nil {
		if env := s.deps.Cache.Get(r.Context(), fingerprint); env != nil {
			s.metrics.RecordCacheHit("results")
			s.writeJSON(w, http.StatusOK, SimulateResponse{
				Fingerprint:    fingerprint,
				Results:        env.Results,
				Recommendation: env.Recommendation,
				Diagnostics:    env.Diagnostics,
				Cached:         true,
			})
			return
		}
		s.metrics.RecordCacheMiss("results")
	}

	timer := s.metrics.StartSimTimer()
	results, diags, err := sim.Run(r.Context(), req)
	if err != nil {
		timer.Stop("error")
		s.metrics.RecordSimError("invalid_request")
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	timer.Stop("success")
	s.metrics.CopulaFitError.Set(diags.CopulaFroErr)

	useCE := s.cfg.Tenant.UseCertaintyEquivalent
	if req.Utility != nil && req.Utility.UseForRecommendation {
		useCE = true
	}
	rec, err := recommend.Select(results, recommend.Settings{
		UseCertaintyEquivalent: useCE,
		RedThreshold:           s.cfg.Tenant.RAROC.Red,
	})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if s.deps.Cache != nil {
		s.deps.Cache.Put(r.Context(), fingerprint, cache.Envelope{
			Results:        results,
			Diagnostics:    diags,
			Recommendation: rec,
		})
	}

	s.writeJSON(w, http.StatusOK, SimulateResponse{
		Fingerprint:    fingerprint,
		Results:        results,
		Recommendation: rec,
		Diagnostics:    diags,
	})
}

// OutcomesRequest is a batch of actual-outcome observations.
type OutcomesRequest struct {
	Outcomes []guardrail.Outcome `json:"outcomes"`
}

// OutcomeResult is the per-entry batch response.
type OutcomeResult struct {
	Matched bool                     `json:"matched"`
	Error   string                   `json:"error,omitempty"`
	Result  *guardrail.ProcessResult `json:"result,omitempty"`
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	var req OutcomesRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Outcomes) == 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("no outcomes supplied"))
		return
	}

	batch := s.deps.Engine.ProcessBatch(r.Context(), req.Outcomes)
	out := make([]OutcomeResult, len(batch))
	for i, b := range batch {
		s.metrics.OutcomeFrames.Inc()
		entry := OutcomeResult{Matched: b.Result != nil, Result: b.Result}
		if b.Err != nil {
			entry.Error = b.Err.Error()
		}
		if b.Result != nil && b.Result.Violation != nil {
			s.metrics.RecordBreach(b.Result.Violation.Severity)
		}
		if b.Result != nil && b.Result.Adjustment != nil {
			s.metrics.RecordAdjustment(b.Result.Adjustment.Severity)
		}
		if s.deps.Debouncer != nil && b.Result != nil && b.Outcome.DecisionID != "" {
			s.deps.Debouncer.Trigger(b.Outcome.DecisionID)
		}
		out[i] = entry
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

// CreateGuardrailRequest seeds a single guardrail.
type CreateGuardrailRequest struct {
	TenantID       string  `json:"tenantId"`
	DecisionID     string  `json:"decisionId"`
	OptionID       string  `json:"optionId"`
	MetricName     string  `json:"metricName"`
	Direction      string  `json:"direction"`
	ThresholdValue float64 `json:"thresholdValue"`
	AlertLevel     string  `json:"alertLevel"`
}

func (s *Server) handleCreateGuardrail(w http.ResponseWriter, r *http.Request) {
	var req CreateGuardrailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.DecisionID == "" || req.OptionID == "" || req.MetricName == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("decisionId, optionId, and metricName are required"))
		return
	}
	if req.Direction != persistence.DirectionAbove && req.Direction != persistence.DirectionBelow {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("direction must be above or below"))
		return
	}
	if req.AlertLevel == "" {
		req.AlertLevel = persistence.AlertCaution
	}

	now := time.Now().UTC()
	g := persistence.Guardrail{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		DecisionID:     req.DecisionID,
		OptionID:       req.OptionID,
		MetricName:     req.MetricName,
		Direction:      req.Direction,
		ThresholdValue: req.ThresholdValue,
		AlertLevel:     req.AlertLevel,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.deps.Store.Guardrails().Insert(r.Context(), g); err != nil {
		s.writeError(w, r, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGuardrails(w http.ResponseWriter, r *http.Request) {
	decisionID := mux.Vars(r)["decisionID"]
	guardrails, err := s.deps.Store.Guardrails().ListByDecision(r.Context(), decisionID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if guardrails == nil {
		guardrails = []persistence.Guardrail{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"guardrails": guardrails})
}

// ApplyTemplateRequest seeds guardrails for a decision from a template
// profile, scaling each seed's factor by the option's simulated metric.
type ApplyTemplateRequest struct {
	TenantID string                `json:"tenantId"`
	Profile  string                `json:"profile,omitempty"` // empty selects the active profile
	Options  []ApplyTemplateOption `json:"options"`
}

// ApplyTemplateOption carries one option's simulated metric values.
type ApplyTemplateOption struct {
	OptionID string             `json:"optionId"`
	Metrics  map[string]float64 `json:"metrics"`
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Templates == nil {
		s.writeError(w, r, http.StatusNotImplemented, fmt.Errorf("no guardrail templates configured"))
		return
	}
	decisionID := mux.Vars(r)["decisionID"]

	var req ApplyTemplateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Options) == 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("no options supplied"))
		return
	}

	profileName := req.Profile
	if profileName == "" {
		profileName = s.deps.Templates.Active
	}
	profile, ok := s.deps.Templates.Profiles[profileName]
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("unknown template profile '%s'", profileName))
		return
	}
	if problems := profile.ValidateProfile(); len(problems) > 0 {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid template profile: %v", problems))
		return
	}

	now := time.Now().UTC()
	var created []persistence.Guardrail
	for _, opt := range req.Options {
		for _, seed := range profile.Guardrails {
			metric, ok := opt.Metrics[seed.MetricName]
			if !ok {
				continue
			}
			g := persistence.Guardrail{
				ID:             uuid.NewString(),
				TenantID:       req.TenantID,
				DecisionID:     decisionID,
				OptionID:       opt.OptionID,
				MetricName:     seed.MetricName,
				Direction:      seed.Direction,
				ThresholdValue: metric * seed.Factor,
				AlertLevel:     seed.AlertLevel,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.deps.Store.Guardrails().Insert(r.Context(), g); err != nil {
				log.Warn().Err(err).
					Str("option_id", opt.OptionID).
					Str("metric", seed.MetricName).
					Msg("template guardrail insert skipped")
				continue
			}
			created = append(created, g)
		}
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"profile":    profileName,
		"guardrails": created,
	})
}

func (s *Server) handleListViolations(w http.ResponseWriter, r *http.Request) {
	guardrailID := mux.Vars(r)["id"]
	violations, err := s.deps.Store.Violations().ListSince(r.Context(), guardrailID, time.Time{})
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if violations == nil {
		violations = []persistence.GuardrailViolation{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"violations": violations})
}

func (s *Server) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	guardrailID := mux.Vars(r)["id"]
	adjustments, err := s.deps.Store.Adjustments().ListByGuardrail(r.Context(), guardrailID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if adjustments == nil {
		adjustments = []persistence.AutoAdjustmentRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"adjustments": adjustments})
}

func (s *Server) handleResolveViolation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Engine.ResolveViolation(r.Context(), id); err != nil {
		if err == persistence.ErrNotFound {
			s.writeError(w, r, http.StatusNotFound, err)
			return
		}
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.deps.Cache != nil {
		resp["cache"] = s.deps.Cache.Snapshot()
	}
	if hc, ok := s.deps.Store.(interface {
		HealthCheck(ctx context.Context) error
	}); ok {
		if err := hc.HealthCheck(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["storage"] = err.Error()
		} else {
			resp["storage"] = "ok"
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(errorResponse{Error: fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path)})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	requestID, _ := r.Context().Value(requestIDKey).(string)
	log.Warn().
		Err(err).
		Str("request_id", requestID).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error(), RequestID: requestID})
}
