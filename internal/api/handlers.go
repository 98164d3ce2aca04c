package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/reconciler"
)

// --- Intents -----------------------------------------------------------

func (s *Server) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var intent model.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	intent.CreatedBy = subjectFrom(r)
	intent.CreatedAt = now()
	intent.Active = true
	s.Reconciler.RegisterIntent(intent)
	writeJSON(w, http.StatusCreated, intent)
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"intents": s.Reconciler.Intents()})
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	intent, ok := s.Reconciler.GetIntent(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "intent "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleUpdateIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var intent model.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	intent.ID = id
	s.Reconciler.RegisterIntent(intent)
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleDeleteIntent(w http.ResponseWriter, r *http.Request) {
	s.Reconciler.UnregisterIntent(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// --- World model ---------------------------------------------------------

func (s *Server) handleWorldState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": s.World.Snapshot()})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entity, ok := s.World.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "entity "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleIngestEntity(w http.ResponseWriter, r *http.Request) {
	var entity model.Entity
	if err := json.NewDecoder(r.Body).Decode(&entity); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	entity.LastUpdated = now()
	s.World.Upsert(entity)
	writeJSON(w, http.StatusOK, entity)
}

// --- Reconciler ------------------------------------------------------------

func (s *Server) handleReconcilerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"last_reconciled": s.World.LastReconciled(),
		"pending_escalations": len(s.Reconciler.Escalation.Pending()),
	})
}

func (s *Server) handleReconcilerTrigger(w http.ResponseWriter, r *http.Request) {
	s.Reconciler.ReconcileOnce(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func (s *Server) handleGetReconcilerConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Reconciler.Config)
}

func (s *Server) handlePutReconcilerConfig(w http.ResponseWriter, r *http.Request) {
	var cfg reconciler.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	s.Reconciler.Config = cfg
	writeJSON(w, http.StatusOK, cfg)
}

// --- Governance --------------------------------------------------------

type evaluateRequest struct {
	Proposal     model.StrategyProposal `json:"proposal"`
	Intents      []model.Intent         `json:"intents"`
	ActionTypeID string                  `json:"action_type_id"`
}

func (s *Server) handleGovernanceEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	intents := req.Intents
	if intents == nil {
		intents = s.Reconciler.Intents()
	}
	decision := s.Governance.Evaluate(req.Proposal, intents, s.World.Entities(), now(), req.ActionTypeID)
	writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleListActionTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"action_types": s.Governance.Registry.List()})
}

func (s *Server) handleGetActionType(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	spec, ok := s.Governance.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unregistered_action_type", id)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleRegisterActionType(w http.ResponseWriter, r *http.Request) {
	var spec model.ActionTypeSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	registered := s.Governance.Registry.Register(spec, subjectFrom(r))
	writeJSON(w, http.StatusCreated, registered)
}

// --- Lineage -------------------------------------------------------------

func (s *Server) handleListLineage(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	records, err := s.Lineage.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lineage_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleVerifyLineage(w http.ResponseWriter, r *http.Request) {
	ok, err := s.Lineage.VerifyChainIntegrity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "integrity_failure", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"chain_intact": ok})
}

func (s *Server) handleLineageByCycle(w http.ResponseWriter, r *http.Request) {
	records, err := s.Lineage.ByCycle(r.Context(), r.PathValue("cycle_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lineage_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleLineageByIntent(w http.ResponseWriter, r *http.Request) {
	records, err := s.Lineage.ByIntent(r.Context(), r.PathValue("intent_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lineage_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleLineageByEntity(w http.ResponseWriter, r *http.Request) {
	records, err := s.Lineage.ByEntity(r.Context(), r.PathValue("entity_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lineage_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleLineageEscalations(w http.ResponseWriter, r *http.Request) {
	records, err := s.Lineage.Escalations(r.Context(), nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lineage_query_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// --- Escalations ---------------------------------------------------------

func (s *Server) handlePendingEscalations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"escalations": s.Reconciler.Escalation.Pending()})
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) handleResolveEscalation(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_request", err.Error())
		return
	}
	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = subjectFrom(r)
	}
	resolved, err := s.Reconciler.ResolveEscalation(r.Context(), r.PathValue("id"), reconciler.Resolution(req.Resolution), resolvedBy)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

// --- Learning --------------------------------------------------------------

func (s *Server) handleListHeuristics(w http.ResponseWriter, r *http.Request) {
	if s.Learning == nil {
		writeJSON(w, http.StatusOK, map[string]any{"heuristics": []model.OperationalHeuristic{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"heuristics": s.Learning.All()})
}
