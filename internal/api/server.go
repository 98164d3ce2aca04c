// Package api exposes the autonomy kernel's REST surface: §6 of the spec
// plus the supplemented learning/heuristics and escalation-resolution
// endpoints. Mutating routes require a bearer JWT; ingestion endpoints
// validate their request bodies against a JSON Schema before touching any
// kernel state.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gap-kernel/gap/internal/governance"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/learning"
	"github.com/gap-kernel/gap/internal/reconciler"
	"github.com/gap-kernel/gap/internal/worldmodel"
	"golang.org/x/time/rate"
)

// Server wires the kernel's in-process components onto an http.ServeMux.
type Server struct {
	World      *worldmodel.Store
	Governance *governance.Evaluator
	Reconciler *reconciler.Loop
	Lineage    ledger.Store
	Learning   *learning.Engine
	Logger     *slog.Logger

	JWTSecret []byte
	Limiter   *rate.Limiter
}

// New returns a Server with a 50 req/s, burst-100 default rate limit.
func New(world *worldmodel.Store, gov *governance.Evaluator, rec *reconciler.Loop, lineage ledger.Store, learn *learning.Engine, jwtSecret []byte) *Server {
	return &Server{
		World:      world,
		Governance: gov,
		Reconciler: rec,
		Lineage:    lineage,
		Learning:   learn,
		Logger:     slog.Default(),
		JWTSecret:  jwtSecret,
		Limiter:    rate.NewLimiter(rate.Limit(50), 100),
	}
}

// Mux builds the full route table, wrapped in the server-wide rate limiter.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /intents", s.withAuth(s.withSchema(intentSchema, s.handleCreateIntent)))
	mux.HandleFunc("GET /intents", s.handleListIntents)
	mux.HandleFunc("GET /intents/{id}", s.handleGetIntent)
	mux.Handle("PUT /intents/{id}", s.withAuth(s.withSchema(intentSchema, s.handleUpdateIntent)))
	mux.Handle("DELETE /intents/{id}", s.withAuth(s.handleDeleteIntent))

	mux.HandleFunc("GET /world/state", s.handleWorldState)
	mux.HandleFunc("GET /world/entities/{id}", s.handleGetEntity)
	mux.Handle("POST /world/ingest", s.withAuth(s.withSchema(entitySchema, s.handleIngestEntity)))

	mux.HandleFunc("GET /reconciler/status", s.handleReconcilerStatus)
	mux.Handle("POST /reconciler/trigger", s.withAuth(s.handleReconcilerTrigger))
	mux.HandleFunc("GET /reconciler/config", s.handleGetReconcilerConfig)
	mux.Handle("PUT /reconciler/config", s.withAuth(s.handlePutReconcilerConfig))

	mux.Handle("POST /governance/evaluate", s.withAuth(s.withSchema(evaluateSchema, s.handleGovernanceEvaluate)))
	mux.HandleFunc("GET /governance/action-types", s.handleListActionTypes)
	mux.HandleFunc("GET /governance/action-types/{id}", s.handleGetActionType)
	mux.Handle("POST /governance/action-types", s.withAuth(s.handleRegisterActionType))

	mux.HandleFunc("GET /lineage", s.handleListLineage)
	mux.HandleFunc("GET /lineage/verify", s.handleVerifyLineage)
	mux.HandleFunc("GET /lineage/cycle/{cycle_id}", s.handleLineageByCycle)
	mux.HandleFunc("GET /lineage/by-intent/{intent_id}", s.handleLineageByIntent)
	mux.HandleFunc("GET /lineage/by-entity/{entity_id}", s.handleLineageByEntity)
	mux.HandleFunc("GET /lineage/escalations", s.handleLineageEscalations)

	mux.HandleFunc("GET /escalations/pending", s.handlePendingEscalations)
	mux.Handle("POST /escalations/{id}/resolve", s.withAuth(s.withSchema(resolveSchema, s.handleResolveEscalation)))

	mux.HandleFunc("GET /learning/heuristics", s.handleListHeuristics)

	return s.withRateLimit(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func now() time.Time { return time.Now().UTC() }
