// Package reconciler implements the periodic drift-detection loop: for
// each non-dampened entity it runs the registered drift rules, invokes the
// CGA orchestrator on whatever it finds, durably appends the resulting
// lineage record, and updates the world model and dampening state.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/cga"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/learning"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/telemetry"
	"github.com/gap-kernel/gap/internal/worldmodel"
	"github.com/google/uuid"
)

// Config holds the reconciler's tunable knobs, sourced from the daemon's
// top-level config.
type Config struct {
	HeartbeatInterval       time.Duration
	CooldownDuration        time.Duration
	CircuitBreakerThreshold int
}

// DefaultConfig mirrors the defaults named in §5: 300s cooldown, 5-strike
// circuit breaker.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:       30 * time.Second,
		CooldownDuration:        300 * time.Second,
		CircuitBreakerThreshold: 5,
	}
}

// Loop is the reconciler: a single cooperative scanner per World Model.
type Loop struct {
	World      *worldmodel.Store
	Orchestra  *cga.Orchestrator
	Lineage    ledger.Store
	Dampening  DampeningStore
	Learning   *learning.Engine
	Escalation *EscalationQueue
	Rules      []DriftRule
	Config     Config
	Clock      func() time.Time
	Logger     *slog.Logger
	Telemetry  *telemetry.Provider

	mu      sync.RWMutex
	intents map[string]model.Intent
	stop    chan struct{}
}

// New builds a Loop with the baseline SLA drift rule registered.
func New(world *worldmodel.Store, orchestrator *cga.Orchestrator, lineage ledger.Store, learn *learning.Engine, cfg Config) *Loop {
	return &Loop{
		World:      world,
		Orchestra:  orchestrator,
		Lineage:    lineage,
		Dampening:  NewMapDampeningStore(),
		Learning:   learn,
		Escalation: NewEscalationQueue(),
		Rules:      []DriftRule{SLADriftRule{}},
		Config:     cfg,
		Clock:      time.Now,
		Logger:     slog.Default(),
		Telemetry:  telemetry.Noop(),
		intents:    make(map[string]model.Intent),
		stop:       make(chan struct{}),
	}
}

// SetKeyring arms the reconciler's escalation queue to countersign human
// resolutions with keys derived from the given root seed. Called once
// during wiring; nil leaves resolutions unsigned (Lite Mode posture).
func (l *Loop) SetKeyring(kr *ledger.Keyring) {
	l.Escalation.Keyring = kr
}

// RegisterIntent adds (or replaces) an intent the reconciler watches.
func (l *Loop) RegisterIntent(intent model.Intent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intents[intent.ID] = intent
}

// UnregisterIntent removes an intent from the watched set.
func (l *Loop) UnregisterIntent(intentID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.intents, intentID)
}

func (l *Loop) activeIntents() []model.Intent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Intent, 0, len(l.intents))
	for _, i := range l.intents {
		if i.Active {
			out = append(out, i)
		}
	}
	return out
}

func (l *Loop) intent(id string) (model.Intent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.intents[id]
	return i, ok
}

// GetIntent returns a registered intent (active or not) by id, for the REST
// surface's GET /intents/:id.
func (l *Loop) GetIntent(id string) (model.Intent, bool) {
	return l.intent(id)
}

// Intents returns every registered intent, active or not.
func (l *Loop) Intents() []model.Intent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Intent, 0, len(l.intents))
	for _, i := range l.intents {
		out = append(out, i)
	}
	return out
}

func (l *Loop) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

// ReconcileOnce runs exactly one tick: scan, detect, dispatch, persist.
// Per-entity failures are recovered and logged; they never abort the tick.
func (l *Loop) ReconcileOnce(ctx context.Context) {
	tp := l.Telemetry
	if tp == nil {
		tp = telemetry.Noop()
	}
	ctx, span := tp.StartOperation(ctx, "reconciler.tick")
	defer span(nil)

	activeIntents := l.activeIntents()
	allIntents := activeIntents // conflict resolution within CGA uses the same declared set

	for _, entity := range l.World.Entities() {
		l.processEntity(ctx, entity, activeIntents, allIntents)
	}
	l.World.MarkReconciled()
}

func (l *Loop) processEntity(ctx context.Context, entity model.Entity, activeIntents, allIntents []model.Intent) {
	defer func() {
		if r := recover(); r != nil {
			l.Logger.Error("reconciler: recovered panic processing entity", "entity_id", entity.EntityID, "panic", r)
		}
	}()

	now := l.now()
	state, _, err := l.Dampening.Get(ctx, entity.EntityID)
	if err != nil {
		l.Logger.Error("reconciler: dampening lookup failed", "entity_id", entity.EntityID, "error", err)
		return
	}
	if IsDampened(state, now) {
		return
	}

	for _, rule := range l.Rules {
		drift := rule.Evaluate(entity, activeIntents, now)
		if drift == nil {
			continue
		}
		l.handleDrift(ctx, entity, *drift, allIntents, state, now)
		return
	}
}

func (l *Loop) handleDrift(ctx context.Context, entity model.Entity, drift model.DriftEvent, allIntents []model.Intent, state model.DampeningState, now time.Time) {
	owningIntent, ok := l.intent(drift.IntentID)
	if !ok {
		l.Logger.Warn("reconciler: drift referenced unknown intent", "intent_id", drift.IntentID)
		return
	}

	entities := l.World.Entities()
	result := l.Orchestra.Run(ctx, owningIntent, drift, entities, allIntents)

	l.World.RecordDrift(drift)

	cycleID := "cycle_" + uuid.NewString()
	record := model.LineageRecord{
		ID:                    "lin_" + uuid.NewString(),
		CycleID:               cycleID,
		IntentID:              owningIntent.ID,
		Intent:                owningIntent,
		DriftDetected:         drift.Description,
		DriftSeverity:         drift.Severity,
		WorldStateSnapshot:    l.World.Snapshot(),
		Proposals:             result.Proposals,
		GovernanceDecisions:   result.Decisions,
		FinalApprovedProposal: result.ApprovedProposal,
		ExecutionResult:       result.ExecutionResult,
		TotalAttempts:         result.TotalAttempts,
		EscalatedToHuman:      result.Escalated,
		CreatedAt:             now,
	}
	if result.ExecutionResult != nil {
		record.ExecutionSuccess = result.ExecutionResult.Success
	}
	if !result.Escalated {
		resolvedAt := now
		record.ResolvedAt = &resolvedAt
	}

	signed, err := l.Lineage.Append(ctx, record)
	if err != nil {
		l.Logger.Error("reconciler: failed to append lineage record", "cycle_id", cycleID, "error", err)
		return
	}

	newState := ApplyOutcome(state, entity.EntityID, result.Escalated, now, l.Config.CooldownDuration, l.Config.CircuitBreakerThreshold)
	if err := l.Dampening.Put(ctx, newState); err != nil {
		l.Logger.Error("reconciler: failed to persist dampening state", "entity_id", entity.EntityID, "error", err)
	}

	if result.Escalated {
		rejections := make([]string, 0, len(result.Decisions))
		for _, d := range result.Decisions {
			if d.RejectionReason != "" {
				rejections = append(rejections, d.RejectionReason)
			}
		}
		l.Escalation.Enqueue(cycleID, signed.ID, owningIntent.ID, entity.EntityID, drift.Description, len(result.Proposals), rejections, now)
	}

	l.learnFireAndForget(signed)
}

// learnFireAndForget mirrors the "failure is non-fatal" framing: learning
// runs in its own goroutine and a panic there is recovered and logged, never
// propagated back into the reconciler tick.
func (l *Loop) learnFireAndForget(record model.LineageRecord) {
	if l.Learning == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				l.Logger.Error("reconciler: learning engine panicked", "cycle_id", record.CycleID, "panic", r)
			}
		}()
		l.Learning.LearnFromLineage(record)
	}()
}

// ResolveEscalation is the explicit human action that can clear a
// circuit-broken entity: approving or manually overriding an escalation
// resets its dampening state, denying leaves the circuit tripped.
func (l *Loop) ResolveEscalation(ctx context.Context, escalationID string, resolution Resolution, resolvedBy string) (model.EscalationDescriptor, error) {
	resolved, err := l.Escalation.Resolve(escalationID, resolution, resolvedBy, l.now())
	if err != nil {
		return model.EscalationDescriptor{}, err
	}

	if resolution == ResolutionApproved || resolution == ResolutionManualOverride {
		state, _, err := l.Dampening.Get(ctx, resolved.EntityID)
		if err != nil {
			return resolved, err
		}
		state.CircuitBroken = false
		state.ConsecutiveFailures = 0
		state.CooldownUntil = l.now()
		if err := l.Dampening.Put(ctx, state); err != nil {
			return resolved, err
		}
	}
	return resolved, nil
}

// Run is the async entry point: it ticks every HeartbeatInterval until Stop
// is called. Only the heartbeat wait and whatever ReconcileOnce itself
// suspends on may block; the stop channel is checked between ticks, never
// mid-tick.
func (l *Loop) Run(ctx context.Context) {
	interval := l.Config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(interval):
			l.ReconcileOnce(ctx)
		}
	}
}

// Stop signals Run to exit: a pending heartbeat wait ends at once, and a
// tick already in progress runs to completion first.
func (l *Loop) Stop() {
	close(l.stop)
}
