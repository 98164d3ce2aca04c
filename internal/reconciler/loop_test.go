package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/cga"
	"github.com/gap-kernel/gap/internal/executor"
	"github.com/gap-kernel/gap/internal/governance"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/learning"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/strategy"
	"github.com/gap-kernel/gap/internal/worldmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryLedger is a minimal in-memory ledger.Store for reconciler tests.
type memoryLedger struct {
	mu      sync.Mutex
	records []model.LineageRecord
}

func (m *memoryLedger) Append(_ context.Context, record model.LineageRecord) (model.LineageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prior := ""
	if len(m.records) > 0 {
		prior = m.records[len(m.records)-1].Signature
	}
	signed, err := ledger.Sign(record, prior)
	if err != nil {
		return model.LineageRecord{}, err
	}
	m.records = append(m.records, signed)
	return signed, nil
}
func (m *memoryLedger) Get(_ context.Context, id string) (model.LineageRecord, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.LineageRecord{}, uuidNotFoundErr(id)
}
func (m *memoryLedger) ByCycle(_ context.Context, cycleID string) ([]model.LineageRecord, error) {
	var out []model.LineageRecord
	for _, r := range m.records {
		if r.CycleID == cycleID {
			out = append(out, r)
		}
	}
	return out, nil
}
func (m *memoryLedger) ByIntent(_ context.Context, intentID string) ([]model.LineageRecord, error) {
	return nil, nil
}
func (m *memoryLedger) ByEntity(_ context.Context, entityID string) ([]model.LineageRecord, error) {
	return nil, nil
}
func (m *memoryLedger) Escalations(_ context.Context, since *time.Time) ([]model.LineageRecord, error) {
	return nil, nil
}
func (m *memoryLedger) Recent(_ context.Context, limit int) ([]model.LineageRecord, error) {
	return m.records, nil
}
func (m *memoryLedger) VerifyChainIntegrity(_ context.Context) (bool, error) { return true, nil }

type notFoundErr string

func (e notFoundErr) Error() string { return string(e) }
func uuidNotFoundErr(id string) error { return notFoundErr("not found: " + id) }

func buildLoop(t *testing.T, now time.Time) (*Loop, *worldmodel.Store, *memoryLedger) {
	t.Helper()
	world := worldmodel.New()
	gov := governance.New()
	exec := executor.New(world)
	exec.Register("route_to_human", func(ctx context.Context, a model.PlannedAction) error { return nil })
	exec.Register("send_email", func(ctx context.Context, a model.PlannedAction) error { return nil })
	exec.Register("query_crm", func(ctx context.Context, a model.PlannedAction) error { return nil })
	orch := cga.New(strategy.NewRuleLadder(), gov, exec)

	mem := &memoryLedger{}
	learn := learning.New()
	cfg := DefaultConfig()
	loop := New(world, orch, mem, learn, cfg)
	loop.Clock = func() time.Time { return now }
	return loop, world, mem
}

func TestLoop_ReconcileOnce_DetectsSLADriftAndAppendsLineage(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loop, world, mem := buildLoop(t, now)

	intent := model.Intent{
		ID: "lead_response_sla", Active: true, Priority: 80,
		Objective: "respond to new leads within 60 minutes",
	}
	loop.RegisterIntent(intent)

	world.Upsert(model.Entity{
		EntityID:    "lead_1",
		EntityType:  "lead",
		LastUpdated: now.Add(-50 * time.Minute),
		Properties:  map[string]any{},
		Obligations: map[string]struct{}{"lead_response_sla": {}},
	})

	loop.ReconcileOnce(context.Background())

	require.Len(t, mem.records, 1)
	assert.Equal(t, "no_response_within_sla", mem.records[0].DriftDetected)
	assert.False(t, world.LastReconciled().IsZero())
}

func TestLoop_ReconcileOnce_SkipsDampenedEntity(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loop, world, mem := buildLoop(t, now)

	intent := model.Intent{ID: "lead_response_sla", Active: true, Objective: "respond within 60 minutes"}
	loop.RegisterIntent(intent)
	world.Upsert(model.Entity{
		EntityID:    "lead_2",
		LastUpdated: now.Add(-50 * time.Minute),
		Obligations: map[string]struct{}{"lead_response_sla": {}},
	})

	require.NoError(t, loop.Dampening.Put(context.Background(), model.DampeningState{
		EntityID:      "lead_2",
		CooldownUntil: now.Add(1 * time.Hour),
	}))

	loop.ReconcileOnce(context.Background())
	assert.Empty(t, mem.records)
}

func TestLoop_ResolveEscalation_ClearsCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loop, _, _ := buildLoop(t, now)
	ctx := context.Background()

	require.NoError(t, loop.Dampening.Put(ctx, model.DampeningState{
		EntityID: "lead_3", CircuitBroken: true, ConsecutiveFailures: 5,
	}))
	esc := loop.Escalation.Enqueue("cycle_x", "lin_x", "lead_response_sla", "lead_3", "no_response_within_sla", 2, []string{"gdpr_consent_required"}, now)

	resolved, err := loop.ResolveEscalation(ctx, esc.ID, ResolutionApproved, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "resolved", resolved.Status)

	state, ok, err := loop.Dampening.Get(ctx, "lead_3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, state.CircuitBroken)
	assert.Equal(t, 0, state.ConsecutiveFailures)
}

func TestLoop_ResolveEscalation_DeniedLeavesCircuitBroken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	loop, _, _ := buildLoop(t, now)
	ctx := context.Background()

	require.NoError(t, loop.Dampening.Put(ctx, model.DampeningState{EntityID: "lead_4", CircuitBroken: true}))
	esc := loop.Escalation.Enqueue("cycle_y", "lin_y", "intent", "lead_4", "drift", 1, nil, now)

	_, err := loop.ResolveEscalation(ctx, esc.ID, ResolutionDenied, "ops@example.com")
	require.NoError(t, err)

	state, ok, err := loop.Dampening.Get(ctx, "lead_4")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, state.CircuitBroken)
}
