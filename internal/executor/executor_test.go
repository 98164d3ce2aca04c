package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/gap-kernel/gap/internal/kernelerr"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/worldmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P1: execute never completes normally unless the decision is APPROVED.
func TestExecute_RejectsUnapproved(t *testing.T) {
	d := New(worldmodel.New())
	_, err := d.Execute(context.Background(), model.StrategyProposal{}, model.GovernanceDecision{Verdict: model.VerdictRejected})
	require.ErrorIs(t, err, kernelerr.ErrUnapprovedExecution)
}

func TestExecute_NoHandlerRegistered(t *testing.T) {
	d := New(worldmodel.New())
	proposal := model.StrategyProposal{
		ID: "p1",
		Actions: []model.PlannedAction{{ActionType: "send_email", Target: "e1"}},
	}
	result, err := d.Execute(context.Background(), proposal, model.GovernanceDecision{Verdict: model.VerdictApproved})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ActionsFailed)
	assert.False(t, result.Success)
}

func TestExecute_UpdatesLastContactedOnSuccess(t *testing.T) {
	world := worldmodel.New()
	world.Upsert(model.Entity{EntityID: "e1", Properties: map[string]any{}})
	d := New(world)
	d.Register("send_email", func(ctx context.Context, a model.PlannedAction) error { return nil })

	proposal := model.StrategyProposal{
		ID: "p1",
		Actions: []model.PlannedAction{{ActionType: "send_email", Target: "e1"}},
	}
	result, err := d.Execute(context.Background(), proposal, model.GovernanceDecision{Verdict: model.VerdictApproved})
	require.NoError(t, err)
	assert.True(t, result.Success)

	e, ok := world.Get("e1")
	require.True(t, ok)
	assert.Contains(t, e.Properties, "last_contacted")
	assert.Equal(t, "send_email", e.Properties["contact_method"])
}

func TestExecute_HandlerErrorAggregated(t *testing.T) {
	d := New(worldmodel.New())
	d.Register("send_sms", func(ctx context.Context, a model.PlannedAction) error { return errors.New("boom") })
	proposal := model.StrategyProposal{
		ID: "p1",
		Actions: []model.PlannedAction{{ActionType: "send_sms", Target: "e1"}},
	}
	result, err := d.Execute(context.Background(), proposal, model.GovernanceDecision{Verdict: model.VerdictApproved})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ActionsFailed)
	assert.False(t, result.Success)
}
