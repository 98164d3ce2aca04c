package learning

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestEngine_LearnFromLineage_SingleAttemptIsNoop(t *testing.T) {
	e := New()
	e.LearnFromLineage(model.LineageRecord{TotalAttempts: 1, ExecutionSuccess: true})
	assert.Empty(t, e.All())
}

func TestEngine_LearnFromLineage_BuildsHeuristicAndEMAs(t *testing.T) {
	e := New()
	e.clock = fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	cycle := model.LineageRecord{
		TotalAttempts: 2,
		GovernanceDecisions: []model.GovernanceDecision{
			{Verdict: model.VerdictRejected, RejectionReason: "gdpr_consent_required"},
			{Verdict: model.VerdictApproved},
		},
		ExecutionSuccess: true,
	}
	e.LearnFromLineage(cycle)

	advised := e.Advise("gdpr_consent_required")
	require.Len(t, advised, 1)
	assert.Equal(t, 1, advised[0].HitCount)
	assert.Equal(t, 1.0, advised[0].SuccessRate)

	cycle.ExecutionSuccess = false
	e.LearnFromLineage(cycle)
	advised = e.Advise("gdpr_consent_required")
	require.Len(t, advised, 1)
	assert.Equal(t, 2, advised[0].HitCount)
	assert.InDelta(t, 0.7, advised[0].SuccessRate, 0.0001)
}

func TestEngine_Advise_FiltersRetired(t *testing.T) {
	e := New()
	e.LearnFromLineage(model.LineageRecord{
		TotalAttempts: 2,
		GovernanceDecisions: []model.GovernanceDecision{
			{Verdict: model.VerdictRejected, RejectionReason: "no_contact_outside_hours"},
		},
		ExecutionSuccess: true,
	})
	require.Len(t, e.Advise(""), 1)

	e.Retire("no_contact_outside_hours")
	assert.Empty(t, e.Advise(""))
}
