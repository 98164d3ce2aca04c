package strategy

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleLadder_Attempt1_DirectOutreach(t *testing.T) {
	g := NewRuleLadder()
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}
	p := g.Generate(intent, nil, drift, nil, nil, 1)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "send_email", p.Actions[0].ActionType)
}

// P5: if attempt N was rejected for constraint C, attempt N+1 does not
// structurally match the ladder rung associated with C.
func TestRuleLadder_SkipsGDPRRungAfterRejection(t *testing.T) {
	g := NewRuleLadder()
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "gdpr_consent_required"},
	}
	p := g.Generate(intent, nil, drift, accumulated, nil, 2)
	assert.NotEqual(t, "direct automated outreach", p.PlanDescription)
	// rung 1 (query then outreach) still requires consent explicitly.
	found := false
	for _, a := range p.Actions {
		if a.ActionType == "query_crm" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRuleLadder_FallsBackToHumanHandoff(t *testing.T) {
	g := NewRuleLadder()
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "gdpr_consent_required"},
		{SourceDecisionID: "d2", Constraint: "no_consent"},
	}
	p := g.Generate(intent, nil, drift, accumulated, nil, 3)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "route_to_human", p.Actions[0].ActionType)
}

func TestEstimateCost_UsesCostTable(t *testing.T) {
	actions := []model.PlannedAction{{ActionType: "send_email"}, {ActionType: "query_crm"}}
	assert.InDelta(t, 0.15, estimateCost(actions), 0.0001)
}

func TestRuleLadder_Deterministic(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := &RuleLadder{Clock: func() time.Time { return fixed }}
	intent := model.Intent{ID: "i1"}
	drift := model.DriftEvent{EntityID: "e1"}
	p1 := g.Generate(intent, nil, drift, nil, nil, 1)
	assert.Equal(t, fixed, p1.GeneratedAt)
}

type stubAdvisor struct {
	pattern string
	advice  []model.OperationalHeuristic
}

func (s *stubAdvisor) Advise(pattern string) []model.OperationalHeuristic {
	if pattern != s.pattern {
		return nil
	}
	return s.advice
}

// A poor historical success rate for this exact rejection pattern should
// push Generate toward the safest legal rung instead of the least
// conservative one, even though both are structurally legal.
func TestRuleLadder_AdvisorPrefersSaferRungOnPoorSuccessRate(t *testing.T) {
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "cost_ceiling_exceeded"},
	}
	g := &RuleLadder{Advisor: &stubAdvisor{
		pattern: "cost_ceiling_exceeded",
		advice:  []model.OperationalHeuristic{{PatternSignature: "cost_ceiling_exceeded", HitCount: 10, SuccessRate: 0.1}},
	}}
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}

	p := g.Generate(intent, nil, drift, accumulated, nil, 1)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "route_to_human", p.Actions[0].ActionType)
}

// A strong historical success rate leaves the least-conservative legal rung
// in place, matching the no-advisor baseline.
func TestRuleLadder_AdvisorKeepsLeastConservativeRungOnGoodSuccessRate(t *testing.T) {
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "cost_ceiling_exceeded"},
	}
	g := &RuleLadder{Advisor: &stubAdvisor{
		pattern: "cost_ceiling_exceeded",
		advice:  []model.OperationalHeuristic{{PatternSignature: "cost_ceiling_exceeded", HitCount: 10, SuccessRate: 0.9}},
	}}
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}

	p := g.Generate(intent, nil, drift, accumulated, nil, 1)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "send_email", p.Actions[0].ActionType)
}

// No matching heuristic (unseen pattern) falls back to the least
// conservative legal rung, same as with no advisor configured.
func TestRuleLadder_AdvisorNoMatchFallsBackToLeastConservative(t *testing.T) {
	g := &RuleLadder{Advisor: &stubAdvisor{pattern: "some_other_pattern"}}
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "unrelated_reason"},
	}

	p := g.Generate(intent, nil, drift, accumulated, nil, 1)
	require.Len(t, p.Actions, 1)
	assert.Equal(t, "send_email", p.Actions[0].ActionType)
}

// The advisor can never widen the legal set: a GDPR rejection still blocks
// rung 0 regardless of what the advisor says.
func TestRuleLadder_AdvisorCannotWidenLegalRungs(t *testing.T) {
	g := &RuleLadder{Advisor: &stubAdvisor{
		pattern: "gdpr_consent_required",
		advice:  []model.OperationalHeuristic{{PatternSignature: "gdpr_consent_required", HitCount: 10, SuccessRate: 0.9}},
	}}
	intent := model.Intent{ID: "lead_response_sla", Priority: 80}
	drift := model.DriftEvent{EntityID: "lead_4821", IntentID: intent.ID}
	accumulated := []AccumulatedRejection{
		{SourceDecisionID: "d1", Constraint: "gdpr_consent_required"},
	}

	// attemptNumber 1 means start=0, so rung 0 is only excluded by
	// wouldViolateAccumulated, not by the start offset — isolating whether
	// the advisor's favorable rating for this pattern can pull it back in.
	p := g.Generate(intent, nil, drift, accumulated, nil, 1)
	assert.NotEqual(t, "direct automated outreach", p.PlanDescription)
}
