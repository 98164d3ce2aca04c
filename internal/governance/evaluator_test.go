package governance

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func euLeadIntent() model.Intent {
	return model.Intent{
		ID:        "lead_response_sla",
		Objective: "respond to lead within 10 minutes",
		Priority:  80,
		Active:    true,
		HardConstraints: []model.Constraint{
			{Name: "gdpr_consent_required", Type: model.ConstraintHard, Description: "GDPR consent required", Activation: model.Activation{Kind: model.ActivationAlways}},
		},
	}
}

func euLeadEntity(consent bool) model.Entity {
	return model.Entity{
		EntityType: "lead",
		EntityID:   "lead_4821",
		Properties: map[string]any{
			"geo":           "EU",
			"gdpr_consent":  consent,
			"local_hour":    14,
			"created_at":    time.Now().Add(-8 * time.Minute).Format(time.RFC3339),
		},
		Confidence: 1.0,
	}
}

// Scenario 2: EU lead with consent -> approved on attempt 1, send_email.
func TestEvaluate_EUConsent_Approved(t *testing.T) {
	ev := New()
	intent := euLeadIntent()
	entity := euLeadEntity(true)
	proposal := model.StrategyProposal{
		ID: "p1", IntentID: intent.ID, AttemptNumber: 1,
		Actions: []model.PlannedAction{{ActionType: "send_email", Target: entity.EntityID, RiskScore: 3}},
		EstimatedCost: 0.10,
	}
	d := ev.Evaluate(proposal, []model.Intent{intent}, map[string]model.Entity{entity.EntityID: entity}, time.Now(), "")
	require.Equal(t, model.VerdictApproved, d.Verdict)
	assert.Empty(t, d.ViolatedConstraints)
	assert.Equal(t, model.L0, d.AuthorizationLevel)
}

// Scenario 1 (partial): without consent, direct outreach is rejected on GDPR.
func TestEvaluate_EUNoConsent_Rejected(t *testing.T) {
	ev := New()
	intent := euLeadIntent()
	entity := euLeadEntity(false)
	proposal := model.StrategyProposal{
		ID: "p1", IntentID: intent.ID, AttemptNumber: 1,
		Actions: []model.PlannedAction{{ActionType: "send_email", Target: entity.EntityID, RiskScore: 3}},
	}
	d := ev.Evaluate(proposal, []model.Intent{intent}, map[string]model.Entity{entity.EntityID: entity}, time.Now(), "")
	require.Equal(t, model.VerdictRejected, d.Verdict)
	assert.Contains(t, d.ViolatedConstraints, "gdpr_consent_required")
	assert.Equal(t, "gdpr_consent_required", d.RejectionReason)
}

// Scenario 4: risk-10 action escalates with risk_exceeds_system_authority.
func TestEvaluate_HighRisk_Escalates(t *testing.T) {
	ev := New()
	intent := model.Intent{ID: "any", Active: true, Priority: 50}
	proposal := model.StrategyProposal{
		ID: "p1", IntentID: intent.ID,
		Actions: []model.PlannedAction{{ActionType: "task_execution", Target: "e1", RiskScore: 10}},
	}
	d := ev.Evaluate(proposal, []model.Intent{intent}, map[string]model.Entity{}, time.Now(), "")
	require.Equal(t, model.VerdictEscalate, d.Verdict)
	assert.Equal(t, "risk_exceeds_system_authority", d.RejectionReason)
	assert.Equal(t, model.L4, d.AuthorizationLevel)
}

// Scenario 5: unregistered action type is rejected before any other check.
func TestEvaluate_UnregisteredActionType(t *testing.T) {
	ev := New()
	intent := model.Intent{ID: "any", Active: true}
	proposal := model.StrategyProposal{ID: "p1", IntentID: intent.ID}
	d := ev.Evaluate(proposal, []model.Intent{intent}, map[string]model.Entity{}, time.Now(), "nonexistent")
	require.Equal(t, model.VerdictRejected, d.Verdict)
	assert.Equal(t, "unregistered_action_type", d.RejectionReason)
}

// P7: every decision carries a non-null uncertainty with confidence in [0,1].
func TestEvaluate_UncertaintyAlwaysPresent(t *testing.T) {
	ev := New()
	intent := model.Intent{ID: "any", Active: true}
	proposal := model.StrategyProposal{ID: "p1", IntentID: intent.ID}
	d := ev.Evaluate(proposal, []model.Intent{intent}, map[string]model.Entity{}, time.Now(), "")
	assert.GreaterOrEqual(t, d.Uncertainty.ConfidenceLevel, 0.0)
	assert.LessOrEqual(t, d.Uncertainty.ConfidenceLevel, 1.0)
}

// P8: authorization level is non-decreasing in max risk score.
func TestAuthorizationLevel_Monotonic(t *testing.T) {
	prev := -1
	for risk := 1; risk <= 10; risk++ {
		lvl := authorizationLevel(risk)
		rank := levelRank[lvl]
		assert.GreaterOrEqual(t, rank, prev)
		prev = rank
	}
}

func TestCronMatchesMinute_InvalidFailsSafe(t *testing.T) {
	assert.False(t, cronMatchesMinute("not a cron expression", time.Now()))
}
