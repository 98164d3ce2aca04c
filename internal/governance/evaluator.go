// Package governance implements the Governance Evaluator: a pure function
// over (Proposal, Intents, WorldModel, now, action_type?) -> Decision, plus
// the Action Type Registry it maintains.
package governance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/telemetry"
	"github.com/google/uuid"
)

// Evaluator is the Governance Evaluator. evaluate is pure with respect to
// its arguments and the Action Type Registry; it retains no per-call state.
// Telemetry only observes the outcome and never influences it.
type Evaluator struct {
	Registry  *ActionTypeRegistry
	Telemetry *telemetry.Provider
}

// New returns an Evaluator with a freshly seeded Action Type Registry and a
// no-op telemetry provider.
func New() *Evaluator {
	return &Evaluator{Registry: NewActionTypeRegistry(), Telemetry: telemetry.Noop()}
}

// Clock is a wall-clock source signature. Evaluate does not read a Clock;
// it takes now as an argument.
type Clock func() time.Time

// Evaluate runs the ordered, short-circuiting check sequence from §4.2 and
// records the resulting verdict on the configured telemetry provider.
func (e *Evaluator) Evaluate(proposal model.StrategyProposal, intents []model.Intent, entities map[string]model.Entity, now time.Time, actionTypeID string) model.GovernanceDecision {
	ctx, done := e.telemetry().StartOperation(context.Background(), "governance.evaluate")
	decision := e.evaluate(proposal, intents, entities, now, actionTypeID)
	e.telemetry().RecordDecision(ctx, string(decision.Verdict))
	done(nil)
	return decision
}

func (e *Evaluator) telemetry() *telemetry.Provider {
	if e.Telemetry == nil {
		return telemetry.Noop()
	}
	return e.Telemetry
}

// evaluate is the pure decision function Evaluate wraps with telemetry.
func (e *Evaluator) evaluate(proposal model.StrategyProposal, intents []model.Intent, entities map[string]model.Entity, now time.Time, actionTypeID string) model.GovernanceDecision {
	decisionID := uuid.NewString()
	tctx := buildTemporalContext(now)

	// Step 1: unregistered action type.
	var spec *model.ActionTypeSpec
	if actionTypeID != "" {
		s, ok := e.Registry.Get(actionTypeID)
		if !ok {
			return model.GovernanceDecision{
				ID: decisionID, ProposalID: proposal.ID,
				Verdict:         model.VerdictRejected,
				RejectionReason: "unregistered_action_type",
				RejectionDetail: fmt.Sprintf("action type %q is not registered", actionTypeID),
				ActionTypeID:    actionTypeID,
				TemporalContext: tctx,
				Uncertainty:     buildUncertainty(proposal, entities, nil, nil),
			}
		}
		spec = &s
	}

	servingIntent, activeIntents := resolveServingIntent(proposal.IntentID, intents)

	// Step 2: active constraint set from active intents.
	var active []model.Constraint
	var hardViolated, softViolated []string
	policySnapshot := make([]string, 0)

	for _, intent := range activeIntents {
		for _, c := range activeConstraints(intent.AllConstraints(), now) {
			active = append(active, c)
			policySnapshot = append(policySnapshot, c.Name)
		}
	}

	// Step 3: hard-constraint check.
	for _, intent := range activeIntents {
		for _, c := range activeConstraints(intent.HardConstraints, now) {
			if checkConstraint(c, proposal, entities) {
				hardViolated = append(hardViolated, c.Name)
			}
		}
	}

	// Step 4: soft-constraint check (non-blocking).
	for _, intent := range activeIntents {
		for _, c := range activeConstraints(intent.SoftConstraints, now) {
			if checkConstraint(c, proposal, entities) {
				softViolated = append(softViolated, c.Name)
			}
		}
	}

	uncertainty := buildUncertainty(proposal, entities, active, softViolated)

	if len(hardViolated) > 0 {
		return model.GovernanceDecision{
			ID: decisionID, ProposalID: proposal.ID,
			Verdict:             model.VerdictRejected,
			ViolatedConstraints: hardViolated,
			RejectionReason:     strings.Join(hardViolated, "|"),
			RejectionDetail:     formatHumanReason(hardViolated),
			ActionTypeID:        actionTypeID,
			PolicySnapshot:      policySnapshot,
			TemporalContext:     tctx,
			Uncertainty:         uncertainty,
		}
	}

	// Step 5: graduated authorization.
	maxRisk := proposal.MaxRiskScore()
	level := authorizationLevel(maxRisk)
	level = applyActionTypeOverride(level, spec)
	if escalatesToHuman(level) {
		return model.GovernanceDecision{
			ID: decisionID, ProposalID: proposal.ID,
			Verdict:             model.VerdictEscalate,
			ViolatedConstraints: softViolated,
			RejectionReason:     "risk_exceeds_system_authority",
			AuthorizationLevel:  level,
			ActionTypeID:        actionTypeID,
			PolicySnapshot:      policySnapshot,
			TemporalContext:     tctx,
			Uncertainty:         uncertainty,
		}
	}

	// Step 6: intent-conflict detection, evaluated against an empty world
	// model (Open Question (b), preserved deliberately).
	conflicting := detectIntentConflicts(servingIntent, proposal, activeIntents)
	if len(conflicting) > 0 {
		res := resolveIntentConflict(servingIntent, conflicting)
		if !res.IsPrimary {
			return model.GovernanceDecision{
				ID: decisionID, ProposalID: proposal.ID,
				Verdict:             model.VerdictEscalate,
				ViolatedConstraints: softViolated,
				RejectionReason:     "unresolvable_intent_conflict",
				AuthorizationLevel:  level,
				ActionTypeID:        actionTypeID,
				PolicySnapshot:      policySnapshot,
				TemporalContext:     tctx,
				Uncertainty:         uncertainty,
			}
		}
	}

	// Step 7: multi-phase authorization, if the action type declares phases.
	var phaseResults []model.PhaseResult
	if spec != nil && len(spec.PhaseConfig) > 0 {
		finalVerdict := model.VerdictApproved
		priorApproved := false
		for _, phase := range spec.PhaseConfig {
			phaseLevel := phase.DefaultAuthLevel
			if phaseLevel == "" {
				phaseLevel = level
			}
			if phase.EscalationOnDeviation && priorApproved {
				phaseLevel = raiseToAtLeast(phaseLevel, model.L2)
			}
			phaseVerdict := model.VerdictApproved
			if escalatesToHuman(phaseLevel) {
				phaseVerdict = model.VerdictEscalate
			}
			phaseResults = append(phaseResults, model.PhaseResult{
				Phase: phase.Name, Verdict: phaseVerdict, Level: phaseLevel,
			})
			if phaseVerdict == model.VerdictApproved {
				priorApproved = true
				continue
			}
			finalVerdict = phaseVerdict
			break
		}
		if finalVerdict != model.VerdictApproved {
			return model.GovernanceDecision{
				ID: decisionID, ProposalID: proposal.ID,
				Verdict:             finalVerdict,
				ViolatedConstraints: softViolated,
				AuthorizationLevel:  level,
				ActionTypeID:        actionTypeID,
				PolicySnapshot:      policySnapshot,
				TemporalContext:     tctx,
				Uncertainty:         uncertainty,
				PhaseResults:        phaseResults,
			}
		}
	}

	// Step 8: approved.
	return model.GovernanceDecision{
		ID: decisionID, ProposalID: proposal.ID,
		Verdict:             model.VerdictApproved,
		ViolatedConstraints: softViolated,
		AuthorizationLevel:  level,
		ActionTypeID:        actionTypeID,
		PolicySnapshot:      policySnapshot,
		TemporalContext:     tctx,
		Uncertainty:         uncertainty,
		PhaseResults:        phaseResults,
	}
}

func resolveServingIntent(intentID string, intents []model.Intent) (model.Intent, []model.Intent) {
	var serving model.Intent
	var active []model.Intent
	for _, i := range intents {
		if !i.Active {
			continue
		}
		active = append(active, i)
		if i.ID == intentID {
			serving = i
		}
	}
	return serving, active
}

func formatHumanReason(violated []string) string {
	parts := make([]string, 0, len(violated))
	for _, name := range violated {
		switch name {
		case "gdpr_consent_required":
			parts = append(parts, "the target has not given GDPR consent for outreach")
		case "no_contact_outside_hours":
			parts = append(parts, "the target's local time falls outside permitted contact hours")
		case "cost_ceiling":
			parts = append(parts, "the proposal's estimated cost exceeds the constraint's cost ceiling")
		default:
			parts = append(parts, fmt.Sprintf("constraint %q was violated", name))
		}
	}
	return strings.Join(parts, "; ")
}
