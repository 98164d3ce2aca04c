// Package strategy implements the Strategy Generator contract: a pluggable
// producer of the next StrategyProposal given an intent, drift event, world
// state, and the rejection reasons accumulated from prior attempts. The
// default implementation is a deterministic rule ladder from most automated
// to safest.
package strategy

import (
	"strings"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/google/uuid"
)

// AccumulatedRejection records one prior attempt's rejection for CGA
// feedback: the only channel between attempts.
type AccumulatedRejection struct {
	SourceDecisionID string
	Constraint       string
	Detail           string
}

// HeuristicAdvisor is the read-only, advisory-only surface the learning
// engine exposes to the strategy generator. It can never widen the set of
// legal rungs beyond what rejection-signature filtering allows, and it has
// no path into governance (the Iron Rule boundary).
type HeuristicAdvisor interface {
	Advise(pattern string) []model.OperationalHeuristic
}

// Generator is the pluggable Strategy Generator contract.
type Generator interface {
	Generate(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, accumulated []AccumulatedRejection, prior []model.StrategyProposal, attemptNumber int) model.StrategyProposal
}

// RuleLadder is the default, deterministic 3-rung implementation.
type RuleLadder struct {
	Advisor HeuristicAdvisor
	Clock   func() time.Time
}

// NewRuleLadder returns a RuleLadder with no advisor and a real clock.
func NewRuleLadder() *RuleLadder {
	return &RuleLadder{Clock: time.Now}
}

type rule func(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, attemptNumber int, now time.Time) model.StrategyProposal

var costTable = map[string]float64{
	"send_email":         0.10,
	"send_sms":           0.15,
	"query_crm":          0.05,
	"route_to_human":     5.00,
	"automated_outreach": 0.20,
	"direct_call":        1.00,
	"update_record":      0.02,
}

func estimateCost(actions []model.PlannedAction) float64 {
	var total float64
	for _, a := range actions {
		if c, ok := costTable[a.ActionType]; ok {
			total += c
		} else {
			total += 0.50
		}
	}
	return total
}

// Generate picks rung = min(attemptNumber-1, len(rungs)-1), then scans
// forward from there, skipping any rung that would structurally repeat a
// constraint already known to reject it, falling back to the safest (last)
// rung if every checked rung would fail.
func (g *RuleLadder) Generate(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, accumulated []AccumulatedRejection, prior []model.StrategyProposal, attemptNumber int) model.StrategyProposal {
	rungs := []rule{g.ruleDirectOutreach, g.ruleQueryThenOutreach, g.ruleHumanHandoff}
	start := attemptNumber - 1
	if start < 0 {
		start = 0
	}
	if start > len(rungs)-1 {
		start = len(rungs) - 1
	}

	chosen := len(rungs) - 1
	var legal []int
	for i := start; i < len(rungs); i++ {
		if !wouldViolateAccumulated(i, accumulated) {
			legal = append(legal, i)
		}
	}
	if len(legal) > 0 {
		chosen = g.adviseRung(legal, accumulated)
	}

	now := time.Now()
	if g.Clock != nil {
		now = g.Clock()
	}
	p := rungs[chosen](intent, entities, drift, attemptNumber, now)
	p.ID = uuid.NewString()
	p.IntentID = intent.ID
	p.AttemptNumber = attemptNumber
	p.EstimatedCost = estimateCost(p.Actions)
	p.Rationale = buildRationale(attemptNumber, accumulated, p.Actions)
	p.GeneratedAt = now
	if len(accumulated) > 0 {
		p.PriorRejectionID = accumulated[len(accumulated)-1].SourceDecisionID
	}
	return p
}

// adviseRung picks among the already-legal rungs (legal[0] is the least
// conservative one structural filtering allows), letting the learning
// engine's advisory heuristics break the tie: a rejection pattern with a
// poor historical success rate pushes the choice toward the safest legal
// rung instead of the least conservative one. It can never select a rung
// outside legal — that set is fixed by wouldViolateAccumulated alone.
func (g *RuleLadder) adviseRung(legal []int, accumulated []AccumulatedRejection) int {
	least := legal[0]
	if g.Advisor == nil || len(legal) == 1 {
		return least
	}
	pattern := rejectionPattern(accumulated)
	if pattern == "" {
		return least
	}
	advice := g.Advisor.Advise(pattern)
	if len(advice) == 0 {
		return least
	}
	if advice[0].SuccessRate < 0.5 {
		return legal[len(legal)-1]
	}
	return least
}

// rejectionPattern joins accumulated rejections' constraint names in the
// same "reason1+reason2" form learning.patternSignature derives from a
// cycle's rejected governance decisions, so a generated proposal's
// in-flight rejection history matches the historical heuristics learned
// from completed cycles with the same shape.
func rejectionPattern(accumulated []AccumulatedRejection) string {
	if len(accumulated) == 0 {
		return ""
	}
	reasons := make([]string, len(accumulated))
	for i, a := range accumulated {
		reasons[i] = a.Constraint
	}
	return strings.Join(reasons, "+")
}

// wouldViolateAccumulated mirrors the original ladder's structural-match
// rule: rung 0 (direct automated outreach) is blocked once a GDPR rejection
// has been seen; rung 1 (query-then-outreach) is blocked once a no-consent
// rejection has been seen; rung 2 (human hand-off) is never blocked.
func wouldViolateAccumulated(rungIndex int, accumulated []AccumulatedRejection) bool {
	switch rungIndex {
	case 0:
		for _, a := range accumulated {
			if strings.Contains(strings.ToLower(a.Constraint), "gdpr") {
				return true
			}
		}
		return false
	case 1:
		for _, a := range accumulated {
			lc := strings.ToLower(a.Constraint)
			if strings.Contains(lc, "no consent") || strings.Contains(lc, "no_consent") {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (g *RuleLadder) ruleDirectOutreach(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, _ int, _ time.Time) model.StrategyProposal {
	return model.StrategyProposal{
		PlanDescription: "direct automated outreach",
		Actions: []model.PlannedAction{
			{ActionType: "send_email", Target: drift.EntityID, RiskScore: 3, RequiresConsent: false, Reversible: true},
		},
	}
}

func (g *RuleLadder) ruleQueryThenOutreach(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, _ int, _ time.Time) model.StrategyProposal {
	return model.StrategyProposal{
		PlanDescription: "query CRM then conditionally reach out",
		Actions: []model.PlannedAction{
			{ActionType: "query_crm", Target: drift.EntityID, RiskScore: 1, Reversible: true},
			{ActionType: "send_email", Target: drift.EntityID, RiskScore: 3, RequiresConsent: true, Reversible: true},
		},
	}
}

func (g *RuleLadder) ruleHumanHandoff(intent model.Intent, entities map[string]model.Entity, drift model.DriftEvent, _ int, _ time.Time) model.StrategyProposal {
	params := map[string]any{
		"queue":    "sales_queue",
		"priority": "urgent",
	}
	if drift.SLARemainingMinutes != nil {
		params["sla_remaining_minutes"] = *drift.SLARemainingMinutes
	}
	return model.StrategyProposal{
		PlanDescription: "hand off to human work queue",
		Actions: []model.PlannedAction{
			{ActionType: "route_to_human", Target: drift.EntityID, RiskScore: 2, Reversible: true, Parameters: params},
		},
	}
}

func buildRationale(attemptNumber int, accumulated []AccumulatedRejection, actions []model.PlannedAction) string {
	if attemptNumber == 1 {
		return "selected the fastest path toward the SLA deadline"
	}
	names := make([]string, 0, len(accumulated))
	for _, a := range accumulated {
		names = append(names, a.Constraint)
	}
	actionTypes := make([]string, 0, len(actions))
	for _, a := range actions {
		actionTypes = append(actionTypes, a.ActionType)
	}
	return "prior attempts were rejected for " + strings.Join(names, ", ") +
		"; selected " + strings.Join(actionTypes, "+") + " to avoid repeating the same violation"
}
