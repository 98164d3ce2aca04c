// Package cga implements the Constraint-Guided Autonomy state machine:
// GENERATE -> EVALUATE -> {DISPATCH | ACCUMULATE -> GENERATE | ESCALATE}.
package cga

import (
	"context"
	"time"

	"github.com/gap-kernel/gap/internal/executor"
	"github.com/gap-kernel/gap/internal/governance"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/strategy"
	"github.com/gap-kernel/gap/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// FinalVerdict is the terminal outcome of one CGA run.
type FinalVerdict string

const (
	FinalApproved  FinalVerdict = "approved"
	FinalEscalated FinalVerdict = "escalated"
)

// Result is everything the reconciler needs to build a LineageRecord.
type Result struct {
	Proposals        []model.StrategyProposal
	Decisions        []model.GovernanceDecision
	ApprovedProposal *model.StrategyProposal
	ExecutionResult  *model.ExecutionResult
	TotalAttempts    int
	Escalated        bool
	FinalVerdict     FinalVerdict
}

// Orchestrator runs one drift event's propose/evaluate/dispatch cycle.
type Orchestrator struct {
	Strategy    strategy.Generator
	Governance  *governance.Evaluator
	Executor    *executor.Dispatcher
	MaxAttempts int
	ActionType  string
	Clock       func() time.Time
	Telemetry   *telemetry.Provider
}

// New returns an Orchestrator with max_attempts defaulted to 3, per §4.5.
func New(gen strategy.Generator, gov *governance.Evaluator, exec *executor.Dispatcher) *Orchestrator {
	return &Orchestrator{Strategy: gen, Governance: gov, Executor: exec, MaxAttempts: 3, Clock: time.Now, Telemetry: telemetry.Noop()}
}

// Run executes the bounded retry loop from §4.5's pseudocode, wrapped in a
// span covering every attempt of this drift event's propose/evaluate cycle.
func (o *Orchestrator) Run(ctx context.Context, intent model.Intent, drift model.DriftEvent, entities map[string]model.Entity, intents []model.Intent) Result {
	tp := o.Telemetry
	if tp == nil {
		tp = telemetry.Noop()
	}
	var span func(error)
	ctx, span = tp.StartOperation(ctx, "cga.run", attribute.String("intent_id", intent.ID))
	result := o.run(ctx, intent, drift, entities, intents)
	span(nil)
	return result
}

func (o *Orchestrator) run(ctx context.Context, intent model.Intent, drift model.DriftEvent, entities map[string]model.Entity, intents []model.Intent) Result {
	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	now := time.Now
	if o.Clock != nil {
		now = o.Clock
	}

	var result Result
	var accumulated []strategy.AccumulatedRejection
	var priorProposals []model.StrategyProposal

	attempt := 0
	for attempt < maxAttempts {
		attempt++
		proposal := o.Strategy.Generate(intent, entities, drift, accumulated, priorProposals, attempt)
		decision := o.Governance.Evaluate(proposal, intents, entities, now(), o.ActionType)

		result.Proposals = append(result.Proposals, proposal)
		result.Decisions = append(result.Decisions, decision)
		priorProposals = append(priorProposals, proposal)

		switch decision.Verdict {
		case model.VerdictApproved:
			execResult, _ := o.Executor.Execute(ctx, proposal, decision)
			approved := proposal
			result.ApprovedProposal = &approved
			result.ExecutionResult = &execResult
			result.TotalAttempts = attempt
			result.FinalVerdict = FinalApproved
			result.Escalated = false
			return result
		case model.VerdictEscalate:
			result.TotalAttempts = attempt
			result.FinalVerdict = FinalEscalated
			result.Escalated = true
			return result
		default: // REJECTED: accumulate and retry.
			accumulated = append(accumulated, strategy.AccumulatedRejection{
				SourceDecisionID: decision.ID,
				Constraint:       decision.RejectionReason,
				Detail:           decision.RejectionDetail,
			})
		}
	}

	// Budget exhausted.
	result.TotalAttempts = attempt
	result.FinalVerdict = FinalEscalated
	result.Escalated = true
	return result
}
