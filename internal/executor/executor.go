// Package executor implements the Executor Dispatcher: the only component
// permitted to cause external effects, and only for APPROVED decisions.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/kernelerr"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/gap-kernel/gap/internal/worldmodel"
)

// ActionHandler performs one action's external effect.
type ActionHandler func(ctx context.Context, action model.PlannedAction) error

var outreachShaped = map[string]struct{}{
	"send_email":         {},
	"route_to_human":     {},
	"automated_outreach": {},
}

// Dispatcher is the Executor Dispatcher.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
	world    *worldmodel.Store
	clock    func() time.Time
}

// New returns a Dispatcher with no registered handlers.
func New(world *worldmodel.Store) *Dispatcher {
	return &Dispatcher{handlers: make(map[string]ActionHandler), world: world, clock: time.Now}
}

// Register installs a handler for an action_type.
func (d *Dispatcher) Register(actionType string, h ActionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[actionType] = h
}

// Execute dispatches every action in the proposal. It fails outright if the
// decision is not APPROVED; per-action failures are aggregated instead of
// aborting the whole dispatch.
func (d *Dispatcher) Execute(ctx context.Context, proposal model.StrategyProposal, decision model.GovernanceDecision) (model.ExecutionResult, error) {
	if decision.Verdict != model.VerdictApproved {
		return model.ExecutionResult{}, kernelerr.ErrUnapprovedExecution
	}

	start := d.clock()
	result := model.ExecutionResult{ProposalID: proposal.ID, ExecutedAt: start}

	for _, action := range proposal.Actions {
		actionStart := d.clock()
		ar := model.ActionResult{ActionType: action.ActionType, Target: action.Target}

		d.mu.RLock()
		handler, ok := d.handlers[action.ActionType]
		d.mu.RUnlock()

		if !ok {
			ar.Success = false
			ar.Error = (&kernelerr.NoExecutorRegisteredError{ActionType: action.ActionType}).Error()
			result.ActionsFailed++
			ar.Duration = d.clock().Sub(actionStart)
			result.ActionResults = append(result.ActionResults, ar)
			continue
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return handler(ctx, action)
		}()

		ar.Duration = d.clock().Sub(actionStart)
		if err != nil {
			ar.Success = false
			ar.Error = err.Error()
			result.ActionsFailed++
		} else {
			ar.Success = true
			result.ActionsCompleted++
			d.applyStateChange(action)
			result.WorldStateChanges = append(result.WorldStateChanges, action.Target)
		}
		result.ActionResults = append(result.ActionResults, ar)
	}

	result.ExecutionDuration = d.clock().Sub(start)
	result.Success = result.ActionsFailed == 0
	return result, nil
}

// applyStateChange updates last_contacted/contact_method on the target
// entity for outreach-shaped action types, per §4.4.
func (d *Dispatcher) applyStateChange(action model.PlannedAction) {
	if _, ok := outreachShaped[action.ActionType]; !ok {
		return
	}
	if d.world == nil {
		return
	}
	d.world.ApplyExecution(action.Target, map[string]any{
		"last_contacted": d.clock().UTC(),
		"contact_method":  action.ActionType,
	})
}
