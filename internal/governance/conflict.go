package governance

import (
	"sort"

	"github.com/gap-kernel/gap/internal/model"
)

// conflictResult is the outcome of intent-conflict detection.
type conflictResult struct {
	Conflicting []model.Intent
	Primary     model.Intent
	IsPrimary   bool
}

// detectIntentConflicts checks the proposal against every other active
// intent's hard constraints, evaluated against an EMPTY world model to
// isolate structural conflict (Open Question (b), preserved deliberately:
// this makes the check a structural test of constraints, not a test against
// live entity data).
func detectIntentConflicts(serving model.Intent, proposal model.StrategyProposal, allActive []model.Intent) []model.Intent {
	empty := map[string]model.Entity{}
	var conflicting []model.Intent
	for _, other := range allActive {
		if other.ID == serving.ID {
			continue
		}
		for _, c := range other.HardConstraints {
			if checkConstraint(c, proposal, empty) {
				conflicting = append(conflicting, other)
				break
			}
		}
	}
	return conflicting
}

// resolveIntentConflict sorts conflicting intents (including the serving
// one) by priority descending; the head is primary. Hard constraints of
// every conflicting intent remain inviolable regardless of outcome.
func resolveIntentConflict(serving model.Intent, conflicting []model.Intent) conflictResult {
	all := append([]model.Intent{serving}, conflicting...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Priority > all[j].Priority
	})
	primary := all[0]
	return conflictResult{
		Conflicting: conflicting,
		Primary:     primary,
		IsPrimary:   primary.ID == serving.ID,
	}
}
