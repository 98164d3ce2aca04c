package governance

import "github.com/gap-kernel/gap/internal/model"

var levelRank = map[model.AuthorizationLevel]int{
	model.L0: 0, model.L1: 1, model.L2: 2, model.L3: 3, model.L4: 4,
}

// authorizationLevel derives the graduated authorization tier (L0-L4) from
// the proposal's maximum action risk score. Satisfies invariant I5: the
// level is monotonic in max_risk.
func authorizationLevel(maxRisk int) model.AuthorizationLevel {
	switch {
	case maxRisk <= 3:
		return model.L0
	case maxRisk <= 5:
		return model.L1
	case maxRisk <= 7:
		return model.L2
	case maxRisk == 8:
		return model.L3
	default:
		return model.L4
	}
}

// escalatesToHuman reports whether a derived level means ESCALATE (L4).
func escalatesToHuman(level model.AuthorizationLevel) bool {
	return level == model.L4
}

// applyActionTypeOverride raises (never lowers) the risk-derived level to an
// action type's configured default, per §4.2.3.
func applyActionTypeOverride(riskLevel model.AuthorizationLevel, spec *model.ActionTypeSpec) model.AuthorizationLevel {
	if spec == nil || spec.DefaultAuthorizationLevel == "" {
		return riskLevel
	}
	if levelRank[spec.DefaultAuthorizationLevel] > levelRank[riskLevel] {
		return spec.DefaultAuthorizationLevel
	}
	return riskLevel
}

// raiseToAtLeast returns the higher of level and floor.
func raiseToAtLeast(level, floor model.AuthorizationLevel) model.AuthorizationLevel {
	if levelRank[floor] > levelRank[level] {
		return floor
	}
	return level
}
