package governance

import (
	"regexp"
	"strconv"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/google/cel-go/cel"
)

var outreachActionTypes = map[string]struct{}{
	"send_email":         {},
	"send_sms":           {},
	"direct_call":        {},
	"automated_outreach": {},
}

// euEEAJurisdictions is the recognized set of EU/EEA geo/jurisdiction codes
// for the gdpr_consent_required rule.
var euEEAJurisdictions = map[string]struct{}{
	"EU": {}, "EEA": {}, "DE": {}, "FR": {}, "IT": {}, "ES": {}, "NL": {},
	"BE": {}, "AT": {}, "SE": {}, "DK": {}, "FI": {}, "IE": {}, "PT": {},
	"GR": {}, "PL": {}, "CZ": {}, "RO": {}, "HU": {}, "BG": {}, "HR": {},
	"SK": {}, "SI": {}, "LT": {}, "LV": {}, "EE": {}, "CY": {}, "MT": {},
	"LU": {},
}

var costCeilingRe = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)

func isOutreach(actionType string) bool {
	_, ok := outreachActionTypes[actionType]
	return ok
}

func isEUEEA(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, in := euEEAJurisdictions[s]
	return in
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	default:
		return true
	}
}

// violationCheck evaluates one named constraint rule against a proposal and
// the entities it targets. The set of builtin rules is closed: anything not
// named here defaults to non-violating unless the constraint carries an
// optional CEL expression.
type violationCheck func(c model.Constraint, p model.StrategyProposal, entities map[string]model.Entity) bool

var builtinRules = map[string]violationCheck{
	"gdpr_consent_required":    checkGDPRConsent,
	"no_contact_outside_hours": checkContactHours,
	"cost_ceiling":             checkCostCeiling,
}

func checkGDPRConsent(_ model.Constraint, p model.StrategyProposal, entities map[string]model.Entity) bool {
	for _, a := range p.Actions {
		if !isOutreach(a.ActionType) {
			continue
		}
		e, ok := entities[a.Target]
		if !ok {
			if a.RequiresConsent {
				return true
			}
			continue
		}
		geo := e.Properties["geo"]
		jurisdiction := e.Properties["jurisdiction"]
		if isEUEEA(geo) || isEUEEA(jurisdiction) {
			if !truthy(e.Properties["gdpr_consent"]) {
				return true
			}
		}
	}
	return false
}

func checkContactHours(_ model.Constraint, p model.StrategyProposal, entities map[string]model.Entity) bool {
	for _, a := range p.Actions {
		if !isOutreach(a.ActionType) {
			continue
		}
		e, ok := entities[a.Target]
		if !ok {
			continue
		}
		hourVal, ok := e.Properties["local_hour"]
		if !ok {
			continue
		}
		hour, ok := toInt(hourVal)
		if !ok {
			continue
		}
		if hour >= 22 || hour < 7 {
			return true
		}
	}
	return false
}

func checkCostCeiling(c model.Constraint, p model.StrategyProposal, _ map[string]model.Entity) bool {
	m := costCeilingRe.FindStringSubmatch(c.Description)
	if m == nil {
		return false
	}
	ceiling, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return false
	}
	return p.EstimatedCost > ceiling
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// checkConstraint dispatches to a builtin rule by name, else (if the
// constraint declares a CEL expression) evaluates that expression, else
// treats the constraint as non-violating. A CEL evaluation error is treated
// as non-violation — fail-open on the custom rule only; the three builtins
// are never bypassable this way.
func checkConstraint(c model.Constraint, p model.StrategyProposal, entities map[string]model.Entity) bool {
	if rule, ok := builtinRules[c.Name]; ok {
		return rule(c, p, entities)
	}
	if c.CELExpression != "" {
		violated, err := evalCEL(c.CELExpression, p, entities)
		if err != nil {
			return false
		}
		return violated
	}
	return false
}

func evalCEL(expr string, p model.StrategyProposal, entities map[string]model.Entity) (bool, error) {
	env, err := cel.NewEnv(
		cel.Variable("estimated_cost", cel.DoubleType),
		cel.Variable("action_types", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return false, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, err
	}
	actionTypes := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		actionTypes = append(actionTypes, a.ActionType)
	}
	out, _, err := prg.Eval(map[string]any{
		"estimated_cost": p.EstimatedCost,
		"action_types":   actionTypes,
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, nil
	}
	return b, nil
}
