package governance

import (
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// isConstraintActive reports whether a constraint's Policy Activation
// applies at now. `always` is always active. A cron schedule is active iff
// it matches now to the minute. A parse failure fails safe: inactive. Open
// Question (a): treat the cron library's match result as authoritative,
// with no look-back or look-ahead semantics.
func isConstraintActive(c model.Constraint, now time.Time) bool {
	switch c.Activation.Kind {
	case model.ActivationAlways, "":
		return true
	case model.ActivationEmergencyOverride:
		return true
	case model.ActivationCronSchedule:
		return cronMatchesMinute(c.Activation.CronSchedule, now)
	default:
		return false
	}
}

func cronMatchesMinute(expr string, now time.Time) bool {
	if expr == "" {
		return false
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return false // invalid cron fails safe: inactive
	}
	truncated := now.Truncate(time.Minute)
	next := sched.Next(truncated.Add(-time.Minute))
	return next.Equal(truncated)
}

func buildTemporalContext(now time.Time) model.TemporalContext {
	hour := now.Hour()
	weekday := now.Weekday()
	isBusiness := hour >= 9 && hour < 18
	return model.TemporalContext{
		EvaluatedAt:     now,
		Hour:            hour,
		Weekday:         weekday.String(),
		IsBusinessHours: isBusiness,
	}
}

// activeConstraints filters an intent's constraints to those whose temporal
// activation applies at now.
func activeConstraints(constraints []model.Constraint, now time.Time) []model.Constraint {
	var out []model.Constraint
	for _, c := range constraints {
		if isConstraintActive(c, now) {
			out = append(out, c)
		}
	}
	return out
}
