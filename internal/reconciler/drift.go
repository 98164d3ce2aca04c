package reconciler

import (
	"regexp"
	"strconv"
	"time"

	"github.com/gap-kernel/gap/internal/model"
)

// DriftRule inspects one entity against the intents that obligate it and
// optionally emits a DriftEvent. Registered rules run each tick in
// registration order; the first rule to emit an event for an entity ends
// that entity's evaluation, so at most one event per entity per tick.
type DriftRule interface {
	Evaluate(entity model.Entity, activeIntents []model.Intent, now time.Time) *model.DriftEvent
}

var slaPattern = regexp.MustCompile(`(?i)within\s+(\d+)\s+(minutes?|hours?)`)

// SLADriftRule is the baseline rule: an intent's objective names an SLA
// window (e.g. "respond within 4 hours"); once an obligated entity with no
// last_contacted has waited past 70% of that window, it emits a drift
// event whose severity scales toward 10 as the window is exceeded.
type SLADriftRule struct{}

func (SLADriftRule) Evaluate(entity model.Entity, activeIntents []model.Intent, now time.Time) *model.DriftEvent {
	for _, intent := range activeIntents {
		if _, obligated := entity.Obligations[intent.ID]; !obligated {
			continue
		}
		slaMinutes, ok := parseSLAMinutes(intent.Objective)
		if !ok {
			continue
		}
		if _, contacted := entity.Properties["last_contacted"]; contacted {
			continue
		}

		waiting := now.Sub(entityWaitAnchor(entity)).Minutes()
		if waiting < 0.7*slaMinutes {
			continue
		}

		remaining := slaMinutes - waiting
		severity := 8 + 2*(waiting/slaMinutes)
		if severity > 10 {
			severity = 10
		}

		return &model.DriftEvent{
			EntityID:            entity.EntityID,
			IntentID:            intent.ID,
			Description:         "no_response_within_sla",
			Severity:            int(severity),
			SLARemainingMinutes: &remaining,
			DetectedAt:          now,
		}
	}
	return nil
}

// entityWaitAnchor returns the immutable moment an entity's SLA clock starts:
// its ingest time (created_at, falling back to ingested_at), read from
// Properties since those never change after ingestion. last_updated is
// mutated on every ingest/execution (spec §3), so anchoring on it would
// silently reset the SLA clock for any uncontacted entity the world model
// happens to touch; it is used only when neither property is present.
func entityWaitAnchor(entity model.Entity) time.Time {
	for _, key := range [...]string{"created_at", "ingested_at"} {
		v, ok := entity.Properties[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case time.Time:
			return val
		case string:
			if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
				return t
			}
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				return t
			}
		}
	}
	return entity.LastUpdated
}

func parseSLAMinutes(objective string) (float64, bool) {
	m := slaPattern.FindStringSubmatch(objective)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	unit := m[2]
	if len(unit) > 0 && (unit[0] == 'h' || unit[0] == 'H') {
		return float64(n) * 60, true
	}
	return float64(n), true
}
