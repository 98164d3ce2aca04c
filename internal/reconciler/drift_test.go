package reconciler

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSLADriftRule_AnchorsOnCreatedAtNotLastUpdated(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	intent := model.Intent{ID: "sla", Active: true, Objective: "respond within 10 minutes"}

	entity := model.Entity{
		EntityID:    "lead_1",
		LastUpdated: now, // touched moments ago by an unrelated ingest
		Properties:  map[string]any{"created_at": now.Add(-8 * time.Minute).Format(time.RFC3339Nano)},
		Obligations: map[string]struct{}{"sla": {}},
	}

	drift := SLADriftRule{}.Evaluate(entity, []model.Intent{intent}, now)
	if assert.NotNil(t, drift, "8 of 10 minutes elapsed since created_at should breach the 70%% threshold") {
		assert.Equal(t, "no_response_within_sla", drift.Description)
	}
}

func TestSLADriftRule_FallsBackToIngestedAtThenLastUpdated(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	intent := model.Intent{ID: "sla", Active: true, Objective: "respond within 10 minutes"}

	withIngestedAt := model.Entity{
		EntityID:    "lead_2",
		LastUpdated: now,
		Properties:  map[string]any{"ingested_at": now.Add(-8 * time.Minute).Format(time.RFC3339Nano)},
		Obligations: map[string]struct{}{"sla": {}},
	}
	assert.NotNil(t, SLADriftRule{}.Evaluate(withIngestedAt, []model.Intent{intent}, now))

	noAnchorProps := model.Entity{
		EntityID:    "lead_3",
		LastUpdated: now.Add(-8 * time.Minute),
		Properties:  map[string]any{},
		Obligations: map[string]struct{}{"sla": {}},
	}
	assert.NotNil(t, SLADriftRule{}.Evaluate(noAnchorProps, []model.Intent{intent}, now))
}

func TestSLADriftRule_FreshCreatedAtSuppressesDriftDespiteStaleLastUpdated(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	intent := model.Intent{ID: "sla", Active: true, Objective: "respond within 10 minutes"}

	entity := model.Entity{
		EntityID:    "lead_4",
		LastUpdated: now.Add(-8 * time.Minute), // looks breached if used as the anchor
		Properties:  map[string]any{"created_at": now.Add(-1 * time.Minute).Format(time.RFC3339Nano)},
		Obligations: map[string]struct{}{"sla": {}},
	}

	assert.Nil(t, SLADriftRule{}.Evaluate(entity, []model.Intent{intent}, now))
}
