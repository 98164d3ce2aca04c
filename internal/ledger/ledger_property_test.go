package ledger

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/model"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func genRecord() gopter.Gen {
	return gen.AlphaString().Map(func(s string) model.LineageRecord {
		return model.LineageRecord{
			ID:            uuid.NewString(),
			CycleID:       "cycle_" + s,
			IntentID:      "intent_" + s,
			DriftDetected: s,
			TotalAttempts: 1,
			CreatedAt:     time.Now().UTC(),
		}
	})
}

// P3 (chain integrity) and P4 (append-only): appending a sequence of
// records via Sign/VerifyRecord always yields a chain that verifies, and
// mutating any one record's content falsifies it.
func TestLedgerChainIntegrity_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("appended chain always verifies until tampered", prop.ForAll(
		func(records []model.LineageRecord) bool {
			var chain []model.LineageRecord
			prior := ""
			for _, r := range records {
				signed, err := Sign(r, prior)
				if err != nil {
					return false
				}
				chain = append(chain, signed)
				prior = signed.Signature
			}

			prior = ""
			for _, r := range chain {
				if err := VerifyRecord(r, prior); err != nil {
					return false
				}
				prior = r.Signature
			}

			if len(chain) == 0 {
				return true
			}
			tampered := chain[0]
			tampered.DriftDetected = tampered.DriftDetected + "-tampered"
			return VerifyRecord(tampered, "") != nil
		},
		gen.SliceOf(genRecord()),
	))

	properties.TestingRun(t)
}
