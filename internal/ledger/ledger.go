// Package ledger implements the Decision Lineage Ledger: an append-only,
// hash-chained, queryable store of LineageRecords.
package ledger

import (
	"context"
	"time"

	"github.com/gap-kernel/gap/internal/kernelerr"
	"github.com/gap-kernel/gap/internal/model"
)

// Store is the durable backend contract. Implementations (Postgres, SQLite)
// must serialize Append calls internally to preserve the hash chain
// (single writer or a lock per append), per §5's shared-resource policy.
type Store interface {
	Append(ctx context.Context, record model.LineageRecord) (model.LineageRecord, error)
	Get(ctx context.Context, id string) (model.LineageRecord, error)
	ByCycle(ctx context.Context, cycleID string) ([]model.LineageRecord, error)
	ByIntent(ctx context.Context, intentID string) ([]model.LineageRecord, error)
	ByEntity(ctx context.Context, entityID string) ([]model.LineageRecord, error)
	Escalations(ctx context.Context, since *time.Time) ([]model.LineageRecord, error)
	Recent(ctx context.Context, limit int) ([]model.LineageRecord, error)
	VerifyChainIntegrity(ctx context.Context) (bool, error)
}

// Sign computes a lineage record's signature and chains it to the prior
// record's signature. Satisfies I2: signature = SHA-256(canonical JSON of
// the record with signature=""), and prior_record_hash equals the
// immediately preceding record's signature (empty for genesis).
func Sign(record model.LineageRecord, priorSignature string) (model.LineageRecord, error) {
	record.Signature = ""
	record.PriorRecordHash = priorSignature
	hash, err := canonicalHash(record)
	if err != nil {
		return model.LineageRecord{}, err
	}
	record.Signature = hash
	return record, nil
}

// VerifyRecord recomputes a record's signature and compares it to the
// stored value, detecting tampering of the record or a broken chain link to
// the given prior signature.
func VerifyRecord(record model.LineageRecord, expectedPriorSignature string) error {
	if record.PriorRecordHash != expectedPriorSignature {
		return &kernelerr.IntegrityFailureError{RecordID: record.ID, Detail: "prior_record_hash does not match preceding record's signature"}
	}
	claimed := record.Signature
	record.Signature = ""
	record.PriorRecordHash = expectedPriorSignature
	recomputed, err := canonicalHash(record)
	if err != nil {
		return &kernelerr.IntegrityFailureError{RecordID: record.ID, Detail: err.Error()}
	}
	if recomputed != claimed {
		return &kernelerr.IntegrityFailureError{RecordID: record.ID, Detail: "signature mismatch"}
	}
	return nil
}
