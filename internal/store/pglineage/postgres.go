// Package pglineage is the Postgres-backed Decision Lineage Ledger store,
// matching the literal schema in spec §6.
package pglineage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/kernelerr"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/model"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS lineage (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	intent_id TEXT NOT NULL,
	drift_detected TEXT,
	drift_severity INTEGER,
	total_attempts INTEGER,
	escalated_to_human BOOLEAN NOT NULL DEFAULT false,
	execution_success BOOLEAN NOT NULL DEFAULT false,
	final_approved_proposal TEXT,
	resolved_at TIMESTAMPTZ,
	resolution_duration_seconds DOUBLE PRECISION,
	priority_override_applied BOOLEAN NOT NULL DEFAULT false,
	deprioritized_intent TEXT,
	signature TEXT NOT NULL,
	prior_record_hash TEXT,
	record_json TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lineage_cycle_id ON lineage (cycle_id);
CREATE INDEX IF NOT EXISTS idx_lineage_intent_id ON lineage (intent_id);
CREATE INDEX IF NOT EXISTS idx_lineage_escalated ON lineage (escalated_to_human);
`

// Store is the Postgres-backed ledger.Store implementation. Appends are
// serialized with an in-process mutex: a single writer preserves the hash
// chain even though Postgres itself allows concurrent connections.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New wraps an existing *sql.DB (lib/pq driver) as a lineage Store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a new Postgres connection and wraps it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pglineage: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pglineage: ping: %w", err)
	}
	return New(db), nil
}

// Init creates the lineage table and indexes if they do not already exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append signs the record against the tail of the chain and durably
// inserts it within the same critical section, so no concurrent Append can
// observe a stale tail.
func (s *Store) Append(ctx context.Context, record model.LineageRecord) (model.LineageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var priorSig sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT signature FROM lineage ORDER BY created_at DESC LIMIT 1`).Scan(&priorSig)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.LineageRecord{}, fmt.Errorf("pglineage: query tail: %w", err)
	}

	signed, err := ledger.Sign(record, priorSig.String)
	if err != nil {
		return model.LineageRecord{}, err
	}
	if signed.CreatedAt.IsZero() {
		signed.CreatedAt = time.Now().UTC()
	}

	recordJSON, err := json.Marshal(signed)
	if err != nil {
		return model.LineageRecord{}, fmt.Errorf("pglineage: marshal record_json: %w", err)
	}

	var finalApproved string
	if signed.FinalApprovedProposal != nil {
		b, _ := json.Marshal(signed.FinalApprovedProposal)
		finalApproved = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lineage (
			id, cycle_id, intent_id, drift_detected, drift_severity, total_attempts,
			escalated_to_human, execution_success, final_approved_proposal,
			resolved_at, resolution_duration_seconds, priority_override_applied,
			deprioritized_intent, signature, prior_record_hash, record_json, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`,
		signed.ID, signed.CycleID, signed.IntentID, signed.DriftDetected, signed.DriftSeverity, signed.TotalAttempts,
		signed.EscalatedToHuman, signed.ExecutionSuccess, nullIfEmpty(finalApproved),
		signed.ResolvedAt, resolutionSeconds(signed), signed.PriorityOverrideApplied,
		nullIfEmpty(signed.DeprioritizedIntent), signed.Signature, nullIfEmpty(signed.PriorRecordHash),
		string(recordJSON), signed.CreatedAt,
	)
	if err != nil {
		return model.LineageRecord{}, fmt.Errorf("pglineage: insert: %w", err)
	}
	return signed, nil
}

func resolutionSeconds(r model.LineageRecord) sql.NullFloat64 {
	if r.ResolvedAt == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: r.ResolvedAt.Sub(r.CreatedAt).Seconds(), Valid: true}
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Get fetches one record by id, deserialized from record_json (the source
// of truth; scalar columns are projections for query paths).
func (s *Store) Get(ctx context.Context, id string) (model.LineageRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM lineage WHERE id = $1`, id).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LineageRecord{}, fmt.Errorf("pglineage: record %s not found", id)
		}
		return model.LineageRecord{}, err
	}
	return decodeRecord(recordJSON)
}

func (s *Store) ByCycle(ctx context.Context, cycleID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE cycle_id = $1 ORDER BY created_at ASC`, cycleID)
}

func (s *Store) ByIntent(ctx context.Context, intentID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE intent_id = $1 ORDER BY created_at ASC`, intentID)
}

func (s *Store) ByEntity(ctx context.Context, entityID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE record_json LIKE '%'||$1||'%' ORDER BY created_at ASC`, entityID)
}

func (s *Store) Escalations(ctx context.Context, since *time.Time) ([]model.LineageRecord, error) {
	if since == nil {
		return s.queryWhere(ctx, `WHERE escalated_to_human = true ORDER BY created_at DESC`)
	}
	return s.queryWhere(ctx, `WHERE escalated_to_human = true AND created_at >= $1 ORDER BY created_at DESC`, *since)
}

func (s *Store) Recent(ctx context.Context, limit int) ([]model.LineageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryWhere(ctx, `ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *Store) queryWhere(ctx context.Context, clause string, args ...any) ([]model.LineageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record_json FROM lineage `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.LineageRecord
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(recordJSON)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// VerifyChainIntegrity recomputes every record's signature in creation
// order and checks each prior_record_hash link. Never called during normal
// operation; only on demand.
func (s *Store) VerifyChainIntegrity(ctx context.Context) (bool, error) {
	records, err := s.queryWhere(ctx, `ORDER BY created_at ASC`)
	if err != nil {
		return false, err
	}
	prior := ""
	for _, r := range records {
		if err := ledger.VerifyRecord(r, prior); err != nil {
			var integrityErr *kernelerr.IntegrityFailureError
			if errors.As(err, &integrityErr) {
				return false, nil
			}
			return false, err
		}
		prior = r.Signature
	}
	return true, nil
}

func decodeRecord(recordJSON string) (model.LineageRecord, error) {
	var rec model.LineageRecord
	if err := json.Unmarshal([]byte(recordJSON), &rec); err != nil {
		return model.LineageRecord{}, fmt.Errorf("pglineage: corrupt record_json: %w", err)
	}
	return rec, nil
}
