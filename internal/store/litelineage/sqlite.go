// Package litelineage is the SQLite-backed fallback for Lite Mode: the same
// ledger.Store contract as pglineage, for operators who run without a
// DATABASE_URL configured.
package litelineage

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

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS lineage (
	id TEXT PRIMARY KEY,
	cycle_id TEXT NOT NULL,
	intent_id TEXT NOT NULL,
	drift_detected TEXT,
	drift_severity INTEGER,
	total_attempts INTEGER,
	escalated_to_human INTEGER NOT NULL DEFAULT 0,
	execution_success INTEGER NOT NULL DEFAULT 0,
	final_approved_proposal TEXT,
	resolved_at TEXT,
	resolution_duration_seconds REAL,
	priority_override_applied INTEGER NOT NULL DEFAULT 0,
	deprioritized_intent TEXT,
	signature TEXT NOT NULL,
	prior_record_hash TEXT,
	record_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lineage_cycle_id ON lineage (cycle_id);
CREATE INDEX IF NOT EXISTS idx_lineage_intent_id ON lineage (intent_id);
CREATE INDEX IF NOT EXISTS idx_lineage_escalated ON lineage (escalated_to_human);
`

// Store is the modernc.org/sqlite ledger.Store implementation used when no
// DATABASE_URL is configured. A single file-backed database, one writer at a
// time, same hash-chain guarantee as pglineage.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if absent) a SQLite database file at path and
// initializes the lineage table.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("litelineage: open %s: %w", path, err)
	}
	// SQLite allows only one writer; a single connection avoids
	// SQLITE_BUSY under concurrent appends without needing WAL tuning.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("litelineage: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Append(ctx context.Context, record model.LineageRecord) (model.LineageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var priorSig sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT signature FROM lineage ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&priorSig)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.LineageRecord{}, fmt.Errorf("litelineage: query tail: %w", err)
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
		return model.LineageRecord{}, fmt.Errorf("litelineage: marshal record_json: %w", err)
	}

	var finalApproved string
	if signed.FinalApprovedProposal != nil {
		b, _ := json.Marshal(signed.FinalApprovedProposal)
		finalApproved = string(b)
	}
	var resolvedAt, resolvedSeconds any
	if signed.ResolvedAt != nil {
		resolvedAt = signed.ResolvedAt.UTC().Format(time.RFC3339Nano)
		resolvedSeconds = signed.ResolvedAt.Sub(signed.CreatedAt).Seconds()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lineage (
			id, cycle_id, intent_id, drift_detected, drift_severity, total_attempts,
			escalated_to_human, execution_success, final_approved_proposal,
			resolved_at, resolution_duration_seconds, priority_override_applied,
			deprioritized_intent, signature, prior_record_hash, record_json, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`,
		signed.ID, signed.CycleID, signed.IntentID, signed.DriftDetected, signed.DriftSeverity, signed.TotalAttempts,
		boolToInt(signed.EscalatedToHuman), boolToInt(signed.ExecutionSuccess), nullIfEmpty(finalApproved),
		resolvedAt, resolvedSeconds, boolToInt(signed.PriorityOverrideApplied),
		nullIfEmpty(signed.DeprioritizedIntent), signed.Signature, nullIfEmpty(signed.PriorRecordHash),
		string(recordJSON), signed.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return model.LineageRecord{}, fmt.Errorf("litelineage: insert: %w", err)
	}
	return signed, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func (s *Store) Get(ctx context.Context, id string) (model.LineageRecord, error) {
	var recordJSON string
	err := s.db.QueryRowContext(ctx, `SELECT record_json FROM lineage WHERE id = ?`, id).Scan(&recordJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LineageRecord{}, fmt.Errorf("litelineage: record %s not found", id)
		}
		return model.LineageRecord{}, err
	}
	return decodeRecord(recordJSON)
}

func (s *Store) ByCycle(ctx context.Context, cycleID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE cycle_id = ? ORDER BY created_at ASC, rowid ASC`, cycleID)
}

func (s *Store) ByIntent(ctx context.Context, intentID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE intent_id = ? ORDER BY created_at ASC, rowid ASC`, intentID)
}

func (s *Store) ByEntity(ctx context.Context, entityID string) ([]model.LineageRecord, error) {
	return s.queryWhere(ctx, `WHERE record_json LIKE '%'||?||'%' ORDER BY created_at ASC, rowid ASC`, entityID)
}

func (s *Store) Escalations(ctx context.Context, since *time.Time) ([]model.LineageRecord, error) {
	if since == nil {
		return s.queryWhere(ctx, `WHERE escalated_to_human = 1 ORDER BY created_at DESC, rowid DESC`)
	}
	return s.queryWhere(ctx, `WHERE escalated_to_human = 1 AND created_at >= ? ORDER BY created_at DESC, rowid DESC`,
		since.UTC().Format(time.RFC3339Nano))
}

func (s *Store) Recent(ctx context.Context, limit int) ([]model.LineageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryWhere(ctx, `ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
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

func (s *Store) VerifyChainIntegrity(ctx context.Context) (bool, error) {
	records, err := s.queryWhere(ctx, `ORDER BY created_at ASC, rowid ASC`)
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
		return model.LineageRecord{}, fmt.Errorf("litelineage: corrupt record_json: %w", err)
	}
	return rec, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
