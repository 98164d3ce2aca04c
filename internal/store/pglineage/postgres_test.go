package pglineage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestStore_Append_GenesisRecord(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT signature FROM lineage`).
		WillReturnRows(sqlmock.NewRows([]string{"signature"}))
	mock.ExpectExec(`INSERT INTO lineage`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := model.LineageRecord{
		ID:            "lin_1",
		CycleID:       "cycle_1",
		IntentID:      "intent_1",
		DriftDetected: "no_response_48h",
		TotalAttempts: 1,
	}

	signed, err := store.Append(ctx, record)
	require.NoError(t, err)
	require.NotEmpty(t, signed.Signature)
	require.Empty(t, signed.PriorRecordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Append_ChainsToPriorSignature(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT signature FROM lineage`).
		WillReturnRows(sqlmock.NewRows([]string{"signature"}).AddRow("deadbeef"))
	mock.ExpectExec(`INSERT INTO lineage`).
		WillReturnResult(sqlmock.NewResult(2, 1))

	signed, err := store.Append(ctx, model.LineageRecord{ID: "lin_2", CycleID: "cycle_1", IntentID: "intent_1"})
	require.NoError(t, err)
	require.Equal(t, "deadbeef", signed.PriorRecordHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT record_json FROM lineage WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(ctx, "missing")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Escalations_FiltersByTimestamp(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"record_json"}).
		AddRow(`{"id":"lin_3","escalated_to_human":true}`)
	mock.ExpectQuery(`SELECT record_json FROM lineage WHERE escalated_to_human = true AND created_at >= \$1`).
		WithArgs(since).
		WillReturnRows(rows)

	records, err := store.Escalations(ctx, &since)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "lin_3", records[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
