package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestPostgresTargetStoreGetTargetNotFound(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewPostgresTargetStore(db)

	mock.ExpectQuery(`SELECT \* FROM targets WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.GetTarget(context.Background(), "missing")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTargetStoreGetTargetFound(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewPostgresTargetStore(db)

	cols := []string{
		"id", "owner_id", "name", "url", "kind", "interval_sec", "timeout_ms",
		"expected_status", "active", "regions", "alert_threshold",
		"recovery_threshold", "alert_contacts", "owner_email", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"t1", "owner-1", "Example", "https://example.com", "https", 60, 5000,
		200, true, "{us-east}", 3, 1, "{}", "owner@example.com", nil, nil,
	)
	mock.ExpectQuery(`SELECT \* FROM targets WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(rows)

	target, err := store.GetTarget(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", target.ID)
	assert.True(t, target.Active)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTargetStoreListActiveTargets(t *testing.T) {
	db, mock := newMockStore(t)
	store := NewPostgresTargetStore(db)

	cols := []string{
		"id", "owner_id", "name", "url", "kind", "interval_sec", "timeout_ms",
		"expected_status", "active", "regions", "alert_threshold",
		"recovery_threshold", "alert_contacts", "owner_email", "created_at", "updated_at",
	}
	rows := sqlmock.NewRows(cols).AddRow(
		"t1", "owner-1", "Example", "https://example.com", "https", 60, 5000,
		200, true, "{us-east}", 3, 1, "{}", "owner@example.com", nil, nil,
	)
	mock.ExpectQuery(`SELECT \* FROM targets WHERE active = TRUE`).WillReturnRows(rows)

	targets, err := store.ListActiveTargets(context.Background())
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
