package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// PostgresTargetStore is the read path onto targets. Target CRUD itself is
// an external collaborator's concern (spec §1); this store only needs to
// discover active targets and react to edits.
type PostgresTargetStore struct {
	db *sqlx.DB
}

func NewPostgresTargetStore(db *sqlx.DB) *PostgresTargetStore {
	return &PostgresTargetStore{db: db}
}

type targetRow struct {
	ID                string         `db:"id"`
	OwnerID           string         `db:"owner_id"`
	Name              string         `db:"name"`
	URL               string         `db:"url"`
	Kind              string         `db:"kind"`
	IntervalSec       int            `db:"interval_sec"`
	TimeoutMs         int            `db:"timeout_ms"`
	ExpectedStatus    int            `db:"expected_status"`
	Active            bool           `db:"active"`
	Regions           pq.StringArray `db:"regions"`
	AlertThreshold    int            `db:"alert_threshold"`
	RecoveryThreshold int            `db:"recovery_threshold"`
	AlertContacts     pq.StringArray `db:"alert_contacts"`
	OwnerEmail        string         `db:"owner_email"`
	CreatedAt         sql.NullTime   `db:"created_at"`
	UpdatedAt         sql.NullTime   `db:"updated_at"`
}

func (r targetRow) toDomain() *monitoring.Target {
	return &monitoring.Target{
		ID:                r.ID,
		OwnerID:           r.OwnerID,
		Name:              r.Name,
		URL:               r.URL,
		Kind:              monitoring.TargetKind(r.Kind),
		IntervalSec:       r.IntervalSec,
		TimeoutMs:         r.TimeoutMs,
		ExpectedStatus:    r.ExpectedStatus,
		Active:            r.Active,
		Regions:           []string(r.Regions),
		AlertThreshold:    r.AlertThreshold,
		RecoveryThreshold: r.RecoveryThreshold,
		AlertContacts:     []string(r.AlertContacts),
		OwnerEmail:        r.OwnerEmail,
		CreatedAt:         r.CreatedAt.Time,
		UpdatedAt:         r.UpdatedAt.Time,
	}
}

func (s *PostgresTargetStore) GetTarget(ctx context.Context, id string) (*monitoring.Target, error) {
	var row targetRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM targets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engerrors.NotFound("target", id)
	}
	if err != nil {
		return nil, engerrors.Unavailable("get_target", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresTargetStore) ListActiveTargets(ctx context.Context) ([]*monitoring.Target, error) {
	var rows []targetRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM targets WHERE active = TRUE`)
	if err != nil {
		return nil, engerrors.Unavailable("list_active_targets", err)
	}
	out := make([]*monitoring.Target, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// Snapshot satisfies ports.TargetSnapshotSource, feeding the Scheduler's
// versioned in-memory cache (spec §5).
func (s *PostgresTargetStore) Snapshot(ctx context.Context) ([]*monitoring.Target, error) {
	return s.ListActiveTargets(ctx)
}
