package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// PostgresIncidentStore owns all writes to incidents. The "at most one open
// incident per target" invariant (spec §3) is enforced by
// idx_incidents_one_open_per_target; OpenIncident relies on that unique
// index to fail rather than re-deriving the check in application code.
type PostgresIncidentStore struct {
	db *sqlx.DB
}

func NewPostgresIncidentStore(db *sqlx.DB) *PostgresIncidentStore {
	return &PostgresIncidentStore{db: db}
}

type incidentRow struct {
	ID           string       `db:"id"`
	TargetID     string       `db:"target_id"`
	StartCheckID string       `db:"start_check_id"`
	EndCheckID   string       `db:"end_check_id"`
	StartedAt    time.Time    `db:"started_at"`
	ResolvedAt   sql.NullTime `db:"resolved_at"`
	DurationMs   int64        `db:"duration_ms"`
	Reason       string       `db:"reason"`
	Region       string       `db:"region"`
}

func (r incidentRow) toDomain() *monitoring.Incident {
	i := &monitoring.Incident{
		ID:           r.ID,
		TargetID:     r.TargetID,
		StartCheckID: r.StartCheckID,
		EndCheckID:   r.EndCheckID,
		StartedAt:    r.StartedAt,
		DurationMs:   r.DurationMs,
		Reason:       r.Reason,
		Region:       r.Region,
	}
	if r.ResolvedAt.Valid {
		i.ResolvedAt = r.ResolvedAt.Time
	}
	return i
}

func (s *PostgresIncidentStore) OpenIncident(ctx context.Context, i *monitoring.Incident) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incidents (id, target_id, start_check_id, started_at, reason, region)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		i.ID, i.TargetID, i.StartCheckID, i.StartedAt, i.Reason, i.Region)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return engerrors.Conflict("target already has an open incident", 0)
		}
		return engerrors.Unavailable("open_incident", err)
	}
	return nil
}

func (s *PostgresIncidentStore) ResolveIncident(ctx context.Context, incidentID, endCheckID string, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE incidents
		SET end_check_id = $2, resolved_at = $3,
		    duration_ms = EXTRACT(EPOCH FROM ($3::timestamptz - started_at)) * 1000
		WHERE id = $1 AND resolved_at IS NULL`,
		incidentID, endCheckID, resolvedAt,
	)
	if err != nil {
		return engerrors.Unavailable("resolve_incident", err)
	}
	return nil
}

func (s *PostgresIncidentStore) GetOpenIncident(ctx context.Context, targetID string) (*monitoring.Incident, error) {
	var row incidentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM incidents WHERE target_id = $1 AND resolved_at IS NULL`, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, engerrors.Unavailable("get_open_incident", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresIncidentStore) GetIncident(ctx context.Context, id string) (*monitoring.Incident, error) {
	var row incidentRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM incidents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engerrors.NotFound("incident", id)
	}
	if err != nil {
		return nil, engerrors.Unavailable("get_incident", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresIncidentStore) ListIncidents(ctx context.Context, targetID string) ([]*monitoring.Incident, error) {
	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM incidents WHERE target_id = $1 ORDER BY started_at DESC`, targetID)
	if err != nil {
		return nil, engerrors.Unavailable("list_incidents", err)
	}
	out := make([]*monitoring.Incident, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *PostgresIncidentStore) RecentResolved(ctx context.Context, targetID string, limit int) ([]*monitoring.Incident, error) {
	var rows []incidentRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM incidents
		WHERE target_id = $1 AND resolved_at IS NOT NULL
		ORDER BY resolved_at DESC LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, engerrors.Unavailable("recent_resolved", err)
	}
	out := make([]*monitoring.Incident, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
