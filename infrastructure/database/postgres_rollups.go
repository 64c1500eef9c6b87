package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"
)

// PostgresRollupStore persists the Stats View's precomputed DayRollups
// (spec §4.7), populated by the daily rollup job in engine/stats.
type PostgresRollupStore struct {
	db *sqlx.DB
}

func NewPostgresRollupStore(db *sqlx.DB) *PostgresRollupStore {
	return &PostgresRollupStore{db: db}
}

type rollupRow struct {
	TargetID      string  `db:"target_id"`
	Date          string  `db:"date"`
	TotalChecks   int     `db:"total_checks"`
	Successful    int     `db:"successful"`
	UptimePct     float64 `db:"uptime_pct"`
	AvgResponseMs float64 `db:"avg_response_ms"`
}

func (r rollupRow) toDomain() monitoring.DayRollup {
	return monitoring.DayRollup{
		Date:          r.Date,
		TotalChecks:   r.TotalChecks,
		Successful:    r.Successful,
		UptimePct:     r.UptimePct,
		AvgResponseMs: r.AvgResponseMs,
	}
}

func (s *PostgresRollupStore) SaveRollup(ctx context.Context, targetID string, rollup monitoring.DayRollup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO day_rollups (target_id, date, total_checks, successful, uptime_pct, avg_response_ms)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (target_id, date) DO UPDATE SET
			total_checks = EXCLUDED.total_checks,
			successful = EXCLUDED.successful,
			uptime_pct = EXCLUDED.uptime_pct,
			avg_response_ms = EXCLUDED.avg_response_ms`,
		targetID, rollup.Date, rollup.TotalChecks, rollup.Successful, rollup.UptimePct, rollup.AvgResponseMs)
	if err != nil {
		return engerrors.Unavailable("save_rollup", err)
	}
	return nil
}

func (s *PostgresRollupStore) ListRollups(ctx context.Context, targetID string, since, until time.Time) ([]monitoring.DayRollup, error) {
	var rows []rollupRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM day_rollups
		WHERE target_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`,
		targetID, since.Format("2006-01-02"), until.Format("2006-01-02"))
	if err != nil {
		return nil, engerrors.Unavailable("list_rollups", err)
	}
	out := make([]monitoring.DayRollup, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
