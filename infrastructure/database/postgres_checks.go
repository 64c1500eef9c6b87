package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	engerrors "github.com/upweb-network/monitor-engine/infrastructure/errors"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// PostgresCheckStore owns all writes to checks. Checks are immutable once
// written except for the one-shot PaymentSettled flip (spec §3).
type PostgresCheckStore struct {
	db *sqlx.DB
}

func NewPostgresCheckStore(db *sqlx.DB) *PostgresCheckStore {
	return &PostgresCheckStore{db: db}
}

type checkRow struct {
	ID                string          `db:"id"`
	TargetID          string          `db:"target_id"`
	OwnerID           string          `db:"owner_id"`
	Success           bool            `db:"success"`
	StatusCode        int             `db:"status_code"`
	ResponseTimeMs    int64           `db:"response_time_ms"`
	ErrorKind         string          `db:"error_kind"`
	ErrorMessage      string          `db:"error_message"`
	Region            string          `db:"region"`
	LocationCity      string          `db:"location_city"`
	LocationCountry   string          `db:"location_country"`
	LocationLat       sql.NullFloat64 `db:"location_lat"`
	LocationLon       sql.NullFloat64 `db:"location_lon"`
	LocationIP        string          `db:"location_ip"`
	ProberID          string          `db:"prober_id"`
	Timestamp         time.Time       `db:"timestamp"`
	PaymentSettled    bool            `db:"payment_settled"`
	PaymentSettleAt   sql.NullTime    `db:"payment_settle_at"`
}

func (r checkRow) toDomain() *monitoring.Check {
	c := &monitoring.Check{
		ID:             r.ID,
		TargetID:       r.TargetID,
		OwnerID:        r.OwnerID,
		Success:        r.Success,
		StatusCode:     r.StatusCode,
		ResponseTimeMs: r.ResponseTimeMs,
		ErrorKind:      monitoring.ErrorKind(r.ErrorKind),
		ErrorMessage:   r.ErrorMessage,
		Region:         r.Region,
		ProberID:       r.ProberID,
		Timestamp:      r.Timestamp,
		PaymentSettled: r.PaymentSettled,
	}
	if r.PaymentSettleAt.Valid {
		c.PaymentSettleAt = r.PaymentSettleAt.Time
	}
	c.LocationInfo = &monitoring.LocationInfo{
		City:      r.LocationCity,
		Country:   r.LocationCountry,
		IP:        r.LocationIP,
		HasCoords: r.LocationLat.Valid && r.LocationLon.Valid,
	}
	if r.LocationLat.Valid {
		c.LocationInfo.Latitude = r.LocationLat.Float64
	}
	if r.LocationLon.Valid {
		c.LocationInfo.Longitude = r.LocationLon.Float64
	}
	return c
}

func (s *PostgresCheckStore) CreateCheck(ctx context.Context, c *monitoring.Check) error {
	var loc monitoring.LocationInfo
	if c.LocationInfo != nil {
		loc = *c.LocationInfo
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (
			id, target_id, owner_id, success, status_code, response_time_ms,
			error_kind, error_message, region, location_city, location_country,
			location_lat, location_lon, location_ip, prober_id, "timestamp",
			payment_settled, payment_settle_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		c.ID, c.TargetID, c.OwnerID, c.Success, c.StatusCode, c.ResponseTimeMs,
		string(c.ErrorKind), c.ErrorMessage, c.Region, loc.City, loc.Country,
		nullableFloat(loc.HasCoords, loc.Latitude), nullableFloat(loc.HasCoords, loc.Longitude), loc.IP,
		c.ProberID, c.Timestamp, c.PaymentSettled, nullableTime(c.PaymentSettleAt),
	)
	if err != nil {
		return engerrors.Unavailable("create_check", err)
	}
	return nil
}

func (s *PostgresCheckStore) LatestCheck(ctx context.Context, targetID string) (*monitoring.Check, error) {
	var row checkRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM checks WHERE target_id = $1 ORDER BY "timestamp" DESC LIMIT 1`, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engerrors.NotFound("check", targetID)
	}
	if err != nil {
		return nil, engerrors.Unavailable("latest_check", err)
	}
	return row.toDomain(), nil
}

func (s *PostgresCheckStore) ListChecks(ctx context.Context, targetID string, since, until time.Time) ([]*monitoring.Check, error) {
	var rows []checkRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM checks
		WHERE target_id = $1 AND "timestamp" >= $2 AND "timestamp" <= $3
		ORDER BY "timestamp" ASC`, targetID, since, until)
	if err != nil {
		return nil, engerrors.Unavailable("list_checks", err)
	}
	out := make([]*monitoring.Check, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *PostgresCheckStore) MarkPaymentSettled(ctx context.Context, checkID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checks SET payment_settled = TRUE, payment_settle_at = now()
		WHERE id = $1 AND payment_settled = FALSE`, checkID)
	if err != nil {
		return engerrors.Unavailable("mark_payment_settled", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Already settled or unknown check; caller treats this as a no-op
		// per the ledger's idempotency design (spec §4.6, §9).
		return nil
	}
	return nil
}

func (s *PostgresCheckStore) LastTimestamp(ctx context.Context, targetID, region string) (time.Time, bool, error) {
	var ts time.Time
	err := s.db.GetContext(ctx, &ts, `
		SELECT "timestamp" FROM checks
		WHERE target_id = $1 AND region = $2
		ORDER BY "timestamp" DESC LIMIT 1`, targetID, region)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, engerrors.Unavailable("last_timestamp", err)
	}
	return ts, true, nil
}

func nullableFloat(has bool, v float64) interface{} {
	if !has {
		return nil
	}
	return v
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
