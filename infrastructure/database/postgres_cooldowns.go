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

// PostgresCooldownStore is the source of truth for the cooldown index; the
// Submission Gateway fronts it with a Redis cache (infrastructure/pubsub)
// so the hot path rarely hits Postgres.
type PostgresCooldownStore struct {
	db *sqlx.DB
}

func NewPostgresCooldownStore(db *sqlx.DB) *PostgresCooldownStore {
	return &PostgresCooldownStore{db: db}
}

func (s *PostgresCooldownStore) Get(ctx context.Context, proberID, targetID string) (*monitoring.CooldownIndex, error) {
	var lastSubmitted time.Time
	err := s.db.GetContext(ctx, &lastSubmitted, `
		SELECT last_submitted FROM cooldowns WHERE prober_id = $1 AND target_id = $2`, proberID, targetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, engerrors.Unavailable("get_cooldown", err)
	}
	return &monitoring.CooldownIndex{ProberID: proberID, TargetID: targetID, LastSubmitted: lastSubmitted}, nil
}

func (s *PostgresCooldownStore) Upsert(ctx context.Context, proberID, targetID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cooldowns (prober_id, target_id, last_submitted) VALUES ($1, $2, $3)
		ON CONFLICT (prober_id, target_id) DO UPDATE SET last_submitted = EXCLUDED.last_submitted`,
		proberID, targetID, at)
	if err != nil {
		return engerrors.Unavailable("upsert_cooldown", err)
	}
	return nil
}

func (s *PostgresCooldownStore) ListEligibleTargetIDs(ctx context.Context, proberID string, allTargetIDs []string, cooldown time.Duration) ([]string, error) {
	if len(allTargetIDs) == 0 {
		return nil, nil
	}

	var onCooldown []string
	err := s.db.SelectContext(ctx, &onCooldown, `
		SELECT target_id FROM cooldowns
		WHERE prober_id = $1 AND target_id = ANY($2) AND last_submitted > $3`,
		proberID, pq.Array(allTargetIDs), time.Now().Add(-cooldown))
	if err != nil {
		return nil, engerrors.Unavailable("list_eligible_targets", err)
	}

	onCooldownSet := make(map[string]bool, len(onCooldown))
	for _, id := range onCooldown {
		onCooldownSet[id] = true
	}

	eligible := make([]string, 0, len(allTargetIDs))
	for _, id := range allTargetIDs {
		if !onCooldownSet[id] {
			eligible = append(eligible, id)
		}
	}
	return eligible, nil
}
