package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"ichat-sync/internal/models"
)

// SubscriptionRepository stores push subscription records.
type SubscriptionRepository interface {
	Save(ctx context.Context, userID string, sub models.PushSubscriptionRecord) (models.PushSubscriptionRecord, error)
	ListForUser(ctx context.Context, userID string) ([]models.PushSubscriptionRecord, error)
}

// SubscriptionRepo is a sqlx-backed repository.
type SubscriptionRepo struct {
	db *sqlx.DB
}

// NewSubscriptionRepo constructs SubscriptionRepo.
func NewSubscriptionRepo(db *sqlx.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

type subscriptionRow struct {
	ID        string          `db:"id"`
	UserID    string          `db:"user_id"`
	Endpoint  string          `db:"endpoint"`
	Keys      json.RawMessage `db:"keys"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r subscriptionRow) record() (models.PushSubscriptionRecord, error) {
	var keys map[string]string
	if len(r.Keys) > 0 {
		if err := json.Unmarshal(r.Keys, &keys); err != nil {
			return models.PushSubscriptionRecord{}, err
		}
	}
	return models.PushSubscriptionRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		Endpoint:  r.Endpoint,
		Keys:      keys,
		CreatedAt: r.CreatedAt,
	}, nil
}

// Save upserts a subscription for the user and endpoint pair. Re-registering
// the same endpoint refreshes its keys instead of duplicating the record.
func (r *SubscriptionRepo) Save(ctx context.Context, userID string, sub models.PushSubscriptionRecord) (models.PushSubscriptionRecord, error) {
	keys, err := json.Marshal(sub.Keys)
	if err != nil {
		return models.PushSubscriptionRecord{}, err
	}

	var row subscriptionRow
	err = r.db.GetContext(ctx, &row,
		`INSERT INTO push_subscriptions (id, user_id, endpoint, keys)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (user_id, endpoint) DO UPDATE SET keys = EXCLUDED.keys
         RETURNING id, user_id, endpoint, keys, created_at`,
		uuid.NewString(), userID, sub.Endpoint, keys)
	if err != nil {
		return models.PushSubscriptionRecord{}, err
	}
	return row.record()
}

// ListForUser returns the user's registered subscriptions.
func (r *SubscriptionRepo) ListForUser(ctx context.Context, userID string) ([]models.PushSubscriptionRecord, error) {
	var rows []subscriptionRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, endpoint, keys, created_at
         FROM push_subscriptions WHERE user_id=$1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.PushSubscriptionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
