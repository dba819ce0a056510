package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/fangate/pkg/pg"
)

// PGStore implements SubscriptionStore backed by PostgreSQL.
//
// One-active-per-pair is enforced by a partial unique index, ledger
// idempotency by a unique constraint on (subscription_id,
// external_payment_id), and optimistic concurrency by a version-checked
// UPDATE. The ledger is append-only: Update inserts entries it has not
// seen before and never rewrites existing ones.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed subscription store.
// It panics on nil pool because the store cannot function without it.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("pool is required")
	}
	return &PGStore{pool: pool}
}

const subscriptionColumns = `id, subscriber_id, creator_id, tier, billing_cycle,
	price_amount, price_currency, state, start_date, end_date, renewal_date,
	auto_renew, external_subscription_id, external_customer_id,
	cancelled_at, cancellation_reason, event_watermark, version,
	created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return errors.New("subscription is required")
	}
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}

	now := time.Now().UTC()
	sub.Version = 1
	sub.CreatedAt = now
	sub.UpdatedAt = now

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		sub.ID, sub.SubscriberID, sub.CreatorID, sub.Tier, sub.BillingCycle,
		sub.Price.Amount, sub.Price.Currency, sub.State,
		sub.StartDate, sub.EndDate, sub.RenewalDate,
		sub.AutoRenew, sub.ExternalSubscriptionID, sub.ExternalCustomerID,
		sub.CancelledAt, sub.CancellationReason, sub.EventWatermark, sub.Version,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrSubscriptionExists
		}
		return fmt.Errorf("insert subscription: %w", err)
	}

	if err := insertLedger(ctx, tx, sub.ID, sub.Ledger); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

// Update persists the record only when the caller holds the current
// version. A lost race surfaces as ErrVersionConflict so the caller can
// re-read and retry. Subscriber, creator and creation time are fixed at
// insert and never rewritten.
func (s *PGStore) Update(ctx context.Context, sub *Subscription) error {
	if sub == nil {
		return errors.New("subscription is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx, `
		UPDATE subscriptions SET
			tier=$2, billing_cycle=$3, price_amount=$4, price_currency=$5,
			state=$6, start_date=$7, end_date=$8, renewal_date=$9,
			auto_renew=$10, external_subscription_id=$11, external_customer_id=$12,
			cancelled_at=$13, cancellation_reason=$14, event_watermark=$15,
			version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$16`,
		sub.ID, sub.Tier, sub.BillingCycle, sub.Price.Amount, sub.Price.Currency,
		sub.State, sub.StartDate, sub.EndDate, sub.RenewalDate,
		sub.AutoRenew, sub.ExternalSubscriptionID, sub.ExternalCustomerID,
		sub.CancelledAt, sub.CancellationReason, sub.EventWatermark,
		sub.Version)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE id=$1)`, sub.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check subscription existence: %w", err)
		}
		if !exists {
			return ErrSubscriptionNotFound
		}
		return ErrVersionConflict
	}

	if err := insertLedger(ctx, tx, sub.ID, sub.Ledger); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}

	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (s *PGStore) GetByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error) {
	if externalSubscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}
	return s.getOne(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = $1`, externalSubscriptionID)
}

func (s *PGStore) GetActiveByPair(ctx context.Context, subscriberID, creatorID uuid.UUID) (*Subscription, error) {
	return s.getOne(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE subscriber_id = $1 AND creator_id = $2 AND state = $3`,
		subscriberID, creatorID, StateActive)
}

func (s *PGStore) ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]*Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE subscriber_id = $1 ORDER BY created_at DESC`, subscriberID)
}

func (s *PGStore) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*Subscription, error) {
	return s.list(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE creator_id = $1 ORDER BY created_at DESC`, creatorID)
}

// ReserveCheckout takes the pair slot for the duration of a hosted
// checkout. An unexpired reservation held by an earlier call wins.
func (s *PGStore) ReserveCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID, ttl time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO checkout_reservations (subscriber_id, creator_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (subscriber_id, creator_id)
		DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE checkout_reservations.expires_at < NOW()`,
		subscriberID, creatorID, time.Now().UTC().Add(ttl))
	if err != nil {
		return fmt.Errorf("reserve checkout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCheckoutInProgress
	}
	return nil
}

func (s *PGStore) ReleaseCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM checkout_reservations WHERE subscriber_id = $1 AND creator_id = $2`,
		subscriberID, creatorID)
	if err != nil {
		return fmt.Errorf("release checkout: %w", err)
	}
	return nil
}

func (s *PGStore) getOne(ctx context.Context, query string, args ...any) (*Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscription: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query subscription: %w", err)
		}
		return nil, ErrSubscriptionNotFound
	}
	sub, err := scanSubscription(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()

	if err := s.loadLedgers(ctx, map[uuid.UUID]*Subscription{sub.ID: sub}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]*Subscription, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*Subscription
	byID := make(map[uuid.UUID]*Subscription)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
		byID[sub.ID] = sub
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	rows.Close()

	if err := s.loadLedgers(ctx, byID); err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *PGStore) loadLedgers(ctx context.Context, byID map[uuid.UUID]*Subscription) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT subscription_id, amount, currency, status, external_payment_id,
			occurred_at, failure_reason
		FROM subscription_ledger
		WHERE subscription_id = ANY($1)
		ORDER BY subscription_id, position`, ids)
	if err != nil {
		return fmt.Errorf("load ledgers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var subID uuid.UUID
		var entry PaymentEntry
		if err := rows.Scan(&subID, &entry.Amount, &entry.Currency, &entry.Status,
			&entry.ExternalPaymentID, &entry.OccurredAt, &entry.FailureReason); err != nil {
			return fmt.Errorf("scan ledger entry: %w", err)
		}
		if sub, ok := byID[subID]; ok {
			sub.Ledger = append(sub.Ledger, entry)
		}
	}
	return rows.Err()
}

// insertLedger appends unseen ledger entries. Entries already persisted
// for the same external payment ID are skipped, which keeps replayed
// updates idempotent at the storage level as well.
func insertLedger(ctx context.Context, tx pgx.Tx, subscriptionID uuid.UUID, ledger []PaymentEntry) error {
	for i, entry := range ledger {
		_, err := tx.Exec(ctx, `
			INSERT INTO subscription_ledger (subscription_id, position, amount,
				currency, status, external_payment_id, occurred_at, failure_reason)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (subscription_id, external_payment_id) DO NOTHING`,
			subscriptionID, i, entry.Amount, entry.Currency, entry.Status,
			entry.ExternalPaymentID, entry.OccurredAt, entry.FailureReason)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}
	return nil
}

func scanSubscription(rows pgx.Rows) (*Subscription, error) {
	var sub Subscription
	err := rows.Scan(&sub.ID, &sub.SubscriberID, &sub.CreatorID, &sub.Tier, &sub.BillingCycle,
		&sub.Price.Amount, &sub.Price.Currency, &sub.State,
		&sub.StartDate, &sub.EndDate, &sub.RenewalDate,
		&sub.AutoRenew, &sub.ExternalSubscriptionID, &sub.ExternalCustomerID,
		&sub.CancelledAt, &sub.CancellationReason, &sub.EventWatermark, &sub.Version,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &sub, nil
}
