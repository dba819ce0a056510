package entitlement

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/fangate/pkg/pg"
)

// PGIdentityStore implements IdentityResolver and CustomerDirectory on
// top of the accounts table. It is the standalone deployment's identity
// source; platforms embedding the engine usually plug in their own user
// service instead.
type PGIdentityStore struct {
	pool *pgxpool.Pool
}

// NewPGIdentityStore creates a PostgreSQL-backed identity store.
// It panics on nil pool because the store cannot function without it.
func NewPGIdentityStore(pool *pgxpool.Pool) *PGIdentityStore {
	if pool == nil {
		panic("pool is required")
	}
	return &PGIdentityStore{pool: pool}
}

func (s *PGIdentityStore) Resolve(ctx context.Context, id uuid.UUID) (*Identity, error) {
	var identity Identity
	err := s.pool.QueryRow(ctx, `
		SELECT id, role, email, name FROM accounts WHERE id = $1`, id).
		Scan(&identity.ID, &identity.Role, &identity.Email, &identity.Name)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrCreatorNotFound
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return &identity, nil
}

func (s *PGIdentityStore) ExternalCustomerID(ctx context.Context, subscriberID uuid.UUID) (string, error) {
	var handle string
	err := s.pool.QueryRow(ctx, `
		SELECT external_customer_id FROM accounts WHERE id = $1`, subscriberID).
		Scan(&handle)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return "", nil
		}
		return "", fmt.Errorf("get customer handle: %w", err)
	}
	return handle, nil
}

func (s *PGIdentityStore) SetExternalCustomerID(ctx context.Context, subscriberID uuid.UUID, externalCustomerID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE accounts SET external_customer_id = $2, updated_at = NOW()
		WHERE id = $1`, subscriberID, externalCustomerID)
	if err != nil {
		return fmt.Errorf("set customer handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCreatorNotFound
	}
	return nil
}
