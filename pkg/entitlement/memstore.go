package entitlement

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type pairKey struct {
	subscriber uuid.UUID
	creator    uuid.UUID
}

// InMemStore is a mutex-guarded SubscriptionStore for tests and local
// development. It enforces the same invariants a durable implementation
// must: one access-granting record per pair at insert time and
// version-checked updates. All records are deep-copied on the way in
// and out so callers never share ledger slices with the store.
type InMemStore struct {
	mu           sync.RWMutex
	byID         map[uuid.UUID]*Subscription
	byExternal   map[string]uuid.UUID
	reservations map[pairKey]time.Time

	now func() time.Time
}

// NewInMemStore returns an empty in-memory store.
func NewInMemStore() *InMemStore {
	return &InMemStore{
		byID:         make(map[uuid.UUID]*Subscription),
		byExternal:   make(map[string]uuid.UUID),
		reservations: make(map[pairKey]time.Time),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return sub.clone(), nil
}

func (s *InMemStore) GetByExternalID(ctx context.Context, externalSubscriptionID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalSubscriptionID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s.byID[id].clone(), nil
}

func (s *InMemStore) GetActiveByPair(ctx context.Context, subscriberID, creatorID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub := s.activeByPairLocked(subscriberID, creatorID); sub != nil {
		return sub.clone(), nil
	}
	return nil, ErrSubscriptionNotFound
}

func (s *InMemStore) activeByPairLocked(subscriberID, creatorID uuid.UUID) *Subscription {
	for _, sub := range s.byID {
		if sub.SubscriberID == subscriberID && sub.CreatorID == creatorID && sub.State.GrantsAccess() {
			return sub
		}
	}
	return nil
}

func (s *InMemStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.State.GrantsAccess() {
		if existing := s.activeByPairLocked(sub.SubscriberID, sub.CreatorID); existing != nil {
			return ErrSubscriptionExists
		}
	}
	if _, exists := s.byID[sub.ID]; exists {
		return ErrSubscriptionExists
	}
	if sub.ExternalSubscriptionID != "" {
		if _, exists := s.byExternal[sub.ExternalSubscriptionID]; exists {
			return ErrSubscriptionExists
		}
	}

	stored := sub.clone()
	stored.Version = 1
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.byID[stored.ID] = stored
	if stored.ExternalSubscriptionID != "" {
		s.byExternal[stored.ExternalSubscriptionID] = stored.ID
	}

	sub.Version = stored.Version
	sub.CreatedAt = stored.CreatedAt
	sub.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *InMemStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if current.Version != sub.Version {
		return ErrVersionConflict
	}

	stored := sub.clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	stored.UpdatedAt = s.now()

	// Immutable identity fields keep their original values.
	stored.SubscriberID = current.SubscriberID
	stored.CreatorID = current.CreatorID

	s.byID[sub.ID] = stored
	if current.ExternalSubscriptionID != stored.ExternalSubscriptionID {
		delete(s.byExternal, current.ExternalSubscriptionID)
	}
	if stored.ExternalSubscriptionID != "" {
		s.byExternal[stored.ExternalSubscriptionID] = stored.ID
	}

	sub.Version = stored.Version
	sub.UpdatedAt = stored.UpdatedAt
	return nil
}

func (s *InMemStore) ListBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.byID {
		if sub.SubscriberID == subscriberID {
			out = append(out, sub.clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemStore) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.byID {
		if sub.CreatorID == creatorID {
			out = append(out, sub.clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemStore) ReserveCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey{subscriber: subscriberID, creator: creatorID}
	now := s.now()
	if expiry, held := s.reservations[key]; held && now.Before(expiry) {
		return ErrCheckoutInProgress
	}
	s.reservations[key] = now.Add(ttl)
	return nil
}

func (s *InMemStore) ReleaseCheckout(ctx context.Context, subscriberID, creatorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reservations, pairKey{subscriber: subscriberID, creator: creatorID})
	return nil
}

func sortNewestFirst(subs []*Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
}

// InMemDirectory is an in-memory CustomerDirectory.
type InMemDirectory struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]string
}

// NewInMemDirectory returns an empty in-memory customer directory.
func NewInMemDirectory() *InMemDirectory {
	return &InMemDirectory{handles: make(map[uuid.UUID]string)}
}

func (d *InMemDirectory) ExternalCustomerID(ctx context.Context, subscriberID uuid.UUID) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handles[subscriberID], nil
}

func (d *InMemDirectory) SetExternalCustomerID(ctx context.Context, subscriberID uuid.UUID, externalCustomerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handles[subscriberID] = externalCustomerID
	return nil
}

// InMemIdentities is an in-memory IdentityResolver seeded with known
// principals.
type InMemIdentities struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]Identity
}

// NewInMemIdentities returns a resolver seeded with the given identities.
func NewInMemIdentities(identities ...Identity) *InMemIdentities {
	byID := make(map[uuid.UUID]Identity, len(identities))
	for _, id := range identities {
		byID[id.ID] = id
	}
	return &InMemIdentities{identities: byID}
}

// Add registers another identity.
func (r *InMemIdentities) Add(identity Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.ID] = identity
}

func (r *InMemIdentities) Resolve(ctx context.Context, id uuid.UUID) (*Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.identities[id]
	if !ok {
		return nil, ErrCreatorNotFound
	}
	return &identity, nil
}
