package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/fangate/pkg/webhook"
)

// eventEnvelope is the wire format of the in-memory gateway: a tagged
// envelope carrying the event type, the sender's unique event id, the
// event payload and the instant it occurred.
type eventEnvelope struct {
	Type       EventType `json:"type"`
	ID         string    `json:"id"`
	Data       eventData `json:"data"`
	OccurredAt time.Time `json:"occurred_at"`
}

type eventData struct {
	SubscriptionID string            `json:"subscription_id,omitempty"`
	CustomerID     string            `json:"customer_id,omitempty"`
	PaymentID      string            `json:"payment_id,omitempty"`
	Amount         int64             `json:"amount,omitempty"`
	Currency       string            `json:"currency,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	Metadata       *CheckoutMetadata `json:"metadata,omitempty"`
}

// InMemGateway is a PaymentGateway for tests and local development. It
// fabricates customer and session handles, records every call, and
// verifies webhook deliveries signed with the shared secret, which lets
// the whole checkout-to-reconciliation path run without a network.
type InMemGateway struct {
	secret string

	mu        sync.Mutex
	customers map[uuid.UUID]string
	sessions  []CheckoutRequest
	updates   map[string][]SubscriptionUpdate
	cancels   []string
	refunds   map[string]string // refund id -> refunded payment id
	seq       int

	// Err, when set, is returned by every outbound call. Used to
	// exercise gateway-failure paths.
	Err error
}

// NewInMemGateway creates an in-memory gateway with the given webhook
// shared secret.
func NewInMemGateway(secret string) *InMemGateway {
	return &InMemGateway{
		secret:    secret,
		customers: make(map[uuid.UUID]string),
		updates:   make(map[string][]SubscriptionUpdate),
		refunds:   make(map[string]string),
	}
}

func (g *InMemGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}

	if id, ok := g.customers[req.SubscriberID]; ok {
		return &Customer{ID: id}, nil
	}
	g.seq++
	id := fmt.Sprintf("cus_%06d", g.seq)
	g.customers[req.SubscriberID] = id
	return &Customer{ID: id}, nil
}

func (g *InMemGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}

	g.seq++
	g.sessions = append(g.sessions, req)
	id := fmt.Sprintf("cs_%06d", g.seq)
	return &CheckoutSession{
		ID:        id,
		URL:       "https://checkout.example.com/" + id,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (g *InMemGateway) UpdateSubscription(ctx context.Context, externalSubscriptionID string, req SubscriptionUpdate) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.updates[externalSubscriptionID] = append(g.updates[externalSubscriptionID], req)
	return nil
}

func (g *InMemGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.cancels = append(g.cancels, externalSubscriptionID)
	return nil
}

func (g *InMemGateway) RefundPayment(ctx context.Context, externalPaymentID string, amount int64, reason string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return "", g.Err
	}
	g.seq++
	id := fmt.Sprintf("re_%06d", g.seq)
	g.refunds[id] = externalPaymentID
	return id, nil
}

// VerifyEvent authenticates the delivery against the shared secret and
// parses the tagged envelope. The signature is checked before any
// parsing happens; a failed check surfaces ErrSignatureInvalid and the
// payload is never inspected.
func (g *InMemGateway) VerifyEvent(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if err := webhook.Verify(g.secret, payload, signature, 5*time.Minute); err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}

	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, errors.Join(ErrMalformedEvent, errors.New("envelope is missing id or type"))
	}

	event := &Event{
		ID:             env.ID,
		Type:           env.Type,
		OccurredAt:     env.OccurredAt,
		SubscriptionID: env.Data.SubscriptionID,
		CustomerID:     env.Data.CustomerID,
		PaymentID:      env.Data.PaymentID,
		Amount:         env.Data.Amount,
		Currency:       env.Data.Currency,
		FailureReason:  env.Data.FailureReason,
	}
	if env.Data.Metadata != nil {
		event.Metadata = *env.Data.Metadata
	}
	return event, nil
}

// SignEvent serializes and signs an event the way the real sender
// would, returning the payload and the signature header value. Tests
// use it to drive the webhook path end to end.
func (g *InMemGateway) SignEvent(event *Event) (payload []byte, signature string, err error) {
	env := eventEnvelope{
		Type:       event.Type,
		ID:         event.ID,
		OccurredAt: event.OccurredAt,
		Data: eventData{
			SubscriptionID: event.SubscriptionID,
			CustomerID:     event.CustomerID,
			PaymentID:      event.PaymentID,
			Amount:         event.Amount,
			Currency:       event.Currency,
			FailureReason:  event.FailureReason,
		},
	}
	if event.Metadata != (CheckoutMetadata{}) {
		meta := event.Metadata
		env.Data.Metadata = &meta
	}

	payload, err = json.Marshal(env)
	if err != nil {
		return nil, "", err
	}
	signature, err = webhook.Sign(g.secret, payload, time.Now())
	if err != nil {
		return nil, "", err
	}
	return payload, signature, nil
}

// CustomerID returns the fabricated customer handle for a subscriber,
// or empty string when CreateCustomer was never called for them.
func (g *InMemGateway) CustomerID(subscriberID uuid.UUID) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.customers[subscriberID]
}

// Sessions returns a copy of all checkout session requests received.
func (g *InMemGateway) Sessions() []CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]CheckoutRequest, len(g.sessions))
	copy(out, g.sessions)
	return out
}

// Updates returns all subscription updates received for a handle.
func (g *InMemGateway) Updates(externalSubscriptionID string) []SubscriptionUpdate {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SubscriptionUpdate, len(g.updates[externalSubscriptionID]))
	copy(out, g.updates[externalSubscriptionID])
	return out
}
