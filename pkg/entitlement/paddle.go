package entitlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds configuration for the Paddle payment gateway.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleGateway implements PaymentGateway on top of the Paddle SDK.
// Paddle hosts the checkout and prorates price changes itself, so the
// adapter stays thin: it translates the engine's requests into SDK
// calls and normalizes webhook notifications into Events.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	config   PaddleConfig
}

// NewPaddleGateway creates a Paddle-backed payment gateway.
func NewPaddleGateway(config PaddleConfig) (*PaddleGateway, error) {
	if config.APIKey == "" {
		return nil, errors.New("paddle API key is required")
	}
	if config.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error

	switch strings.ToLower(config.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(config.APIKey)
	case "production", "":
		client, err = paddle.New(config.APIKey)
	default:
		return nil, fmt.Errorf("invalid paddle environment: %s", config.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(config.WebhookSecret),
		config:   config,
	}, nil
}

// CreateCustomer registers the subscriber as a Paddle customer. The
// subscriber ID travels in custom data so webhook payloads can be tied
// back without a lookup.
func (g *PaddleGateway) CreateCustomer(ctx context.Context, req CustomerRequest) (*Customer, error) {
	if req.Email == "" {
		return nil, errors.New("customer email is required")
	}

	customer, err := g.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email: req.Email,
		Name:  paddle.PtrTo(req.Name),
		CustomData: paddle.CustomData{
			"subscriber_id": req.SubscriberID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle customer: %w", err)
	}

	return &Customer{ID: customer.ID}, nil
}

// CreateCheckoutSession opens a hosted checkout transaction. The
// subscription metadata rides along as custom data and is echoed back
// in the completion notification.
func (g *PaddleGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, errors.New("price ID is required")
	}
	if req.CustomerID == "" {
		return nil, errors.New("customer ID is required")
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceID,
		Quantity: 1,
	})

	transactionReq := &paddle.CreateTransactionRequest{
		Items:      []paddle.CreateTransactionItems{*item},
		CustomerID: paddle.PtrTo(req.CustomerID),
		CustomData: paddle.CustomData{
			"subscriber_id": req.Metadata.SubscriberID.String(),
			"creator_id":    req.Metadata.CreatorID.String(),
			"tier":          string(req.Metadata.Tier),
			"billing_cycle": string(req.Metadata.BillingCycle),
		},
	}
	if req.SuccessURL != "" {
		transactionReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	transaction, err := g.client.TransactionsClient.CreateTransaction(ctx, transactionReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	if transaction.Checkout == nil || transaction.Checkout.URL == nil {
		return nil, errors.New("no checkout URL returned from paddle")
	}

	return &CheckoutSession{
		ID:        transaction.ID,
		URL:       *transaction.Checkout.URL,
		ExpiresAt: time.Now().Add(24 * time.Hour), // Paddle checkout links expire in 24 hours
	}, nil
}

// UpdateSubscription applies a price change or toggles scheduled
// cancellation on the Paddle subscription.
func (g *PaddleGateway) UpdateSubscription(ctx context.Context, externalSubscriptionID string, req SubscriptionUpdate) error {
	if externalSubscriptionID == "" {
		return errors.New("subscription ID is required")
	}

	if req.CancelAtPeriodEnd != nil {
		if *req.CancelAtPeriodEnd {
			_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
				SubscriptionID: externalSubscriptionID,
				EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromNextBillingPeriod),
			})
			if err != nil {
				return fmt.Errorf("failed to schedule paddle cancellation: %w", err)
			}
		} else {
			// Clearing the scheduled change resumes auto-renewal.
			_, err := g.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
				SubscriptionID:  externalSubscriptionID,
				ScheduledChange: paddle.NewPatchField[*paddle.SubscriptionScheduledChange](nil),
			})
			if err != nil {
				return fmt.Errorf("failed to clear paddle scheduled change: %w", err)
			}
		}
	}

	if req.PriceID != "" {
		item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
			PriceID:  req.PriceID,
			Quantity: 1,
		})
		updateReq := &paddle.UpdateSubscriptionRequest{
			SubscriptionID: externalSubscriptionID,
			Items:          paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
		}
		if req.Prorate {
			updateReq.ProrationBillingMode = paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately)
		}
		if _, err := g.client.SubscriptionsClient.UpdateSubscription(ctx, updateReq); err != nil {
			return fmt.Errorf("failed to update paddle subscription: %w", err)
		}
	}

	return nil
}

// CancelSubscription cancels the Paddle subscription immediately.
func (g *PaddleGateway) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	if externalSubscriptionID == "" {
		return errors.New("subscription ID is required")
	}
	_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
		SubscriptionID: externalSubscriptionID,
		EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
	})
	if err != nil {
		return fmt.Errorf("failed to cancel paddle subscription: %w", err)
	}
	return nil
}

// RefundPayment raises a refund adjustment against a settled transaction.
func (g *PaddleGateway) RefundPayment(ctx context.Context, externalPaymentID string, amount int64, reason string) (string, error) {
	if externalPaymentID == "" {
		return "", errors.New("payment ID is required")
	}
	if reason == "" {
		reason = "requested by customer"
	}

	adjustment, err := g.client.AdjustmentsClient.CreateAdjustment(ctx, &paddle.CreateAdjustmentRequest{
		Action:        paddle.AdjustmentActionRefund,
		TransactionID: externalPaymentID,
		Reason:        reason,
		Type:          paddle.PtrTo(paddle.AdjustmentTypeFull),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create paddle refund adjustment: %w", err)
	}
	return adjustment.ID, nil
}

// VerifyEvent authenticates the delivery against the webhook secret and
// normalizes the Paddle notification into an Event. Verification runs
// before any parsing.
func (g *PaddleGateway) VerifyEvent(ctx context.Context, payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request for verification: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := g.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var notification struct {
		EventID    string         `json:"event_id"`
		EventType  string         `json:"event_type"`
		OccurredAt string         `json:"occurred_at"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &notification); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, notification.OccurredAt)
	if err != nil {
		return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("invalid occurred_at: %w", err))
	}

	event := &Event{
		ID:         notification.EventID,
		Type:       mapPaddleEventType(notification.EventType),
		OccurredAt: occurredAt,
	}
	fillFromPaddleData(event, notification.EventType, notification.Data)
	return event, nil
}

// mapPaddleEventType maps Paddle notification types onto the engine's
// normalized event types. Unmapped types pass through so the reconciler
// can log and ignore them.
func mapPaddleEventType(paddleEvent string) EventType {
	switch paddleEvent {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	case "adjustment.created":
		return EventPaymentRefunded
	case "subscription.canceled":
		return EventSubscriptionDeleted
	default:
		return EventType(paddleEvent)
	}
}

// fillFromPaddleData extracts the handles and amounts the reconciler
// needs from the loosely-typed notification data.
func fillFromPaddleData(event *Event, paddleEvent string, data map[string]any) {
	str := func(key string) string {
		v, _ := data[key].(string)
		return v
	}

	switch {
	case strings.HasPrefix(paddleEvent, "transaction."):
		event.PaymentID = str("id")
		event.SubscriptionID = str("subscription_id")
		event.CustomerID = str("customer_id")
		event.Currency = str("currency_code")

		if details, ok := data["details"].(map[string]any); ok {
			if totals, ok := details["totals"].(map[string]any); ok {
				if total, ok := totals["total"].(string); ok {
					if amount, err := strconv.ParseInt(total, 10, 64); err == nil {
						event.Amount = amount
					}
				}
			}
		}
		if custom, ok := data["custom_data"].(map[string]any); ok {
			fillMetadata(&event.Metadata, custom)
		}

	case strings.HasPrefix(paddleEvent, "subscription."):
		event.SubscriptionID = str("id")
		event.CustomerID = str("customer_id")
		if custom, ok := data["custom_data"].(map[string]any); ok {
			fillMetadata(&event.Metadata, custom)
		}

	case strings.HasPrefix(paddleEvent, "adjustment."):
		event.PaymentID = str("id")
		event.SubscriptionID = str("subscription_id")
		event.CustomerID = str("customer_id")
	}
}

func fillMetadata(meta *CheckoutMetadata, custom map[string]any) {
	if v, ok := custom["subscriber_id"].(string); ok {
		if id, err := uuid.Parse(v); err == nil {
			meta.SubscriberID = id
		}
	}
	if v, ok := custom["creator_id"].(string); ok {
		if id, err := uuid.Parse(v); err == nil {
			meta.CreatorID = id
		}
	}
	if v, ok := custom["tier"].(string); ok {
		meta.Tier = Tier(v)
	}
	if v, ok := custom["billing_cycle"].(string); ok {
		meta.BillingCycle = BillingCycle(v)
	}
}
