package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

type errorResponse struct {
	Error string `json:"error"`
}

type subscriptionResponse struct {
	ID                 string     `json:"id"`
	SubscriberID       string     `json:"subscriber_id"`
	CreatorID          string     `json:"creator_id"`
	Tier               string     `json:"tier"`
	BillingCycle       string     `json:"billing_cycle"`
	PriceAmount        int64      `json:"price_amount"`
	PriceCurrency      string     `json:"price_currency"`
	State              string     `json:"state"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            time.Time  `json:"end_date"`
	RenewalDate        time.Time  `json:"renewal_date"`
	AutoRenew          bool       `json:"auto_renew"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

func toSubscriptionResponse(sub *entitlement.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID.String(),
		SubscriberID:       sub.SubscriberID.String(),
		CreatorID:          sub.CreatorID.String(),
		Tier:               string(sub.Tier),
		BillingCycle:       string(sub.BillingCycle),
		PriceAmount:        sub.Price.Amount,
		PriceCurrency:      sub.Price.Currency,
		State:              string(sub.State),
		StartDate:          sub.StartDate,
		EndDate:            sub.EndDate,
		RenewalDate:        sub.RenewalDate,
		AutoRenew:          sub.AutoRenew,
		CancelledAt:        sub.CancelledAt,
		CancellationReason: string(sub.CancellationReason),
	}
}

type paymentEntryResponse struct {
	PaymentID     string    `json:"payment_id"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

func toPaymentEntryResponse(entry entitlement.PaymentEntry) paymentEntryResponse {
	return paymentEntryResponse{
		PaymentID:     entry.ExternalPaymentID,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		Status:        string(entry.Status),
		OccurredAt:    entry.OccurredAt,
		FailureReason: entry.FailureReason,
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// respondError maps domain errors onto HTTP status codes. Internal
// failures are hidden behind a generic message so store details never
// leak to clients.
func respondError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	respondJSON(w, status, errorResponse{Error: message})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, entitlement.ErrInvalidTier),
		errors.Is(err, entitlement.ErrInvalidBillingCycle),
		errors.Is(err, entitlement.ErrInvalidPrincipal),
		errors.Is(err, entitlement.ErrSelfSubscription),
		errors.Is(err, entitlement.ErrSignatureInvalid),
		errors.Is(err, entitlement.ErrMalformedEvent):
		return http.StatusBadRequest
	case errors.Is(err, entitlement.ErrSubscriptionRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, entitlement.ErrTierInsufficient),
		errors.Is(err, entitlement.ErrNotSubscriptionOwner),
		errors.Is(err, entitlement.ErrAdminRequired),
		errors.Is(err, entitlement.ErrCreatorRoleRequired):
		return http.StatusForbidden
	case errors.Is(err, entitlement.ErrCreatorNotFound),
		errors.Is(err, entitlement.ErrSubscriptionNotFound),
		errors.Is(err, entitlement.ErrPaymentNotFound),
		errors.Is(err, entitlement.ErrPriceNotFound):
		return http.StatusNotFound
	case errors.Is(err, entitlement.ErrSubscriptionExists),
		errors.Is(err, entitlement.ErrCheckoutInProgress),
		errors.Is(err, entitlement.ErrVersionConflict),
		errors.Is(err, entitlement.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, entitlement.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
