package billing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
)

type planResponse struct {
	Tier        string          `json:"tier"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Features    []string        `json:"features,omitempty"`
	Prices      []priceResponse `json:"prices"`
}

type priceResponse struct {
	BillingCycle string `json:"billing_cycle"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	PriceID      string `json:"price_id"`
}

func (m *Module) handleListPlans(w http.ResponseWriter, r *http.Request) {
	cycles := []entitlement.BillingCycle{
		entitlement.CycleMonthly,
		entitlement.CycleQuarterly,
		entitlement.CycleYearly,
	}

	plans := m.catalog.Plans()
	out := make([]planResponse, 0, len(plans))
	for _, plan := range plans {
		resp := planResponse{
			Tier:        string(plan.Tier),
			Name:        plan.Name,
			Description: plan.Description,
			Features:    plan.Features,
		}
		for _, cycle := range cycles {
			if price, ok := plan.Prices[cycle]; ok {
				resp.Prices = append(resp.Prices, priceResponse{
					BillingCycle: string(cycle),
					Amount:       price.Amount,
					Currency:     price.Currency,
					PriceID:      price.PriceID,
				})
			}
		}
		out = append(out, resp)
	}

	respondJSON(w, http.StatusOK, out)
}

type subscribeRequest struct {
	CreatorID    string `json:"creator_id"`
	Tier         string `json:"tier"`
	BillingCycle string `json:"billing_cycle"`
}

type checkoutResponse struct {
	CheckoutID  string    `json:"checkout_id"`
	CheckoutURL string    `json:"checkout_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (m *Module) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid creator_id"})
		return
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		respondError(w, err)
		return
	}
	cycle, err := entitlement.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		respondError(w, err)
		return
	}

	session, err := m.checkout.Subscribe(r.Context(), principal, creatorID, tier, cycle)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, checkoutResponse{
		CheckoutID:  session.ID,
		CheckoutURL: session.URL,
		ExpiresAt:   session.ExpiresAt,
	})
}

func (m *Module) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	subs, err := m.lifecycle.ListForSubscriber(r.Context(), principal)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]subscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, toSubscriptionResponse(sub))
	}
	respondJSON(w, http.StatusOK, out)
}

func (m *Module) handlePaymentHistory(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid subscription id"})
		return
	}

	ledger, err := m.lifecycle.PaymentHistory(r.Context(), principal, id)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]paymentEntryResponse, 0, len(ledger))
	for _, entry := range ledger {
		out = append(out, toPaymentEntryResponse(entry))
	}
	respondJSON(w, http.StatusOK, out)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (m *Module) handleCancel(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid subscription id"})
		return
	}

	// The body is optional; cancellation defaults to a user request.
	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	sub, err := m.lifecycle.Cancel(r.Context(), principal, id, entitlement.CancellationReason(req.Reason))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type changeTierRequest struct {
	Tier string `json:"tier"`
}

func (m *Module) handleChangeTier(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid subscription id"})
		return
	}

	var req changeTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	tier, err := entitlement.ParseTier(req.Tier)
	if err != nil {
		respondError(w, err)
		return
	}

	sub, err := m.lifecycle.ChangeTier(r.Context(), principal, id, tier)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type autoRenewRequest struct {
	AutoRenew bool `json:"auto_renew"`
}

func (m *Module) handleSetAutoRenew(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid subscription id"})
		return
	}

	var req autoRenewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	sub, err := m.lifecycle.SetAutoRenew(r.Context(), principal, id, req.AutoRenew)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type refundRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

func (m *Module) handleRefund(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid subscription id"})
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.PaymentID == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "payment_id is required"})
		return
	}

	sub, err := m.lifecycle.Refund(r.Context(), principal, id, req.PaymentID, req.Amount, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

type earningsResponse struct {
	CreatorID       string `json:"creator_id"`
	Subscribers     int    `json:"subscribers"`
	MonthlyRevenue  int64  `json:"monthly_revenue"`
	TotalEarnings   int64  `json:"total_earnings"`
	NetEarnings     int64  `json:"net_earnings"`
	RefundedAmount  int64  `json:"refunded_amount"`
	PendingEarnings int64  `json:"pending_earnings"`
}

// handleEarnings reports a creator's earnings. Creators see their own
// numbers; admins may pass ?creator_id= to inspect any creator.
func (m *Module) handleEarnings(w http.ResponseWriter, r *http.Request) {
	principal, _ := GetPrincipalFromContext(r.Context())

	creatorID := principal.ID
	if raw := r.URL.Query().Get("creator_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid creator_id"})
			return
		}
		creatorID = id
	}

	report, err := m.lifecycle.Earnings(r.Context(), principal, creatorID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, earningsResponse{
		CreatorID:       creatorID.String(),
		Subscribers:     report.Subscribers,
		MonthlyRevenue:  report.MonthlyRevenue,
		TotalEarnings:   report.TotalEarnings,
		NetEarnings:     report.NetEarnings,
		RefundedAmount:  report.RefundedAmount,
		PendingEarnings: report.PendingEarnings,
	})
}
