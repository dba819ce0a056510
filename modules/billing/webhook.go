package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/fangate/pkg/entitlement"
	"github.com/dmitrymomot/fangate/pkg/logger"
)

// handleWebhook receives gateway notifications. The raw body is handed
// to the gateway for signature verification before any parsing, and the
// verified event goes to the reconciler. A non-2xx response makes the
// gateway redeliver, so only failures that a redelivery can fix return
// errors; everything already settled acknowledges with 200.
func (m *Module) handleWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get(m.cfg.SignatureHeader)
	if signature == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing signature"})
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, m.cfg.MaxWebhookBody))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	event, err := m.gateway.VerifyEvent(r.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, entitlement.ErrSignatureInvalid) {
			m.log.WarnContext(r.Context(), "webhook signature rejected",
				logger.Component("billing"),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		respondError(w, err)
		return
	}

	if err := m.reconciler.Apply(r.Context(), event); err != nil {
		m.log.ErrorContext(r.Context(), "webhook reconciliation failed",
			logger.Component("billing"),
			logger.EventID(event.ID),
			logger.EventType(string(event.Type)),
			logger.Error(err),
		)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
