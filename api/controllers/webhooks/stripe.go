package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	VerifyAndDispatch(ctx context.Context, payload []byte, signature string) (stripewebhook.Result, error)
}

// StripeWebhook acknowledges processor notifications with {"received":true}.
// Only signature failures (400) and persistence failures (500) are reported
// back, so the processor retries just the deliveries worth retrying.
func StripeWebhook(svc StripeWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		result, err := svc.VerifyAndDispatch(ctx, payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			logg.Debug(logg.WithFields(ctx, map[string]any{
				"event_type": result.EventType,
				"handled":    result.Handled,
				"replayed":   result.Replayed,
			}), "stripe.webhook.acknowledged")
		}
		responses.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}
