package payments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const testSecret = "whsec_test"

type fakeIntentAPI struct {
	created     []pkgstripe.IntentInput
	createErr   error
	retrieve    *stripe.PaymentIntent
	retrieveErr error
}

func (f *fakeIntentAPI) CreatePaymentIntent(_ context.Context, in pkgstripe.IntentInput) (*stripe.PaymentIntent, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       in.AmountCents,
		Currency:     stripe.Currency(in.Currency),
		Metadata:     in.Metadata,
	}, nil
}

func (f *fakeIntentAPI) RetrievePaymentIntent(context.Context, string) (*stripe.PaymentIntent, error) {
	return f.retrieve, f.retrieveErr
}

func (f *fakeIntentAPI) SigningSecret() string { return testSecret }

func newSession(total int64) *models.CheckoutSession {
	email := "guest@example.com"
	return &models.CheckoutSession{
		ID:         uuid.New(),
		Status:     enums.CheckoutSessionOpen,
		Currency:   enums.CurrencyUSD,
		TotalCents: total,
		GuestEmail: &email,
	}
}

func TestCreateIntentCarriesSessionMetadata(t *testing.T) {
	api := &fakeIntentAPI{}
	gw, err := NewGateway(api)
	require.NoError(t, err)

	session := newSession(2599)
	intent, err := gw.CreateIntent(context.Background(), session, map[string]string{"cart_hash": "abc"})
	require.NoError(t, err)
	require.Equal(t, "pi_1", intent.ID)
	require.Equal(t, int64(2599), intent.AmountCents)
	require.Equal(t, enums.CurrencyUSD, intent.Currency)

	require.Len(t, api.created, 1)
	in := api.created[0]
	require.Equal(t, session.ID.String(), in.Metadata[SessionMetadataKey])
	require.Equal(t, "abc", in.Metadata["cart_hash"])
	require.Equal(t, "checkout-session-"+session.ID.String(), in.IdempotencyKey)
	require.Equal(t, "guest@example.com", in.ReceiptEmail)

	id, ok := intent.SessionID()
	require.True(t, ok)
	require.Equal(t, session.ID, id)
}

func TestCreateIntentRejectsInvalidSessions(t *testing.T) {
	gw, err := NewGateway(&fakeIntentAPI{})
	require.NoError(t, err)

	_, err = gw.CreateIntent(context.Background(), newSession(0), nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	completed := newSession(100)
	completed.Status = enums.CheckoutSessionCompleted
	_, err = gw.CreateIntent(context.Background(), completed, nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
}

func TestProcessorErrorsAreUpstream(t *testing.T) {
	gw, err := NewGateway(&fakeIntentAPI{createErr: errors.New("card network down"), retrieveErr: errors.New("timeout")})
	require.NoError(t, err)

	_, err = gw.CreateIntent(context.Background(), newSession(100), nil)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	_, err = gw.RetrieveIntent(context.Background(), "pi_1")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	_, err = gw.RetrieveIntent(context.Background(), " ")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRetrieveIntentMapsStatus(t *testing.T) {
	gw, err := NewGateway(&fakeIntentAPI{retrieve: &stripe.PaymentIntent{
		ID:       "pi_9",
		Status:   stripe.PaymentIntentStatusSucceeded,
		Amount:   500,
		Currency: stripe.CurrencyEUR,
	}})
	require.NoError(t, err)

	intent, err := gw.RetrieveIntent(context.Background(), "pi_9")
	require.NoError(t, err)
	require.True(t, intent.Succeeded())
	require.Equal(t, enums.CurrencyEUR, intent.Currency)
	_, ok := intent.SessionID()
	require.False(t, ok)
}

func TestVerifyEvent(t *testing.T) {
	gw, err := NewGateway(&fakeIntentAPI{})
	require.NoError(t, err)

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","api_version":%q,"data":{"object":{"id":"pi_1","object":"payment_intent"}}}`, stripe.APIVersion))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})

	event, err := gw.VerifyEvent(payload, signed.Header)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, stripe.EventTypePaymentIntentSucceeded, event.Type)

	_, err = gw.VerifyEvent(payload, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))

	forged := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_other",
		Timestamp: time.Now(),
	})
	_, err = gw.VerifyEvent(payload, forged.Header)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature))
}
