package stripe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestNewClientValidatesEnvironmentAndKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Secret: "whsec_x"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_x", Env: "test"}, nil)
	require.ErrorContains(t, err, "requires one of")

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_x", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_live_1", Secret: " whsec_x ", Env: "LIVE"}, nil)
	require.NoError(t, err)
	require.Equal(t, "live", client.Environment())
	require.Equal(t, "whsec_x", client.SigningSecret())
	require.NotNil(t, client.API())
}

func TestModeAcceptsOnlyItsOwnKeys(t *testing.T) {
	require.True(t, ModeTest.accepts("sk_test_abc"))
	require.True(t, ModeTest.accepts("rk_test_abc"))
	require.False(t, ModeTest.accepts("sk_live_abc"))
	require.False(t, ModeLive.accepts("pk_live_abc"))
}

func TestNewClientLogsThroughServiceLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"})

	_, err := NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_x"}, logg)
	require.NoError(t, err)
	require.Contains(t, buf.String(), `"stripe_env":"test"`)

	l := newLeveledLogger(context.Background(), logg)
	l.Warnf("retrying %s", "request")
	require.Contains(t, buf.String(), `"component":"stripe"`)
	require.Contains(t, buf.String(), "retrying request")
}

func TestIntentInputParams(t *testing.T) {
	p := IntentInput{
		AmountCents:    2599,
		Currency:       "USD",
		Metadata:       map[string]string{"checkout_session_id": "cs"},
		ReceiptEmail:   "guest@example.com",
		IdempotencyKey: "checkout-session-cs",
	}.params()

	require.Equal(t, int64(2599), *p.Amount)
	require.Equal(t, "usd", *p.Currency)
	require.Equal(t, "guest@example.com", *p.ReceiptEmail)
	require.Equal(t, "checkout-session-cs", *p.IdempotencyKey)
	require.True(t, *p.AutomaticPaymentMethods.Enabled)
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	require.Nil(t, c.API())
	require.Empty(t, c.Environment())
	require.Empty(t, c.SigningSecret())

	_, err := c.CreatePaymentIntent(context.Background(), IntentInput{AmountCents: 100, Currency: "usd"})
	require.ErrorIs(t, err, errNotInitialized)
	_, err = c.RetrievePaymentIntent(context.Background(), "pi_1")
	require.ErrorIs(t, err, errNotInitialized)
}

var _ stripe.LeveledLoggerInterface = (*leveledLogger)(nil)
