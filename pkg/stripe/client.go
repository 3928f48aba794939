package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
	errNotInitialized   = errors.New("stripe client not initialized")
)

// Client is the storefront's handle on the Stripe API: payment intents for
// checkout plus the webhook signing secret.
type Client struct {
	api           *stripe.Client
	mode          Mode
	signingSecret string
}

// NewClient validates the key against the configured mode so a live key
// can never be used from a test deployment or the reverse.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if !mode.accepts(apiKey) {
		return nil, fmt.Errorf("stripe environment %q requires one of %v keys", mode, keyPrefixes[mode])
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if logg != nil {
		backendCfg.LeveledLogger = newLeveledLogger(ctx, logg)
		logg.Info(logg.WithField(ctx, "stripe_env", mode), "stripe client initialized")
	}

	return &Client{
		api:           stripe.NewClient(apiKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg))),
		mode:          mode,
		signingSecret: secret,
	}, nil
}

func parseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return m, nil
	default:
		return "", errInvalidStripeEnv
	}
}

func (m Mode) accepts(key string) bool {
	for _, prefix := range keyPrefixes[m] {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports the mode as a string ("test" or "live").
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// IntentInput describes a PaymentIntent for one checkout session.
type IntentInput struct {
	AmountCents    int64
	Currency       string
	Metadata       map[string]string
	ReceiptEmail   string
	IdempotencyKey string
}

func (in IntentInput) params() *stripe.PaymentIntentCreateParams {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: in.Metadata,
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	return params
}

// CreatePaymentIntent creates an intent with automatic payment methods.
func (c *Client) CreatePaymentIntent(ctx context.Context, in IntentInput) (*stripe.PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	return c.api.V1PaymentIntents.Create(ctx, in.params())
}

func (c *Client) RetrievePaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	if c == nil || c.api == nil {
		return nil, errNotInitialized
	}
	return c.api.V1PaymentIntents.Retrieve(ctx, id, &stripe.PaymentIntentRetrieveParams{})
}
