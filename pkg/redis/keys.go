package redis

import "strings"

const keyNamespace = "sf"

const (
	idempotencyPrefix = "idempotency"
	rateLimitPrefix   = "rate_limit"
	webhookPrefix     = "webhook"
	lockPrefix        = "lock"
)

// IdempotencyKey namespaces a client supplied idempotency key by scope.
func (c *Client) IdempotencyKey(scope, id string) string {
	return key(idempotencyPrefix, scope, id)
}

// RateLimitKey is the counter prefix for a limiter scope; the window start
// is appended per request.
func (c *Client) RateLimitKey(scope string) string {
	return key(rateLimitPrefix, scope)
}

// WebhookEventKey guards a provider event id against redelivery.
func (c *Client) WebhookEventKey(provider, eventID string) string {
	return key(webhookPrefix, provider, eventID)
}

func (c *Client) LockKey(name string) string {
	return key(lockPrefix, name)
}

// key joins the non-empty parts under the namespace with ':'.
func key(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
