package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
)

// IdempotencyHeader names the client-supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

const (
	// CheckoutReplayTTL covers a shopper retrying checkout over several days.
	CheckoutReplayTTL = 7 * 24 * time.Hour
	// AdminReplayTTL covers retried admin mutations.
	AdminReplayTTL = 24 * time.Hour

	maxReplayKeyLen = 255
	// claimTTL bounds how long a crashed request can hold its key.
	claimTTL = 2 * time.Minute
)

var errInFlight = pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is still in progress")

// replayEntry is what the store holds under a key: a pending claim while the
// handler runs, then the captured response.
type replayEntry struct {
	Done        bool   `json:"done"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

type replayGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
	logg  *logger.Logger
}

// Idempotency makes the wrapped handlers safe to retry. The first request
// carrying an Idempotency-Key claims it before the handler runs; repeats with
// the same body get the stored response, repeats with a different body get
// 422 and repeats that arrive while the first is running get 409. A 5xx
// response releases the key. Requests without the header pass through.
func Idempotency(store pkgredis.IdempotencyStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &replayGuard{store: store, ttl: ttl, logg: logg}
	return func(next http.Handler) http.Handler {
		if store == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

func (g *replayGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if clientKey == "" {
		next.ServeHTTP(w, r)
		return
	}
	if len(clientKey) > maxReplayKeyLen {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be at most %d characters", IdempotencyHeader, maxReplayKeyLen))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	fingerprint := fingerprint(r.Method, r.URL.Path, body)
	key := g.store.IdempotencyKey(replayScope(r), clientKey)

	claimed, err := g.claim(ctx, key, fingerprint)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
		return
	}
	if !claimed {
		g.replay(ctx, w, key, fingerprint)
		return
	}

	var captured bytes.Buffer
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	ww.Tee(&captured)
	next.ServeHTTP(ww, r)

	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}
	if status >= http.StatusInternalServerError {
		g.release(ctx, key)
		return
	}
	g.remember(ctx, key, replayEntry{
		Done:        true,
		Fingerprint: fingerprint,
		Status:      status,
		ContentType: ww.Header().Get("Content-Type"),
		Body:        captured.Bytes(),
	})
}

func (g *replayGuard) claim(ctx context.Context, key, fingerprint string) (bool, error) {
	pending, err := json.Marshal(replayEntry{Fingerprint: fingerprint})
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, string(pending), claimTTL)
}

func (g *replayGuard) replay(ctx context.Context, w http.ResponseWriter, key, fingerprint string) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// claim expired between SETNX and GET
		responses.WriteError(ctx, g.logg, w, errInFlight)
		return
	}
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}

	switch {
	case entry.Fingerprint != fingerprint:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key was already used with a different request"))
	case !entry.Done:
		responses.WriteError(ctx, g.logg, w, errInFlight)
	default:
		if entry.ContentType != "" {
			w.Header().Set("Content-Type", entry.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(entry.Status)
		_, _ = w.Write(entry.Body)
	}
}

func (g *replayGuard) remember(ctx context.Context, key string, entry replayEntry) {
	payload, err := json.Marshal(entry)
	if err == nil {
		err = g.store.Set(ctx, key, string(payload), g.ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "idempotency_key", key), "store idempotent response failed", err)
	}
}

func (g *replayGuard) release(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil && g.logg != nil {
		g.logg.Error(g.logg.WithField(ctx, "idempotency_key", key), "release idempotency key failed", err)
	}
}

// replayScope keeps keys from different callers and endpoints apart.
func replayScope(r *http.Request) string {
	principal := userScope(r.Context())
	if principal == "" {
		principal = "anon"
	}
	return principal + "|" + r.Method + "|" + r.URL.Path
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
