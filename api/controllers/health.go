package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and Redis; either failing reports 500.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		var failed error
		if dbPinger == nil {
			checks["database"] = "missing"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "database not configured")
		} else if err := dbPinger.Ping(ctx); err != nil {
			checks["database"] = "error"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database ping failed")
		}
		if redisPinger == nil {
			checks["redis"] = "missing"
			failed = pkgerrors.New(pkgerrors.CodeDependency, "redis not configured")
		} else if err := redisPinger.Ping(ctx); err != nil {
			checks["redis"] = "error"
			failed = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis ping failed")
		}

		if failed != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.As(failed).WithDetails(checks))
			return
		}
		checks["status"] = "ready"
		responses.WriteSuccess(w, checks)
	}
}
