package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PackDrop-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the hard dependencies. The item ledger and payment
// channel are deliberately excluded: the engine can accept admin traffic
// while they are down.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("X-PackDrop-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["db"] = err.Error()
				healthy = false
			} else {
				checks["db"] = "ok"
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = err.Error()
				healthy = false
			} else {
				checks["redis"] = "ok"
			}
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"checks": checks}), "readiness degraded")
			}
		}
		responses.WriteSuccessStatus(w, status, map[string]any{"status": "ready", "checks": checks})
	}
}
