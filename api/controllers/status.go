package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/internal/emission"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type emissionResponse struct {
	EmissionCap  int64 `json:"emission_cap"`
	PackSize     int   `json:"pack_size"`
	TotalEmitted int64 `json:"total_emitted"`
	Reserved     int64 `json:"reserved"`
	Remaining    int64 `json:"remaining"`
	PacksOpened  int64 `json:"packs_opened"`
	DecksOpened  int64 `json:"decks_opened"`
}

type engineStatusResponse struct {
	Paused           bool             `json:"paused"`
	MintingLocked    bool             `json:"minting_locked"`
	PriceLocked      bool             `json:"price_locked"`
	CatalogLocked    bool             `json:"catalog_locked"`
	ExpiredRequests  int64            `json:"expired_requests"`
	RateLimitedCalls int64            `json:"rate_limited_calls"`
	Emission         emissionResponse `json:"emission"`
}

type callerStatsResponse struct {
	Caller       string     `json:"caller"`
	PacksOpened  int64      `json:"packs_opened"`
	DecksOpened  int64      `json:"decks_opened"`
	LastActionAt *time.Time `json:"last_action_at,omitempty"`
}

func EngineStatus(securitySvc security.Service, emissionSvc emission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := securitySvc.State(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		totals, err := emissionSvc.Totals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, engineStatusResponse{
			Paused:           state.Paused,
			MintingLocked:    state.MintingLocked,
			PriceLocked:      state.PriceLocked,
			CatalogLocked:    state.CatalogLocked,
			ExpiredRequests:  state.ExpiredRequests,
			RateLimitedCalls: state.RateLimited,
			Emission: emissionResponse{
				EmissionCap:  totals.EmissionCap,
				PackSize:     totals.PackSize,
				TotalEmitted: totals.TotalEmitted,
				Reserved:     totals.Reserved,
				Remaining:    totals.Remaining(),
				PacksOpened:  totals.PacksOpened,
				DecksOpened:  totals.DecksOpened,
			},
		})
	}
}

func EmissionTotals(svc emission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		totals, err := svc.Totals(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, emissionResponse{
			EmissionCap:  totals.EmissionCap,
			PackSize:     totals.PackSize,
			TotalEmitted: totals.TotalEmitted,
			Reserved:     totals.Reserved,
			Remaining:    totals.Remaining(),
			PacksOpened:  totals.PacksOpened,
			DecksOpened:  totals.DecksOpened,
		})
	}
}

func CallerStats(svc emission.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := chi.URLParam(r, "caller")
		stats, err := svc.CallerStats(r.Context(), caller)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, callerStatsResponse{
			Caller:       caller,
			PacksOpened:  stats.PacksOpened,
			DecksOpened:  stats.DecksOpened,
			LastActionAt: stats.LastActionAt,
		})
	}
}
