package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/api/validators"
	"github.com/mintforge/packdrop-backend/internal/security"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type toggleFlagRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ToggleSecurityFlag flips one of the engine's kill switches.
func ToggleSecurityFlag(svc security.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flag := security.Flag(chi.URLParam(r, "flag"))
		if !flag.IsValid() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "unknown security flag"))
			return
		}

		var body toggleFlagRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.ToggleFlag(r.Context(), flag, *body.Enabled, "admin"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"flag": string(flag), "enabled": *body.Enabled})
	}
}

func SecurityState(svc security.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := svc.State(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"paused":         state.Paused,
			"minting_locked": state.MintingLocked,
			"price_locked":   state.PriceLocked,
			"catalog_locked": state.CatalogLocked,
		})
	}
}
