package controllers

import (
	"net/http"
	"strconv"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/api/validators"
	"github.com/mintforge/packdrop-backend/internal/randomness"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type fulfillRequest struct {
	// Seed is decimal-encoded to survive JSON number precision.
	Seed string `json:"seed" validate:"required"`
}

type fulfillResponse struct {
	RequestID string   `json:"request_id"`
	BatchSize int      `json:"batch_size"`
	ItemIDs   []uint64 `json:"item_ids"`
}

// FulfillPackRequest consumes the oracle callback for one pending request.
func FulfillPackRequest(svc randomness.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requestIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body fulfillRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seed, err := strconv.ParseUint(body.Seed, 10, 64)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "seed must be an unsigned decimal integer"))
			return
		}

		result, err := svc.Fulfill(r.Context(), id, seed)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, fulfillResponse{
			RequestID: result.Request.ID.String(),
			BatchSize: result.Request.BatchSize,
			ItemIDs:   result.ItemIDs,
		})
	}
}
