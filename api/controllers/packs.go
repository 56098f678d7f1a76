package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/api/validators"
	"github.com/mintforge/packdrop-backend/internal/randomness"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type openPackRequest struct {
	Requester string `json:"requester" validate:"required"`
	BatchSize int    `json:"batch_size" validate:"required,min=1"`
	Payment   string `json:"payment" validate:"required"`
}

type packRequestResponse struct {
	RequestID  string          `json:"request_id"`
	Requester  string          `json:"requester"`
	BatchSize  int             `json:"batch_size"`
	Payment    decimal.Decimal `json:"payment"`
	Status     string          `json:"status"`
	IssuedAt   time.Time       `json:"issued_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

func toPackRequestResponse(req *models.PendingRequest) packRequestResponse {
	return packRequestResponse{
		RequestID:  req.ID.String(),
		Requester:  req.Requester,
		BatchSize:  req.BatchSize,
		Payment:    req.Payment,
		Status:     req.Status.String(),
		IssuedAt:   req.IssuedAt,
		ResolvedAt: req.ResolvedAt,
	}
}

// OpenPack accepts a randomized pack purchase and leaves it pending until the
// oracle calls back.
func OpenPack(svc randomness.Service, limiter *security.CooldownLimiter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body openPackRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payment, err := parseAmount(body.Payment, "payment")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if limiter != nil {
			if err := limiter.Allow(r.Context(), "pack", body.Requester); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		req, err := svc.Open(r.Context(), body.Requester, body.BatchSize, payment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, toPackRequestResponse(req))
	}
}

func GetPackRequest(svc randomness.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := requestIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toPackRequestResponse(req))
	}
}

func requestIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "requestId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request id")
	}
	return id, nil
}
