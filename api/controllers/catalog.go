package controllers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/api/validators"
	"github.com/mintforge/packdrop-backend/internal/catalog"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type registerItemRequest struct {
	ID               uint64 `json:"id" validate:"required"`
	Name             string `json:"name" validate:"required,max=120"`
	Rarity           string `json:"rarity" validate:"required"`
	SupplyCap        uint64 `json:"supply_cap"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	RoyaltyRateBps   int    `json:"royalty_rate_bps" validate:"min=0,max=10000"`
}

type itemResponse struct {
	ID               uint64 `json:"id"`
	Name             string `json:"name"`
	Rarity           string `json:"rarity"`
	SupplyCap        uint64 `json:"supply_cap"`
	CurrentSupply    uint64 `json:"current_supply"`
	Active           bool   `json:"active"`
	Removed          bool   `json:"removed"`
	RoyaltyRecipient string `json:"royalty_recipient,omitempty"`
	RoyaltyRateBps   int    `json:"royalty_rate_bps,omitempty"`
}

func toItemResponse(item *models.Item) itemResponse {
	return itemResponse{
		ID:               item.ID,
		Name:             item.Name,
		Rarity:           item.Rarity.String(),
		SupplyCap:        item.SupplyCap,
		CurrentSupply:    item.CurrentSupply,
		Active:           item.Active,
		Removed:          item.Removed,
		RoyaltyRecipient: item.RoyaltyRecipient,
		RoyaltyRateBps:   item.RoyaltyRateBps,
	}
}

func RegisterItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body registerItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rarity, err := enums.ParseRarity(body.Rarity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid rarity"))
			return
		}

		item, err := svc.Register(r.Context(), "admin", catalog.RegisterItemInput{
			ID:               body.ID,
			Name:             body.Name,
			Rarity:           rarity,
			SupplyCap:        body.SupplyCap,
			RoyaltyRecipient: body.RoyaltyRecipient,
			RoyaltyRateBps:   body.RoyaltyRateBps,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toItemResponse(item))
	}
}

func DeactivateItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return itemAction(svc.Deactivate, logg)
}

func ReactivateItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return itemAction(svc.Reactivate, logg)
}

func RemoveItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return itemAction(svc.Remove, logg)
}

func itemAction(action func(ctx context.Context, id uint64) error, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := action(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]uint64{"id": id})
	}
}

func GetItem(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toItemResponse(item))
	}
}

func ListItems(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeRemoved := r.URL.Query().Get("include_removed") == "true"
		items, err := svc.List(r.Context(), includeRemoved)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]itemResponse, 0, len(items))
		for i := range items {
			out = append(out, toItemResponse(&items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func itemIDParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "itemId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "item id must be a positive integer")
	}
	return id, nil
}
