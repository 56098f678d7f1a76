package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/api/responses"
	"github.com/mintforge/packdrop-backend/api/validators"
	"github.com/mintforge/packdrop-backend/internal/decks"
	"github.com/mintforge/packdrop-backend/internal/distribution"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

type deckSlotRequest struct {
	ItemID   uint64 `json:"item_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

type createDeckRequest struct {
	Name  string            `json:"name" validate:"required,max=120"`
	Price string            `json:"price" validate:"required"`
	Slots []deckSlotRequest `json:"slots" validate:"required,min=1,dive"`
}

type updateDeckPriceRequest struct {
	Price string `json:"price" validate:"required"`
}

type executeDeckRequest struct {
	Payer   string `json:"payer" validate:"required"`
	Payment string `json:"payment" validate:"required"`
}

type deckSlotResponse struct {
	Position int    `json:"position"`
	ItemID   uint64 `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type deckResponse struct {
	Name          string             `json:"name"`
	TotalCards    int                `json:"total_cards"`
	Price         decimal.Decimal    `json:"price"`
	Active        bool               `json:"active"`
	PriceLocked   bool               `json:"price_locked"`
	TimesExecuted int64              `json:"times_executed"`
	Slots         []deckSlotResponse `json:"slots"`
}

type deckExecutionResponse struct {
	DeckName string          `json:"deck_name"`
	ItemIDs  []uint64        `json:"item_ids"`
	Price    decimal.Decimal `json:"price"`
	Refund   decimal.Decimal `json:"refund"`
}

func toDeckResponse(deck *models.DeckTemplate) deckResponse {
	out := deckResponse{
		Name:          deck.Name,
		TotalCards:    deck.TotalCards,
		Price:         deck.Price,
		Active:        deck.Active,
		PriceLocked:   deck.PriceLocked,
		TimesExecuted: deck.TimesExecuted,
		Slots:         make([]deckSlotResponse, 0, len(deck.Slots)),
	}
	for _, slot := range deck.Slots {
		out.Slots = append(out.Slots, deckSlotResponse{
			Position: slot.Position,
			ItemID:   slot.ItemID,
			Quantity: slot.Quantity,
		})
	}
	return out
}

func CreateDeck(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createDeckRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := parseAmount(body.Price, "price")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := decks.CreateDeckInput{Name: body.Name, Price: price}
		for _, slot := range body.Slots {
			input.Slots = append(input.Slots, decks.DeckSlotInput{
				ItemID:   slot.ItemID,
				Quantity: slot.Quantity,
			})
		}

		deck, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toDeckResponse(deck))
	}
}

func ListDecks(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeOnly := r.URL.Query().Get("all") != "true"
		list, err := svc.List(r.Context(), activeOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]deckResponse, 0, len(list))
		for i := range list {
			out = append(out, toDeckResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func GetDeck(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deck, err := svc.Get(r.Context(), chi.URLParam(r, "deckName"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDeckResponse(deck))
	}
}

func DeactivateDeck(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "deckName")
		if err := svc.Deactivate(r.Context(), name); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"name": name})
	}
}

func UpdateDeckPrice(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body updateDeckPriceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := parseAmount(body.Price, "price")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		name := chi.URLParam(r, "deckName")
		if err := svc.UpdatePrice(r.Context(), name, price); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"name": name, "price": price.String()})
	}
}

func LockDeckPrice(svc decks.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "deckName")
		if err := svc.LockPrice(r.Context(), name); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"name": name})
	}
}

// ExecuteDeck is the fixed-bundle purchase entry. The cooldown applies per
// payer before any engine work starts.
func ExecuteDeck(svc distribution.Service, limiter *security.CooldownLimiter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body executeDeckRequest
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
			if err := limiter.Allow(r.Context(), "deck", body.Payer); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.ExecuteDeck(r.Context(), chi.URLParam(r, "deckName"), body.Payer, payment)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, deckExecutionResponse{
			DeckName: result.DeckName,
			ItemIDs:  result.ItemIDs,
			Price:    result.Price,
			Refund:   result.Refund,
		})
	}
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" is not a decimal")
	}
	if amount.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, field+" cannot be negative")
	}
	return amount, nil
}
