package distribution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/internal/catalog"
	"github.com/mintforge/packdrop-backend/internal/decks"
	"github.com/mintforge/packdrop-backend/internal/itemledger"
	"github.com/mintforge/packdrop-backend/internal/payments"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/internal/selection"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/metrics"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

type emissionCommitter interface {
	Commit(ctx context.Context, tx *gorm.DB, caller string, amount int64, kind enums.EmissionKind, bundles int) error
}

type operationalGate interface {
	RequireOperational(ctx context.Context) error
}

// Params are the fixed distribution parameters.
type Params struct {
	PackSize int
	Treasury string
}

// DeckResult is the outcome of an all-or-nothing deck execution.
type DeckResult struct {
	DeckName string
	ItemIDs  []uint64
	Price    decimal.Decimal
	Refund   decimal.Decimal
}

// Service executes distributions: randomized pack fulfillments and fixed
// deck bundles. Both paths share the supply/emission bookkeeping and the
// external ledger mint.
type Service interface {
	FulfillPack(ctx context.Context, tx *gorm.DB, req *models.PendingRequest, seed uint64) ([]uint64, error)
	ExecuteDeck(ctx context.Context, deckName, payer string, payment decimal.Decimal) (*DeckResult, error)
}

type service struct {
	catalogRepo catalog.Repository
	deckRepo    decks.Repository
	emission    emissionCommitter
	ledger      itemledger.Ledger
	channel     payments.Channel
	gate        operationalGate
	guard       *security.Guard
	dbClient    *db.Client
	emitter     outbox.Emitter
	params      Params
	metrics     *metrics.EngineMetrics
	logg        *logger.Logger
}

// NewService constructs the distribution executor.
func NewService(
	catalogRepo catalog.Repository,
	deckRepo decks.Repository,
	emission emissionCommitter,
	ledger itemledger.Ledger,
	channel payments.Channel,
	gate operationalGate,
	guard *security.Guard,
	dbClient *db.Client,
	emitter outbox.Emitter,
	params Params,
	engineMetrics *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if deckRepo == nil {
		return nil, fmt.Errorf("deck repository required")
	}
	if emission == nil {
		return nil, fmt.Errorf("emission committer required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("item ledger required")
	}
	if channel == nil {
		return nil, fmt.Errorf("payment channel required")
	}
	if gate == nil {
		return nil, fmt.Errorf("security gate required")
	}
	if guard == nil {
		return nil, fmt.Errorf("re-entry guard required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.PackSize <= 0 {
		return nil, fmt.Errorf("pack size must be positive")
	}
	if params.Treasury == "" {
		return nil, fmt.Errorf("treasury account required")
	}
	return &service{
		catalogRepo: catalogRepo,
		deckRepo:    deckRepo,
		emission:    emission,
		ledger:      ledger,
		channel:     channel,
		gate:        gate,
		guard:       guard,
		dbClient:    dbClient,
		emitter:     emitter,
		params:      params,
		metrics:     engineMetrics,
		logg:        logg,
	}, nil
}

// FulfillPack resolves every slot of the batch against a selection snapshot
// taken inside the transaction. Any slot that cannot allocate anywhere aborts
// the whole batch; a partial pack is never observable.
func (s *service) FulfillPack(ctx context.Context, tx *gorm.DB, req *models.PendingRequest, seed uint64) ([]uint64, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := s.gate.RequireOperational(ctx); err != nil {
		return nil, err
	}

	repo := s.catalogRepo.WithTx(tx)
	table, err := s.buildTable(ctx, repo)
	if err != nil {
		return nil, err
	}

	slots := req.BatchSize * s.params.PackSize
	itemIDs := make([]uint64, 0, slots)
	counts := make(map[uint64]int, slots)
	rarityOf := make(map[uint64]enums.Rarity, slots)

	for i := 0; i < slots; i++ {
		value := selection.DeriveSlotValue(seed, i)
		bonus := selection.IsBonusSlot(i, s.params.PackSize)

		for {
			sel, err := table.Select(value, bonus)
			if err != nil {
				return nil, err
			}
			ok, err := repo.IncrementSupply(ctx, sel.ItemID, 1)
			if err != nil {
				return nil, err
			}
			if !ok {
				// Hit the supply cap mid-batch; drop it and re-select.
				table.Remove(sel.Rarity, sel.ItemID)
				continue
			}
			itemIDs = append(itemIDs, sel.ItemID)
			counts[sel.ItemID]++
			rarityOf[sel.ItemID] = sel.Rarity
			break
		}
	}

	if err := s.emission.Commit(ctx, tx, req.Requester, int64(slots), enums.EmissionKindPack, req.BatchSize); err != nil {
		return nil, err
	}

	for itemID, count := range counts {
		if err := s.ledger.Mint(ctx, req.Requester, itemID, count); err != nil {
			return nil, err
		}
		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventItemAllocated,
			AggregateType: enums.AggregateItem,
			AggregateID:   fmt.Sprintf("%d", itemID),
			Data: outbox.ItemAllocatedEvent{
				ItemID:    itemID,
				Rarity:    rarityOf[itemID].String(),
				Owner:     req.Requester,
				Amount:    count,
				RequestID: req.ID.String(),
			},
		}); err != nil {
			return nil, err
		}
		s.metrics.IncItemsAllocated(rarityOf[itemID].String(), count)
	}

	return itemIDs, nil
}

// ExecuteDeck distributes a fixed bundle: all slots allocate or none do.
// Royalty transfers are best-effort; the buyer's refund is not.
func (s *service) ExecuteDeck(ctx context.Context, deckName, payer string, payment decimal.Decimal) (*DeckResult, error) {
	if payer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer is required")
	}
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.gate.RequireOperational(ctx); err != nil {
		return nil, err
	}

	deck, err := s.deckRepo.FindByName(ctx, deckName)
	if err != nil {
		return nil, err
	}
	if deck == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("deck %q not found", deckName))
	}
	if !deck.Active {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("deck %q is inactive", deckName))
	}
	if payment.LessThan(deck.Price) {
		return nil, pkgerrors.New(pkgerrors.CodePayment,
			fmt.Sprintf("payment %s below price %s", payment, deck.Price)).
			WithDetails(map[string]string{"due": deck.Price.String(), "paid": payment.String()})
	}

	result := &DeckResult{
		DeckName: deck.Name,
		Price:    deck.Price,
		Refund:   payments.Overpayment(payment, deck.Price),
	}

	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.catalogRepo.WithTx(tx)
		deckRepo := s.deckRepo.WithTx(tx)

		for _, slot := range deck.Slots {
			ok, err := repo.IncrementSupply(ctx, slot.ItemID, uint64(slot.Quantity))
			if err != nil {
				return err
			}
			if !ok {
				return pkgerrors.New(pkgerrors.CodeSupplyExceeded,
					fmt.Sprintf("item %d cannot allocate %d units", slot.ItemID, slot.Quantity))
			}
			for i := 0; i < slot.Quantity; i++ {
				result.ItemIDs = append(result.ItemIDs, slot.ItemID)
			}
		}

		if err := s.emission.Commit(ctx, tx, payer, int64(deck.TotalCards), enums.EmissionKindDeck, 1); err != nil {
			return err
		}
		if err := deckRepo.IncrementExecuted(ctx, deck.Name); err != nil {
			return err
		}

		for _, slot := range deck.Slots {
			if err := s.ledger.Mint(ctx, payer, slot.ItemID, slot.Quantity); err != nil {
				return err
			}
		}

		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeckExecuted,
			AggregateType: enums.AggregateDeck,
			AggregateID:   deck.Name,
			Actor:         &outbox.ActorRef{Caller: payer, Role: "buyer"},
			Data: outbox.DeckExecutedEvent{
				DeckName: deck.Name,
				Payer:    payer,
				ItemIDs:  result.ItemIDs,
				Price:    deck.Price,
			},
		}); err != nil {
			return err
		}

		if err := s.payRoyalties(ctx, tx, deck, repo); err != nil {
			return err
		}

		if result.Refund.IsPositive() {
			// Refund failure is fatal: the buyer never overpays silently.
			if err := s.channel.Transfer(ctx, s.params.Treasury, payer, result.Refund); err != nil {
				return err
			}
			if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentRefunded,
				AggregateType: enums.AggregateDeck,
				AggregateID:   deck.Name,
				Data: outbox.PaymentRefundedEvent{
					Payer:  payer,
					Amount: result.Refund,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncDeckExecuted(deck.Name)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"deck":  deck.Name,
			"payer": payer,
			"items": len(result.ItemIDs),
		}), "deck executed")
	}
	return result, nil
}

// payRoyalties distributes each item's proportional share of the deck price.
// A failed transfer skips that recipient and keeps going; withholding the
// whole bundle over one broken payout address would punish the buyer.
func (s *service) payRoyalties(ctx context.Context, tx *gorm.DB, deck *models.DeckTemplate, repo catalog.Repository) error {
	if deck.TotalCards == 0 || !deck.Price.IsPositive() {
		return nil
	}
	totalCards := decimal.New(int64(deck.TotalCards), 0)

	for _, slot := range deck.Slots {
		item, err := repo.FindByID(ctx, slot.ItemID)
		if err != nil {
			return err
		}
		if item == nil || item.RoyaltyRateBps <= 0 || item.RoyaltyRecipient == "" {
			continue
		}

		base := deck.Price.Mul(decimal.New(int64(slot.Quantity), 0)).Div(totalCards)
		amount := payments.RoyaltyShare(base, item.RoyaltyRateBps)
		if !amount.IsPositive() {
			continue
		}

		if err := s.channel.Transfer(ctx, s.params.Treasury, item.RoyaltyRecipient, amount); err != nil {
			s.metrics.IncRoyaltySkipped()
			if s.logg != nil {
				s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
					"item_id":   item.ID,
					"recipient": item.RoyaltyRecipient,
					"error":     err.Error(),
				}), "royalty transfer skipped")
			}
			if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRoyaltySkipped,
				AggregateType: enums.AggregateDeck,
				AggregateID:   deck.Name,
				Data: outbox.RoyaltySkippedEvent{
					ItemID:    item.ID,
					Recipient: item.RoyaltyRecipient,
					Amount:    amount,
					DeckName:  deck.Name,
					Reason:    err.Error(),
				},
			}); err != nil {
				return err
			}
			continue
		}

		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRoyaltyPaid,
			AggregateType: enums.AggregateDeck,
			AggregateID:   deck.Name,
			Data: outbox.RoyaltyPaidEvent{
				ItemID:    item.ID,
				Recipient: item.RoyaltyRecipient,
				Amount:    amount,
				DeckName:  deck.Name,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) buildTable(ctx context.Context, repo catalog.Repository) (*selection.Table, error) {
	pools := make(map[enums.Rarity][]uint64, len(enums.RarityFallbackOrder))
	for _, rarity := range enums.RarityFallbackOrder {
		items, err := repo.ListAllocatableByRarity(ctx, rarity)
		if err != nil {
			return nil, err
		}
		ids := make([]uint64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.ID)
		}
		pools[rarity] = ids
	}
	table := selection.NewTable(pools)
	if table.Empty() {
		return nil, pkgerrors.New(pkgerrors.CodeSupplyExceeded, "no allocatable item in any tier")
	}
	return table, nil
}
