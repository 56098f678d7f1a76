package randomness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/internal/payments"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
	"github.com/mintforge/packdrop-backend/pkg/metrics"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

// Distributor resolves a fulfilled request into allocated items. It runs
// inside the fulfillment transaction after the request status has flipped.
type Distributor interface {
	FulfillPack(ctx context.Context, tx *gorm.DB, req *models.PendingRequest, seed uint64) ([]uint64, error)
}

// emissionReserver holds and returns emission headroom for open requests.
// Reserve runs in the open transaction; Release runs in the fulfillment or
// expiry transaction of the same request.
type emissionReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, amount int64) error
	Release(ctx context.Context, tx *gorm.DB, amount int64) error
}

type operationalGate interface {
	RequireOperational(ctx context.Context) error
	RecordExpiredRequest(ctx context.Context, tx *gorm.DB) error
}

// Params are the fixed purchase parameters for the pack channel.
type Params struct {
	PackSize       int
	PackPrice      decimal.Decimal
	MaxBatchSize   int
	RequestTimeout time.Duration
	Treasury       string
}

func (p Params) validate() error {
	if p.PackSize <= 0 {
		return fmt.Errorf("pack size must be positive")
	}
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive")
	}
	if p.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if p.PackPrice.IsNegative() {
		return fmt.Errorf("pack price cannot be negative")
	}
	return nil
}

// FulfillResult is the outcome of a successful fulfillment.
type FulfillResult struct {
	Request *models.PendingRequest
	ItemIDs []uint64
}

// Service owns the randomness request tracker: requests open Pending and
// transition exactly once to Fulfilled or Expired.
type Service interface {
	Open(ctx context.Context, requester string, batchSize int, payment decimal.Decimal) (*models.PendingRequest, error)
	Fulfill(ctx context.Context, requestID uuid.UUID, seed uint64) (*FulfillResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error)
	ExpireStale(ctx context.Context) (int, error)
}

type service struct {
	repo        Repository
	dbClient    *db.Client
	oracle      Oracle
	gate        operationalGate
	reserver    emissionReserver
	distributor Distributor
	guard       *security.Guard
	channel     payments.Channel
	emitter     outbox.Emitter
	params      Params
	metrics     *metrics.EngineMetrics
	logg        *logger.Logger
}

// NewService constructs the request tracker service.
func NewService(
	repo Repository,
	dbClient *db.Client,
	oracle Oracle,
	gate operationalGate,
	reserver emissionReserver,
	distributor Distributor,
	guard *security.Guard,
	channel payments.Channel,
	emitter outbox.Emitter,
	params Params,
	engineMetrics *metrics.EngineMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("randomness repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle required")
	}
	if gate == nil {
		return nil, fmt.Errorf("security gate required")
	}
	if reserver == nil {
		return nil, fmt.Errorf("emission reserver required")
	}
	if distributor == nil {
		return nil, fmt.Errorf("distributor required")
	}
	if guard == nil {
		return nil, fmt.Errorf("re-entry guard required")
	}
	if channel == nil {
		return nil, fmt.Errorf("payment channel required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &service{
		repo:        repo,
		dbClient:    dbClient,
		oracle:      oracle,
		gate:        gate,
		reserver:    reserver,
		distributor: distributor,
		guard:       guard,
		channel:     channel,
		emitter:     emitter,
		params:      params,
		metrics:     engineMetrics,
		logg:        logg,
	}, nil
}

// Open accepts a pack purchase: it validates payment, reserves emission
// headroom, records a Pending request, and asks the oracle for randomness.
// The reservation rides in the same transaction as the request row, so a
// refused open leaves no headroom held.
func (s *service) Open(ctx context.Context, requester string, batchSize int, payment decimal.Decimal) (*models.PendingRequest, error) {
	if requester == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requester is required")
	}
	if batchSize < 1 || batchSize > s.params.MaxBatchSize {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("batch size must be between 1 and %d", s.params.MaxBatchSize))
	}
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	if err := s.gate.RequireOperational(ctx); err != nil {
		return nil, err
	}

	due := s.params.PackPrice.Mul(decimal.New(int64(batchSize), 0))
	if payment.LessThan(due) {
		s.metrics.IncPackRequested("underpaid")
		return nil, pkgerrors.New(pkgerrors.CodePayment,
			fmt.Sprintf("payment %s below price %s", payment, due)).
			WithDetails(map[string]string{"due": due.String(), "paid": payment.String()})
	}

	req := &models.PendingRequest{
		ID:        uuid.New(),
		Requester: requester,
		BatchSize: batchSize,
		Payment:   payment,
		Status:    enums.RequestStatusPending,
		IssuedAt:  time.Now(),
	}

	excess := payments.Overpayment(payment, due)
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.reserver.Reserve(ctx, tx, s.requestUnits(req)); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, req); err != nil {
			return err
		}
		if err := s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPackRequested,
			AggregateType: enums.AggregatePackRequest,
			AggregateID:   req.ID.String(),
			Actor:         &outbox.ActorRef{Caller: requester, Role: "buyer"},
			Data: outbox.PackRequestedEvent{
				RequestID: req.ID.String(),
				Requester: requester,
				BatchSize: batchSize,
				Payment:   payment,
			},
		}); err != nil {
			return err
		}
		if excess.IsPositive() {
			// A refund that cannot be sent aborts the purchase; we never
			// keep more than the price.
			if err := s.channel.Transfer(ctx, s.params.Treasury, requester, excess); err != nil {
				return err
			}
			return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPaymentRefunded,
				AggregateType: enums.AggregatePackRequest,
				AggregateID:   req.ID.String(),
				Data: outbox.PaymentRefundedEvent{
					Payer:  requester,
					Amount: excess,
				},
			})
		}
		return nil
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
			s.metrics.IncPackRequested("cap_exceeded")
		}
		return nil, err
	}

	// The request is durable before the oracle hears about it; a notify
	// failure leaves it Pending where the expiry path picks it up.
	if err := s.oracle.RequestRandomness(ctx, req.ID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"request_id": req.ID,
			"error":      err.Error(),
		}), "oracle notification failed")
	}

	s.metrics.IncPackRequested("opened")
	return req, nil
}

// Fulfill consumes the oracle's randomness for a request. The status flips
// before any allocation side effect runs, so a replayed or raced callback
// sees a consumed request and is rejected without touching state.
func (s *service) Fulfill(ctx context.Context, requestID uuid.UUID, seed uint64) (*FulfillResult, error) {
	if err := s.guard.Enter(); err != nil {
		return nil, err
	}
	defer s.guard.Exit()

	// A pause or minting lock raised after the request opened still blocks
	// its fulfillment; the request stays Pending until the engine resumes.
	if err := s.gate.RequireOperational(ctx); err != nil {
		return nil, err
	}

	started := time.Now()
	var result FulfillResult
	var expired bool

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		req, err := repo.FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("request %s not found", requestID))
		}
		if req.Status != enums.RequestStatusPending {
			return pkgerrors.New(pkgerrors.CodeReplay,
				fmt.Sprintf("request %s already %s", requestID, req.Status))
		}

		now := time.Now()
		if req.Expired(now, s.params.RequestTimeout) {
			// Late fulfillment: mark expired and stop. The payment stays
			// held; refunds are an explicit admin operation, not automatic.
			if err := req.Transition(enums.RequestStatusExpired, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expiry transition")
			}
			if err := repo.SaveStatus(ctx, req); err != nil {
				return err
			}
			if err := s.reserver.Release(ctx, tx, s.requestUnits(req)); err != nil {
				return err
			}
			if err := s.gate.RecordExpiredRequest(ctx, tx); err != nil {
				return err
			}
			expired = true
			result.Request = req
			return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRequestTimedOut,
				AggregateType: enums.AggregatePackRequest,
				AggregateID:   req.ID.String(),
				Data: outbox.RequestTimedOutEvent{
					RequestID: req.ID.String(),
					Requester: req.Requester,
					BatchSize: req.BatchSize,
				},
			})
		}

		// Flip first, allocate second.
		if err := req.Transition(enums.RequestStatusFulfilled, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "fulfill transition")
		}
		if err := repo.SaveStatus(ctx, req); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeReplay,
					fmt.Sprintf("request %s consumed concurrently", requestID))
			}
			return err
		}

		// The reservation converts into real emission here: release it just
		// before the distributor commits the same units, inside one tx.
		if err := s.reserver.Release(ctx, tx, s.requestUnits(req)); err != nil {
			return err
		}

		itemIDs, err := s.distributor.FulfillPack(ctx, tx, req, seed)
		if err != nil {
			return err
		}

		result.Request = req
		result.ItemIDs = itemIDs
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPackFulfilled,
			AggregateType: enums.AggregatePackRequest,
			AggregateID:   req.ID.String(),
			Data: outbox.PackFulfilledEvent{
				RequestID: req.ID.String(),
				Requester: req.Requester,
				BatchSize: req.BatchSize,
				ItemIDs:   itemIDs,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.metrics.IncRequestExpired()
		return nil, pkgerrors.New(pkgerrors.CodeExpired,
			fmt.Sprintf("request %s expired before fulfillment", requestID))
	}

	s.metrics.ObserveFulfillment(time.Since(started))
	s.metrics.IncPacksFulfilled(result.Request.BatchSize)
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"request_id": requestID,
			"batch_size": result.Request.BatchSize,
			"items":      len(result.ItemIDs),
		}), "pack request fulfilled")
	}
	return &result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.PendingRequest, error) {
	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("request %s not found", id))
	}
	return req, nil
}

// ExpireStale sweeps requests that outlived the timeout without a callback.
// Payments stay held; only the tracker state and counters change.
func (s *service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.params.RequestTimeout)
	stale, err := s.repo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	// A failing row must not stall the sweep behind it; errors are combined
	// and reported once the pass is done.
	flipped := 0
	var errs []error
	for i := range stale {
		req := stale[i]
		err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			now := time.Now()
			if err := req.Transition(enums.RequestStatusExpired, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "expiry transition")
			}
			if err := repo.SaveStatus(ctx, &req); err != nil {
				if err == gorm.ErrRecordNotFound {
					return nil // raced with a fulfillment; nothing to do
				}
				return err
			}
			if err := s.reserver.Release(ctx, tx, s.requestUnits(&req)); err != nil {
				return err
			}
			if err := s.gate.RecordExpiredRequest(ctx, tx); err != nil {
				return err
			}
			flipped++
			s.metrics.IncRequestExpired()
			return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRequestTimedOut,
				AggregateType: enums.AggregatePackRequest,
				AggregateID:   req.ID.String(),
				Data: outbox.RequestTimedOutEvent{
					RequestID: req.ID.String(),
					Requester: req.Requester,
					BatchSize: req.BatchSize,
				},
			})
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return flipped, multierr.Combine(errs...)
}

// requestUnits is the emission headroom one request holds while pending.
func (s *service) requestUnits(req *models.PendingRequest) int64 {
	return int64(req.BatchSize * s.params.PackSize)
}
