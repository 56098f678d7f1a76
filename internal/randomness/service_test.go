package randomness

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/internal/emission"
	"github.com/mintforge/packdrop-backend/internal/security"
	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

type fakeOracle struct {
	requests []uuid.UUID
	fail     bool
}

func (f *fakeOracle) RequestRandomness(ctx context.Context, requestID uuid.UUID) error {
	if f.fail {
		return pkgerrors.New(pkgerrors.CodeDependency, "oracle unreachable")
	}
	f.requests = append(f.requests, requestID)
	return nil
}

type fakeGate struct {
	locked  bool
	expired int
}

func (f *fakeGate) RequireOperational(ctx context.Context) error {
	if f.locked {
		return pkgerrors.New(pkgerrors.CodeEngineLocked, "engine is paused")
	}
	return nil
}

func (f *fakeGate) RecordExpiredRequest(ctx context.Context, tx *gorm.DB) error {
	f.expired++
	return nil
}

type fakeReserver struct {
	err      error
	reserved int64
	releases int
}

func (f *fakeReserver) Reserve(ctx context.Context, tx *gorm.DB, amount int64) error {
	if f.err != nil {
		return f.err
	}
	f.reserved += amount
	return nil
}

func (f *fakeReserver) Release(ctx context.Context, tx *gorm.DB, amount int64) error {
	f.reserved -= amount
	f.releases++
	return nil
}

type fakeDistributor struct {
	calls int
	seeds []uint64
	fail  bool
}

func (f *fakeDistributor) FulfillPack(ctx context.Context, tx *gorm.DB, req *models.PendingRequest, seed uint64) ([]uint64, error) {
	f.calls++
	f.seeds = append(f.seeds, seed)
	if f.fail {
		return nil, pkgerrors.New(pkgerrors.CodeSupplyExceeded, "no allocatable item in any tier")
	}
	ids := make([]uint64, 0, req.BatchSize)
	for i := 0; i < req.BatchSize; i++ {
		ids = append(ids, uint64(i+1))
	}
	return ids, nil
}

type fakeChannel struct {
	transfers []string
	fail      bool
}

func (f *fakeChannel) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if f.fail {
		return pkgerrors.New(pkgerrors.CodePayment, "transfer refused")
	}
	f.transfers = append(f.transfers, fmt.Sprintf("%s->%s:%s", from, to, amount))
	return nil
}

type harness struct {
	svc         Service
	repo        Repository
	client      *db.Client
	oracle      *fakeOracle
	gate        *fakeGate
	reserver    *fakeReserver
	distributor *fakeDistributor
	channel     *fakeChannel
	guard       *security.Guard
	params      Params
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:randomness_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, true, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.PendingRequest{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	h := &harness{
		repo:        NewRepository(client.DB()),
		client:      client,
		oracle:      &fakeOracle{},
		gate:        &fakeGate{},
		reserver:    &fakeReserver{},
		distributor: &fakeDistributor{},
		channel:     &fakeChannel{},
		guard:       security.NewGuard(),
		params: Params{
			PackSize:       15,
			PackPrice:      decimal.RequireFromString("0.1"),
			MaxBatchSize:   10,
			RequestTimeout: time.Minute,
			Treasury:       "treasury",
		},
	}
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	svc, err := NewService(
		h.repo, client, h.oracle, h.gate, h.reserver, h.distributor,
		h.guard, h.channel, emitter, h.params, nil, nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

func (h *harness) load(t *testing.T, id uuid.UUID) *models.PendingRequest {
	t.Helper()
	req, err := h.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if req == nil {
		t.Fatalf("request %s missing", id)
	}
	return req
}

func (h *harness) eventTypes(t *testing.T) map[enums.OutboxEventType]int {
	t.Helper()
	var events []models.OutboxEvent
	if err := h.client.DB().Find(&events).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	out := map[enums.OutboxEventType]int{}
	for _, e := range events {
		out[e.EventType]++
	}
	return out
}

func (h *harness) seedStale(t *testing.T, age time.Duration) uuid.UUID {
	t.Helper()
	req := &models.PendingRequest{
		ID:        uuid.New(),
		Requester: "0xalice",
		BatchSize: 1,
		Payment:   decimal.RequireFromString("0.1"),
		Status:    enums.RequestStatusPending,
		IssuedAt:  time.Now().Add(-age),
	}
	if err := h.repo.Create(context.Background(), req); err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return req.ID
}

func TestOpenCreatesPendingRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, err := h.svc.Open(context.Background(), "0xalice", 2, decimal.RequireFromString("0.2"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	stored := h.load(t, req.ID)
	if stored.Status != enums.RequestStatusPending {
		t.Fatalf("status = %s", stored.Status)
	}
	if stored.BatchSize != 2 || stored.Requester != "0xalice" {
		t.Fatalf("unexpected request: %+v", stored)
	}
	if len(h.oracle.requests) != 1 || h.oracle.requests[0] != req.ID {
		t.Fatalf("oracle not notified: %v", h.oracle.requests)
	}
	if len(h.channel.transfers) != 0 {
		t.Fatalf("exact payment must not transfer: %v", h.channel.transfers)
	}
	if h.eventTypes(t)[enums.EventPackRequested] != 1 {
		t.Fatal("expected pack_requested event")
	}
	if h.reserver.reserved != 30 {
		t.Fatalf("reserved = %d, want 30", h.reserver.reserved)
	}
}

func TestOpenRefundsOverpayment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.15"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(h.channel.transfers) != 1 || h.channel.transfers[0] != "treasury->0xalice:0.05" {
		t.Fatalf("unexpected transfers: %v", h.channel.transfers)
	}
	if h.eventTypes(t)[enums.EventPaymentRefunded] != 1 {
		t.Fatal("expected payment_refunded event")
	}
}

func TestOpenRefundFailureAbortsPurchase(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.channel.fail = true

	req, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.15"))
	if !pkgerrors.HasCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
	if req != nil {
		t.Fatal("no request should survive a failed refund")
	}
	var count int64
	if err := h.client.DB().Model(&models.PendingRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("pending request leaked: %d", count)
	}
	if len(h.oracle.requests) != 0 {
		t.Fatalf("oracle must not hear about an aborted purchase: %v", h.oracle.requests)
	}
}

func TestOpenRejectsUnderpayment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.Open(context.Background(), "0xalice", 2, decimal.RequireFromString("0.19"))
	if !pkgerrors.HasCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
	var count int64
	if err := h.client.DB().Model(&models.PendingRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("underpaid purchase must not persist")
	}
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	price := decimal.RequireFromString("0.1")

	cases := map[string]struct {
		requester string
		batch     int
	}{
		"empty requester": {"", 1},
		"zero batch":      {"0xalice", 0},
		"batch over max":  {"0xalice", 11},
	}
	for name, tc := range cases {
		if _, err := h.svc.Open(context.Background(), tc.requester, tc.batch, price); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestOpenRejectsWhenReservationRefused(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.reserver.err = pkgerrors.New(pkgerrors.CodeCapExceeded, "emission cap reached")

	_, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}
	var count int64
	if err := h.client.DB().Model(&models.PendingRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("refused reservation must not persist a request")
	}
}

func TestOpenRejectsNestedEntry(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if err := h.guard.Enter(); err != nil {
		t.Fatalf("enter: %v", err)
	}
	defer h.guard.Exit()

	_, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeReentry) {
		t.Fatalf("expected reentry rejection, got %v", err)
	}
	var count int64
	if err := h.client.DB().Model(&models.PendingRequest{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatal("nested open must not persist a request")
	}
}

func TestOpenRespectsGate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.gate.locked = true

	_, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodeEngineLocked) {
		t.Fatalf("expected engine locked, got %v", err)
	}
}

func TestFulfillRespectsGate(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Pausing after the request opened must hold its fulfillment too.
	h.gate.locked = true
	_, err = h.svc.Fulfill(context.Background(), req.ID, 7)
	if !pkgerrors.HasCode(err, pkgerrors.CodeEngineLocked) {
		t.Fatalf("expected engine locked, got %v", err)
	}
	if h.distributor.calls != 0 {
		t.Fatal("distributor must not run while the engine is paused")
	}
	if got := h.load(t, req.ID).Status; got != enums.RequestStatusPending {
		t.Fatalf("status = %s", got)
	}

	// Unpausing lets the same request through.
	h.gate.locked = false
	if _, err := h.svc.Fulfill(context.Background(), req.ID, 7); err != nil {
		t.Fatalf("fulfill after unpause: %v", err)
	}
}

func TestOpenSurvivesOracleFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.oracle.fail = true

	req, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// The request stays pending for the expiry sweep to clean up.
	if got := h.load(t, req.ID).Status; got != enums.RequestStatusPending {
		t.Fatalf("status = %s", got)
	}
}

func TestOpenHoldsHeadroomAgainstSecondRequest(t *testing.T) {
	t.Parallel()

	// One pack of headroom total: of two batch-1 opens, exactly the first may
	// succeed; the second is refused at request time, not at fulfillment.
	dsn := "file:randomness_cap_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, true, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(
		&models.PendingRequest{}, &models.OutboxEvent{}, &models.EmissionState{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledger, err := emission.NewService(emission.NewRepository(client.DB()), nil)
	if err != nil {
		t.Fatalf("emission service: %v", err)
	}
	if _, err := ledger.Bootstrap(context.Background(), 15, 15); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	svc, err := NewService(
		NewRepository(client.DB()), client, &fakeOracle{}, &fakeGate{}, ledger,
		&fakeDistributor{}, security.NewGuard(), &fakeChannel{}, emitter,
		Params{
			PackSize:       15,
			PackPrice:      decimal.RequireFromString("0.1"),
			MaxBatchSize:   10,
			RequestTimeout: time.Minute,
			Treasury:       "treasury",
		}, nil, nil,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	price := decimal.RequireFromString("0.1")
	if _, err := svc.Open(context.Background(), "0xalice", 1, price); err != nil {
		t.Fatalf("first open: %v", err)
	}
	_, err = svc.Open(context.Background(), "0xbob", 1, price)
	if !pkgerrors.HasCode(err, pkgerrors.CodeCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}

	totals, err := ledger.Totals(context.Background())
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Reserved != 15 || totals.Remaining() != 0 {
		t.Fatalf("reserved = %d remaining = %d", totals.Reserved, totals.Remaining())
	}
}

func TestFulfillConsumesRequestOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, err := h.svc.Open(context.Background(), "0xalice", 3, decimal.RequireFromString("0.3"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	result, err := h.svc.Fulfill(context.Background(), req.ID, 42)
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(result.ItemIDs) != 3 {
		t.Fatalf("unexpected items: %v", result.ItemIDs)
	}
	if h.distributor.calls != 1 || h.distributor.seeds[0] != 42 {
		t.Fatalf("distributor calls=%d seeds=%v", h.distributor.calls, h.distributor.seeds)
	}

	stored := h.load(t, req.ID)
	if stored.Status != enums.RequestStatusFulfilled {
		t.Fatalf("status = %s", stored.Status)
	}
	if stored.ResolvedAt == nil {
		t.Fatal("resolved_at not set")
	}
	if h.eventTypes(t)[enums.EventPackFulfilled] != 1 {
		t.Fatal("expected pack_fulfilled event")
	}
	// Fulfillment hands the reservation back as the units become emission.
	if h.reserver.reserved != 0 || h.reserver.releases != 1 {
		t.Fatalf("reserved = %d releases = %d", h.reserver.reserved, h.reserver.releases)
	}

	// A replayed callback is rejected without touching anything.
	_, err = h.svc.Fulfill(context.Background(), req.ID, 42)
	if !pkgerrors.HasCode(err, pkgerrors.CodeReplay) {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if h.distributor.calls != 1 {
		t.Fatalf("distributor ran again: %d", h.distributor.calls)
	}
}

func TestFulfillDistributorFailureKeepsRequestPending(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	req, err := h.svc.Open(context.Background(), "0xalice", 1, decimal.RequireFromString("0.1"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	h.distributor.fail = true
	_, err = h.svc.Fulfill(context.Background(), req.ID, 7)
	if !pkgerrors.HasCode(err, pkgerrors.CodeSupplyExceeded) {
		t.Fatalf("expected supply exceeded, got %v", err)
	}
	// The status flip rolls back with the allocation, so a later retry works.
	if got := h.load(t, req.ID).Status; got != enums.RequestStatusPending {
		t.Fatalf("status = %s", got)
	}

	h.distributor.fail = false
	if _, err := h.svc.Fulfill(context.Background(), req.ID, 7); err != nil {
		t.Fatalf("retry: %v", err)
	}
}

func TestFulfillExpiredRequestHoldsPayment(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	id := h.seedStale(t, 2*time.Minute)

	_, err := h.svc.Fulfill(context.Background(), id, 7)
	if !pkgerrors.HasCode(err, pkgerrors.CodeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	stored := h.load(t, id)
	if stored.Status != enums.RequestStatusExpired {
		t.Fatalf("status = %s", stored.Status)
	}
	if h.distributor.calls != 0 {
		t.Fatal("distributor must not run for an expired request")
	}
	// Expiry never moves money on its own.
	if len(h.channel.transfers) != 0 {
		t.Fatalf("unexpected transfers: %v", h.channel.transfers)
	}
	if h.gate.expired != 1 {
		t.Fatalf("expired counter = %d", h.gate.expired)
	}
	if h.eventTypes(t)[enums.EventRequestTimedOut] != 1 {
		t.Fatal("expected request_timed_out event")
	}
}

func TestFulfillUnknownRequest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.svc.Fulfill(context.Background(), uuid.New(), 7)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpireStaleSweep(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	stale1 := h.seedStale(t, 2*time.Minute)
	stale2 := h.seedStale(t, 3*time.Minute)
	fresh := h.seedStale(t, time.Second)

	flipped, err := h.svc.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if flipped != 2 {
		t.Fatalf("flipped = %d", flipped)
	}
	if got := h.load(t, stale1).Status; got != enums.RequestStatusExpired {
		t.Fatalf("stale1 status = %s", got)
	}
	if got := h.load(t, stale2).Status; got != enums.RequestStatusExpired {
		t.Fatalf("stale2 status = %s", got)
	}
	if got := h.load(t, fresh).Status; got != enums.RequestStatusPending {
		t.Fatalf("fresh status = %s", got)
	}
	if h.gate.expired != 2 {
		t.Fatalf("expired counter = %d", h.gate.expired)
	}
	if h.reserver.releases != 2 {
		t.Fatalf("releases = %d, want 2", h.reserver.releases)
	}
	if len(h.channel.transfers) != 0 {
		t.Fatalf("sweep must not transfer: %v", h.channel.transfers)
	}
	if h.eventTypes(t)[enums.EventRequestTimedOut] != 2 {
		t.Fatal("expected two request_timed_out events")
	}
}
