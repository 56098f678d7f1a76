package catalog

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/outbox"
)

type fakeLocks struct {
	locked bool
}

func (f *fakeLocks) CatalogLocked(ctx context.Context) (bool, error) {
	return f.locked, nil
}

func newTestClient(t *testing.T) *db.Client {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	client, err := db.New(context.Background(), config.DBConfig{DSN: dsn}, true, nil)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := client.DB().AutoMigrate(&models.Item{}, &models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func newTestService(t *testing.T, locks *fakeLocks) (Service, *db.Client) {
	t.Helper()
	client := newTestClient(t)
	repo := NewRepository(client.DB())
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	svc, err := NewService(repo, client, locks, emitter, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, client
}

func TestRegisterAndGet(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t, &fakeLocks{})
	ctx := context.Background()

	item, err := svc.Register(ctx, "0xadmin", RegisterItemInput{
		ID:        7,
		Name:      "Glacier Wyrm",
		Rarity:    enums.RarityMythical,
		SupplyCap: 100,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !item.Active || item.Removed {
		t.Fatalf("unexpected item flags: %+v", item)
	}

	got, err := svc.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Glacier Wyrm" || got.Rarity != enums.RarityMythical {
		t.Fatalf("unexpected item: %+v", got)
	}

	var events []models.OutboxEvent
	if err := client.DB().Find(&events).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	if len(events) != 1 || events[0].EventType != enums.EventCatalogItemAdded {
		t.Fatalf("expected catalog_item_added event, got %+v", events)
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeLocks{})
	ctx := context.Background()
	input := RegisterItemInput{ID: 1, Name: "Ember Fox", Rarity: enums.RarityCommon}

	if _, err := svc.Register(ctx, "0xadmin", input); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := svc.Register(ctx, "0xadmin", input)
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegisterRejectsWhenCatalogLocked(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeLocks{locked: true})
	_, err := svc.Register(context.Background(), "0xadmin", RegisterItemInput{
		ID: 2, Name: "Stone Golem", Rarity: enums.RarityCommon,
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeEngineLocked) {
		t.Fatalf("expected engine locked, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeLocks{})
	ctx := context.Background()

	cases := []RegisterItemInput{
		{ID: 0, Name: "x", Rarity: enums.RarityCommon},
		{ID: 3, Name: "", Rarity: enums.RarityCommon},
		{ID: 3, Name: "x", Rarity: enums.Rarity("legendary")},
		{ID: 3, Name: "x", Rarity: enums.RarityCommon, RoyaltyRateBps: 10001},
		{ID: 3, Name: "x", Rarity: enums.RarityCommon, RoyaltyRateBps: 250},
	}
	for _, input := range cases {
		if _, err := svc.Register(ctx, "0xadmin", input); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestRemoveIsTerminal(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, &fakeLocks{})
	ctx := context.Background()

	if _, err := svc.Register(ctx, "0xadmin", RegisterItemInput{ID: 9, Name: "Tide Caller", Rarity: enums.RarityRare}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Remove(ctx, 9); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.Reactivate(ctx, 9); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict reactivating removed item, got %v", err)
	}
	item, err := svc.Get(ctx, 9)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !item.Removed || item.Active {
		t.Fatalf("expected removed inactive item, got %+v", item)
	}
}

func TestDeactivateExcludesFromAllocatablePool(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t, &fakeLocks{})
	repo := NewRepository(client.DB())
	ctx := context.Background()

	for id, name := range map[uint64]string{10: "Moss Sprite", 11: "Fen Sprite"} {
		if _, err := svc.Register(ctx, "0xadmin", RegisterItemInput{ID: id, Name: name, Rarity: enums.RarityCommon}); err != nil {
			t.Fatalf("register %d: %v", id, err)
		}
	}
	if err := svc.Deactivate(ctx, 10); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	pool, err := repo.ListAllocatableByRarity(ctx, enums.RarityCommon)
	if err != nil {
		t.Fatalf("list pool: %v", err)
	}
	if len(pool) != 1 || pool[0].ID != 11 {
		t.Fatalf("unexpected pool: %+v", pool)
	}
}

func TestIncrementSupplyEnforcesCap(t *testing.T) {
	t.Parallel()

	svc, client := newTestService(t, &fakeLocks{})
	repo := NewRepository(client.DB())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "0xadmin", RegisterItemInput{ID: 20, Name: "Last Ember", Rarity: enums.RaritySerialized, SupplyCap: 2}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ok, err := repo.IncrementSupply(ctx, 20, 2)
	if err != nil || !ok {
		t.Fatalf("expected allocation within cap, got ok=%v err=%v", ok, err)
	}
	ok, err = repo.IncrementSupply(ctx, 20, 1)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if ok {
		t.Fatal("expected allocation past cap to be refused")
	}

	pool, err := repo.ListAllocatableByRarity(ctx, enums.RaritySerialized)
	if err != nil {
		t.Fatalf("list pool: %v", err)
	}
	if len(pool) != 0 {
		t.Fatalf("exhausted item should leave the pool, got %+v", pool)
	}
}
