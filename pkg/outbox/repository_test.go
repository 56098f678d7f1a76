package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

func setupOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Both tables must migrate on sqlite: the dev/test path has no
	// postgres-side column defaults to lean on.
	if err := conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestRepositoryInsertAndMarkRoundTrip(t *testing.T) {
	t.Parallel()
	conn := setupOutboxTestDB(t)
	repo := NewRepository(conn)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPackRequested,
		AggregateType: enums.AggregatePackRequest,
		AggregateID:   uuid.NewString(),
		Payload:       json.RawMessage(`{"version":1}`),
	}
	if err := repo.Insert(conn, event); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.MarkFailedTx(conn, event.ID, errors.New("publish refused")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkPublishedTx(conn, event.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}

	var stored models.OutboxEvent
	if err := conn.First(&stored, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if stored.AttemptCount != 1 {
		t.Fatalf("attempt count = %d, want 1", stored.AttemptCount)
	}
	if stored.PublishedAt == nil {
		t.Fatal("published_at not set")
	}
	if stored.LastError == nil || *stored.LastError != "publish refused" {
		t.Fatalf("unexpected last_error %v", stored.LastError)
	}
}

func TestDLQInsertAssignsID(t *testing.T) {
	t.Parallel()
	conn := setupOutboxTestDB(t)
	dlq := NewDLQRepository(conn)

	eventID := uuid.New()
	entry := models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventPackFulfilled,
		AggregateType: enums.AggregatePackRequest,
		AggregateID:   uuid.NewString(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.DLQReasonMaxAttempts,
		AttemptCount:  10,
	}
	if err := dlq.InsertTx(conn, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stored, err := dlq.FindByEventID(context.Background(), eventID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored == nil {
		t.Fatal("dead-letter row not found")
	}
	if stored.ID == uuid.Nil {
		t.Fatal("dead-letter row has no id")
	}
}
