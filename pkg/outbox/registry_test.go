package outbox

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "packdrop-domain-events"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return reg
}

func envelopeRow(t *testing.T, eventType enums.OutboxEventType, aggType enums.OutboxAggregateType, data any) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	env := PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       payload,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggType,
		AggregateID:   "42",
		Payload:       raw,
	}
}

func TestResolvePackFulfilled(t *testing.T) {
	reg := testRegistry(t)
	row := envelopeRow(t, enums.EventPackFulfilled, enums.AggregatePackRequest, PackFulfilledEvent{
		RequestID: uuid.NewString(),
		Requester: "0xfeed",
		BatchSize: 2,
		ItemIDs:   []uint64{1, 2, 3},
	})

	resolved, err := reg.Resolve(row)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "packdrop-domain-events" {
		t.Fatalf("unexpected topic %s", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*PackFulfilledEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.BatchSize != 2 || len(payload.ItemIDs) != 3 {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestResolveRejectsUnknownType(t *testing.T) {
	reg := testRegistry(t)
	row := envelopeRow(t, enums.OutboxEventType("mystery"), enums.AggregateItem, nil)

	_, err := reg.Resolve(row)
	var nonRetryable NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable, got %v", err)
	}
}

func TestResolveRejectsAggregateMismatch(t *testing.T) {
	reg := testRegistry(t)
	row := envelopeRow(t, enums.EventDeckExecuted, enums.AggregateItem, DeckExecutedEvent{DeckName: "starter"})

	var nonRetryable NonRetryableError
	if _, err := reg.Resolve(row); !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable, got %v", err)
	}
}
