package outbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mintforge/packdrop-backend/pkg/config"
	"github.com/mintforge/packdrop-backend/pkg/db/models"
	"github.com/mintforge/packdrop-backend/pkg/enums"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
// An empty AggregateType means the event may hang off any aggregate.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry with the configured topic names.
// Every engine event flows to the single domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.DomainTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventItemAllocated,
			AggregateType:  enums.AggregateItem,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &ItemAllocatedEvent{} },
		},
		{
			EventType:      enums.EventCatalogItemAdded,
			AggregateType:  enums.AggregateItem,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &CatalogItemAddedEvent{} },
		},
		{
			EventType:      enums.EventPackRequested,
			AggregateType:  enums.AggregatePackRequest,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &PackRequestedEvent{} },
		},
		{
			EventType:      enums.EventPackFulfilled,
			AggregateType:  enums.AggregatePackRequest,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &PackFulfilledEvent{} },
		},
		{
			EventType:      enums.EventRequestTimedOut,
			AggregateType:  enums.AggregatePackRequest,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &RequestTimedOutEvent{} },
		},
		{
			EventType:      enums.EventDeckExecuted,
			AggregateType:  enums.AggregateDeck,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &DeckExecutedEvent{} },
		},
		{
			// Refunds flow from both purchase channels.
			EventType:      enums.EventPaymentRefunded,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &PaymentRefundedEvent{} },
		},
		{
			EventType:      enums.EventRoyaltyPaid,
			AggregateType:  enums.AggregateDeck,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &RoyaltyPaidEvent{} },
		},
		{
			EventType:      enums.EventRoyaltySkipped,
			AggregateType:  enums.AggregateDeck,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &RoyaltySkippedEvent{} },
		},
		{
			EventType:      enums.EventPauseToggled,
			AggregateType:  enums.AggregateSecurity,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &SecurityToggledEvent{} },
		},
		{
			EventType:      enums.EventLockToggled,
			AggregateType:  enums.AggregateSecurity,
			Topic:          topic,
			PayloadFactory: func() interface{} { return &SecurityToggledEvent{} },
		},
	} {
		reg.register(desc)
	}
	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	r.entries[desc.EventType] = desc
}

// Resolve decodes an outbox row into its typed payload and target topic.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != "" && desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
