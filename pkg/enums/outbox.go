package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateItem        OutboxAggregateType = "item"
	AggregateDeck        OutboxAggregateType = "deck"
	AggregatePackRequest OutboxAggregateType = "pack_request"
	AggregateSecurity    OutboxAggregateType = "security"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateItem,
	AggregateDeck,
	AggregatePackRequest,
	AggregateSecurity,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventItemAllocated    OutboxEventType = "item_allocated"
	EventDeckExecuted     OutboxEventType = "deck_executed"
	EventPackRequested    OutboxEventType = "pack_requested"
	EventPackFulfilled    OutboxEventType = "pack_fulfilled"
	EventRequestTimedOut  OutboxEventType = "request_timed_out"
	EventPaymentRefunded  OutboxEventType = "payment_refunded"
	EventRoyaltyPaid      OutboxEventType = "royalty_paid"
	EventRoyaltySkipped   OutboxEventType = "royalty_skipped"
	EventPauseToggled     OutboxEventType = "pause_toggled"
	EventLockToggled      OutboxEventType = "lock_toggled"
	EventCatalogItemAdded OutboxEventType = "catalog_item_added"
)

var validEventTypes = []OutboxEventType{
	EventItemAllocated,
	EventDeckExecuted,
	EventPackRequested,
	EventPackFulfilled,
	EventRequestTimedOut,
	EventPaymentRefunded,
	EventRoyaltyPaid,
	EventRoyaltySkipped,
	EventPauseToggled,
	EventLockToggled,
	EventCatalogItemAdded,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason categorizes terminal publish failures.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	DLQReasonUnresolvable OutboxDLQErrorReason = "unresolvable"
)

// IsValid reports whether the value is a known OutboxDLQErrorReason.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == DLQReasonMaxAttempts || r == DLQReasonUnresolvable
}
