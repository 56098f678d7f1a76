package outbox

import "github.com/shopspring/decimal"

// ItemAllocatedEvent is published for every item minted through the engine.
type ItemAllocatedEvent struct {
	ItemID    uint64 `json:"item_id"`
	Rarity    string `json:"rarity"`
	Owner     string `json:"owner"`
	Amount    int    `json:"amount"`
	BonusSlot bool   `json:"bonus_slot,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	DeckName  string `json:"deck_name,omitempty"`
}

// PackRequestedEvent is published when a pack purchase opens a pending request.
type PackRequestedEvent struct {
	RequestID string          `json:"request_id"`
	Requester string          `json:"requester"`
	BatchSize int             `json:"batch_size"`
	Payment   decimal.Decimal `json:"payment"`
}

// PackFulfilledEvent is published once a batch has fully distributed.
type PackFulfilledEvent struct {
	RequestID string   `json:"request_id"`
	Requester string   `json:"requester"`
	BatchSize int      `json:"batch_size"`
	ItemIDs   []uint64 `json:"item_ids"`
}

// RequestTimedOutEvent is published when a late fulfillment finds an expired request.
type RequestTimedOutEvent struct {
	RequestID string `json:"request_id"`
	Requester string `json:"requester"`
	BatchSize int    `json:"batch_size"`
}

// DeckExecutedEvent is published after an all-or-nothing deck execution.
type DeckExecutedEvent struct {
	DeckName string          `json:"deck_name"`
	Payer    string          `json:"payer"`
	ItemIDs  []uint64        `json:"item_ids"`
	Price    decimal.Decimal `json:"price"`
}

// PaymentRefundedEvent records an overage returned to the payer.
type PaymentRefundedEvent struct {
	Payer  string          `json:"payer"`
	Amount decimal.Decimal `json:"amount"`
}

// RoyaltyPaidEvent records a successful royalty transfer.
type RoyaltyPaidEvent struct {
	ItemID    uint64          `json:"item_id"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	DeckName  string          `json:"deck_name"`
}

// RoyaltySkippedEvent records a royalty transfer that failed and was skipped.
type RoyaltySkippedEvent struct {
	ItemID    uint64          `json:"item_id"`
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	DeckName  string          `json:"deck_name"`
	Reason    string          `json:"reason"`
}

// SecurityToggledEvent records a pause or lock flag change.
type SecurityToggledEvent struct {
	Flag    string `json:"flag"`
	Enabled bool   `json:"enabled"`
	Actor   string `json:"actor"`
}

// CatalogItemAddedEvent records an item appended to the catalog.
type CatalogItemAddedEvent struct {
	ItemID    uint64 `json:"item_id"`
	Name      string `json:"name"`
	Rarity    string `json:"rarity"`
	SupplyCap uint64 `json:"supply_cap"`
}
