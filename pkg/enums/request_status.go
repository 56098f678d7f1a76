package enums

import "fmt"

// RequestStatus tracks the lifecycle of a pending randomness request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"
	RequestStatusFulfilled RequestStatus = "fulfilled"
	RequestStatusExpired   RequestStatus = "expired"
)

var validRequestStatuses = []RequestStatus{
	RequestStatusPending,
	RequestStatusFulfilled,
	RequestStatusExpired,
}

// String implements fmt.Stringer.
func (s RequestStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RequestStatus.
func (s RequestStatus) IsValid() bool {
	for _, candidate := range validRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo enforces the one-way Pending -> Fulfilled | Expired machine.
// Fulfilled and Expired are both terminal.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s != RequestStatusPending {
		return false
	}
	return next == RequestStatusFulfilled || next == RequestStatusExpired
}

// ParseRequestStatus converts raw input into a RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, error) {
	for _, candidate := range validRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid request status %q", value)
}
