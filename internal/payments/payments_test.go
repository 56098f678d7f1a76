package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/pkg/config"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

func TestRoyaltyShare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		price string
		bps   int
		want  string
	}{
		{price: "0.05", bps: 250, want: "0.00125"},
		{price: "1", bps: 10000, want: "1"},
		{price: "0.1", bps: 0, want: "0"},
		{price: "0", bps: 500, want: "0"},
		// Rounded down at 8 places.
		{price: "0.00000001", bps: 1, want: "0"},
	}
	for _, tc := range cases {
		got := RoyaltyShare(decimal.RequireFromString(tc.price), tc.bps)
		if !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("RoyaltyShare(%s, %d) = %s, want %s", tc.price, tc.bps, got, tc.want)
		}
	}
}

func TestOverpayment(t *testing.T) {
	t.Parallel()

	paid := decimal.RequireFromString("0.3")
	due := decimal.RequireFromString("0.1")
	if got := Overpayment(paid, due); !got.Equal(decimal.RequireFromString("0.2")) {
		t.Fatalf("unexpected overpayment %s", got)
	}
	// Exact payment refunds nothing.
	if got := Overpayment(due, due); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
	// Underpayment never goes negative here; the caller validates it earlier.
	if got := Overpayment(due, paid); !got.IsZero() {
		t.Fatalf("expected zero, got %s", got)
	}
}

func newChannel(t *testing.T, handler http.HandlerFunc) *HTTPChannel {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	channel, err := NewHTTPChannel(config.PaymentsConfig{
		Endpoint: srv.URL,
		Timeout:  time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	return channel
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	var got transferRequest
	channel := newChannel(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	amount := decimal.RequireFromString("0.2")
	if err := channel.Transfer(context.Background(), "treasury", "0xalice", amount); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got.From != "treasury" || got.To != "0xalice" || !got.Amount.Equal(amount) {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestTransferFailureIsPaymentError(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funds", http.StatusPaymentRequired)
	})
	err := channel.Transfer(context.Background(), "treasury", "0xalice", decimal.RequireFromString("0.1"))
	if !pkgerrors.HasCode(err, pkgerrors.CodePayment) {
		t.Fatalf("expected payment error, got %v", err)
	}
}

func TestTransferValidation(t *testing.T) {
	t.Parallel()

	channel := newChannel(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})
	if err := channel.Transfer(context.Background(), "", "0xalice", decimal.New(1, 0)); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := channel.Transfer(context.Background(), "treasury", "0xalice", decimal.Zero); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
