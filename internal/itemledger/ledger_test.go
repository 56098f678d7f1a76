package itemledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mintforge/packdrop-backend/pkg/config"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
)

func newLedger(t *testing.T, handler http.HandlerFunc) *HTTPLedger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ledger, err := NewHTTPLedger(config.ItemLedgerConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Timeout:  time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestMintSendsRequest(t *testing.T) {
	t.Parallel()

	var got mintRequest
	var auth string
	ledger := newLedger(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/mints" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	})

	if err := ledger.Mint(context.Background(), "0xalice", 7, 3); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got.Owner != "0xalice" || got.ItemID != 7 || got.Quantity != 3 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if auth != "Bearer test-key" {
		t.Fatalf("unexpected auth header %q", auth)
	}
}

func TestMintMapsFailureToDependencyError(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(ledgerError{Message: "supply exhausted"})
	})

	err := ledger.Mint(context.Background(), "0xalice", 7, 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestMintValidatesInput(t *testing.T) {
	t.Parallel()

	ledger := newLedger(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	if err := ledger.Mint(context.Background(), "", 1, 1); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := ledger.Mint(context.Background(), "0xalice", 1, 0); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNewHTTPLedgerRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPLedger(config.ItemLedgerConfig{}, nil); err == nil {
		t.Fatal("expected endpoint error")
	}
}
