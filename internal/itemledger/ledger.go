package itemledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mintforge/packdrop-backend/pkg/config"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

// Ledger is the external ownership ledger the engine mints into. The engine
// tracks supply; the ledger tracks who holds what.
type Ledger interface {
	Mint(ctx context.Context, owner string, itemID uint64, qty int) error
	Ping(ctx context.Context) error
}

var errEndpointRequired = errors.New("item ledger endpoint is required")

// HTTPLedger talks to the ledger service over JSON/HTTP.
type HTTPLedger struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logg     *logger.Logger
}

// NewHTTPLedger validates the configuration and builds the client.
func NewHTTPLedger(cfg config.ItemLedgerConfig, logg *logger.Logger) (*HTTPLedger, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	return &HTTPLedger{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: cfg.Timeout},
		logg:     logg,
	}, nil
}

type mintRequest struct {
	Owner    string `json:"owner"`
	ItemID   uint64 `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type ledgerError struct {
	Message string `json:"message"`
}

// Mint records qty units of itemID for owner on the external ledger.
func (l *HTTPLedger) Mint(ctx context.Context, owner string, itemID uint64, qty int) error {
	if owner == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	body, err := json.Marshal(mintRequest{Owner: owner, ItemID: itemID, Quantity: qty})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/v1/mints", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "item ledger unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	var lerr ledgerError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &lerr)
	msg := lerr.Message
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	if l.logg != nil {
		l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
			"status":  resp.StatusCode,
			"item_id": itemID,
		}), "item ledger mint refused")
	}
	return pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("item ledger mint failed (%d): %s", resp.StatusCode, msg))
}

// Ping verifies the ledger service is reachable.
func (l *HTTPLedger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "item ledger unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("item ledger health returned %d", resp.StatusCode))
	}
	return nil
}
