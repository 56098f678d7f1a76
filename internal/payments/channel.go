package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mintforge/packdrop-backend/pkg/config"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

// Channel moves value between accounts. Transfers out of the treasury fund
// refunds and royalties; the purchase payment itself arrives before the
// engine runs.
type Channel interface {
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error
}

var errEndpointRequired = errors.New("payments endpoint is required")

// HTTPChannel talks to the payment service over JSON/HTTP.
type HTTPChannel struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logg     *logger.Logger
}

// NewHTTPChannel validates the configuration and builds the client.
func NewHTTPChannel(cfg config.PaymentsConfig, logg *logger.Logger) (*HTTPChannel, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errEndpointRequired
	}
	return &HTTPChannel{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
		client:   &http.Client{Timeout: cfg.Timeout},
		logg:     logg,
	}, nil
}

type transferRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Transfer sends amount from one account to another.
func (c *HTTPChannel) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if from == "" || to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer accounts are required")
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "transfer amount must be positive")
	}

	body, err := json.Marshal(transferRequest{From: from, To: to, Amount: amount})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePayment, err, "payment service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if c.logg != nil {
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"status": resp.StatusCode,
			"to":     to,
		}), "transfer refused")
	}
	return pkgerrors.New(pkgerrors.CodePayment,
		fmt.Sprintf("transfer failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))))
}
