package randomness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mintforge/packdrop-backend/pkg/config"
	pkgerrors "github.com/mintforge/packdrop-backend/pkg/errors"
	"github.com/mintforge/packdrop-backend/pkg/logger"
)

// Oracle is the external randomness source. The engine asks it for a seed
// and the oracle calls back into the fulfillment endpoint asynchronously.
type Oracle interface {
	RequestRandomness(ctx context.Context, requestID uuid.UUID) error
}

// HTTPOracle notifies the oracle service over JSON/HTTP.
type HTTPOracle struct {
	endpoint string
	client   *http.Client
	logg     *logger.Logger
}

// NewHTTPOracle builds the oracle notifier.
func NewHTTPOracle(cfg config.OracleConfig, logg *logger.Logger) (*HTTPOracle, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("oracle endpoint is required")
	}
	return &HTTPOracle{
		endpoint: endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		logg:     logg,
	}, nil
}

type oracleRequest struct {
	RequestID string `json:"request_id"`
}

// RequestRandomness registers a pending request with the oracle.
func (o *HTTPOracle) RequestRandomness(ctx context.Context, requestID uuid.UUID) error {
	body, err := json.Marshal(oracleRequest{RequestID: requestID.String()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/v1/requests", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "oracle unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("oracle refused request (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw))))
}

// NoopOracle is used in dev setups without a live oracle; fulfillments are
// driven manually through the oracle endpoint instead.
type NoopOracle struct{}

// RequestRandomness does nothing.
func (NoopOracle) RequestRandomness(ctx context.Context, requestID uuid.UUID) error {
	return nil
}
