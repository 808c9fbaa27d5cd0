package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solana-sos/emergency/domain"
	"github.com/solana-sos/emergency/domain/entities"
	"github.com/solana-sos/emergency/domain/repositories"
)

const defaultTimeout = 10 * time.Second

// HTTPConfig holds configuration for the HTTP dispatcher gateway
type HTTPConfig struct {
	BaseURL string        // Required: gateway base URL, e.g. https://cad.example.org/v1
	APIKey  string        // Optional: sent as a bearer token
	Timeout time.Duration // Optional: per request timeout
}

// ValidateHTTPConfig validates the HTTPConfig
func ValidateHTTPConfig(config HTTPConfig) error {
	if config.BaseURL == "" {
		return fmt.Errorf("dispatcher base URL is required")
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return fmt.Errorf("dispatcher base URL must be http or https, got %q", config.BaseURL)
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be positive, got %s", config.Timeout)
	}
	return nil
}

type dialRequest struct {
	Number       string `json:"number"`
	LocationHint string `json:"location_hint"`
}

type dialResponse struct {
	CallID string `json:"call_id"`
}

type contextRequest struct {
	CallID  string                     `json:"call_id,omitempty"`
	Context entities.DispatcherContext `json:"context"`
}

type locationRequest struct {
	CallID    string  `json:"call_id,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// HTTPTransport places calls and delivers context through a dispatch gateway
// speaking JSON over HTTP.
type HTTPTransport struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger

	mu     sync.RWMutex
	callID string
}

var _ repositories.DispatcherTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTP dispatcher transport
func NewHTTPTransport(config HTTPConfig, logger *zap.Logger) (*HTTPTransport, error) {
	if err := ValidateHTTPConfig(config); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
		logger.Info("Using default dispatcher timeout", zap.Duration("timeout", timeout))
	}

	return &HTTPTransport{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Dial implements repositories.DispatcherTransport
func (t *HTTPTransport) Dial(ctx context.Context, number, locationHint string) error {
	var resp dialResponse
	if err := t.post(ctx, "/calls", dialRequest{Number: number, LocationHint: locationHint}, &resp); err != nil {
		return err
	}

	t.mu.Lock()
	t.callID = resp.CallID
	t.mu.Unlock()

	t.logger.Info("Emergency call placed",
		zap.String("number", number),
		zap.String("callID", resp.CallID))
	return nil
}

// DeliverContext implements repositories.DispatcherTransport
func (t *HTTPTransport) DeliverContext(ctx context.Context, dispatcherContext entities.DispatcherContext) error {
	req := contextRequest{CallID: t.CallID(), Context: dispatcherContext}
	if err := t.post(ctx, "/context", req, nil); err != nil {
		return err
	}

	t.logger.Info("Dispatcher context delivered",
		zap.String("callID", req.CallID),
		zap.String("category", string(dispatcherContext.Category)))
	return nil
}

// ShareLocation implements repositories.DispatcherTransport
func (t *HTTPTransport) ShareLocation(ctx context.Context, location entities.Coordinates) error {
	req := locationRequest{
		CallID:    t.CallID(),
		Latitude:  location.Latitude,
		Longitude: location.Longitude,
	}
	return t.post(ctx, "/locations", req, nil)
}

// CallID returns the gateway id of the last placed call
func (t *HTTPTransport) CallID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.callID
}

func (t *HTTPTransport) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request: %w", domain.ErrTransport, err)
	}

	url := t.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create HTTP request: %w", domain.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	t.logger.Debug("Sending request to dispatch gateway", zap.String("url", url))

	resp, err := t.client.Do(httpReq)
	if err != nil {
		t.logger.Error("Failed to execute HTTP request", zap.String("url", url), zap.Error(err))
		return fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		t.logger.Error("Dispatch gateway returned error",
			zap.String("url", url),
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(errorBody)))
		return fmt.Errorf("%w: gateway returned %d for %s", domain.ErrTransport, resp.StatusCode, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: failed to decode response: %w", domain.ErrTransport, err)
	}
	return nil
}
