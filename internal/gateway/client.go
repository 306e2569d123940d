package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"vendora/internal/config"
	"vendora/internal/metrics"
	"vendora/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Client is the payment gateway adapter. Authorizations use hold-then-capture
// semantics: CreateAuthorization reserves funds without moving them, so a
// booking can be confirmed before money moves.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

func NewClient(cfg config.GatewayConfig, logger *zerolog.Logger) *Client {
	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}

	httpClient := credentials.Client(context.Background())
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = time.Duration(models.DefaultGatewayTimeout) * time.Second
	}
	httpClient.Timeout = timeout

	rps := cfg.RPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
}

type authorizationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateAuthorization places a hold for the amount and returns the gateway's
// authorization reference. Funds are not captured.
func (c *Client) CreateAuthorization(ctx context.Context, amountCents int64, meta models.PaymentMetadata) (string, error) {
	body := map[string]interface{}{
		"amount_cents": amountCents,
		"capture":      false,
		"metadata":     meta,
	}

	var resp authorizationResponse
	if err := c.post(ctx, "/v1/authorizations", body, &resp); err != nil {
		metrics.IncGatewayCall("create_authorization", "error")
		return "", err
	}

	metrics.IncGatewayCall("create_authorization", "ok")
	c.logger.Info().
		Str("authorization_ref", resp.ID).
		Int64("booking_id", meta.BookingID).
		Msg("authorization created")
	return resp.ID, nil
}

// Capture settles a previously created authorization hold.
func (c *Client) Capture(ctx context.Context, authorizationRef string) (string, error) {
	path := fmt.Sprintf("/v1/authorizations/%s/capture", authorizationRef)

	var resp authorizationResponse
	if err := c.post(ctx, path, map[string]interface{}{}, &resp); err != nil {
		metrics.IncGatewayCall("capture", "error")
		return "", err
	}

	metrics.IncGatewayCall("capture", "ok")
	c.logger.Info().Str("captured_ref", resp.ID).Msg("authorization captured")
	return resp.ID, nil
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &GatewayError{Code: CodeUnavailable, Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return &GatewayError{Code: CodeInvalidRequest, Message: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return &GatewayError{Code: CodeInvalidRequest, Message: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are definite negatives; the
		// caller records them and does not retry.
		return &GatewayError{Code: CodeUnavailable, Message: fmt.Sprintf("transport: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.translateError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Code: CodeUnavailable, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

func (c *Client) translateError(resp *http.Response) *GatewayError {
	var body errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	message := body.Error.Message
	if message == "" {
		message = resp.Status
	}

	var code ErrorCode
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		code = CodeAuth
	case resp.StatusCode == http.StatusTooManyRequests:
		code = CodeRateLimited
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		code = CodeInvalidRequest
	default:
		code = CodeUnavailable
	}

	return &GatewayError{Code: code, Message: message}
}
