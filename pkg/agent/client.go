package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/circuitbreaker"
)

// DefaultSignedURLEndpoint is the upstream endpoint that exchanges an API
// key for a one-time conversation WebSocket URL.
const DefaultSignedURLEndpoint = "https://api.elevenlabs.io/v1/convai/conversation/get-signed-url"

var (
	// ErrUpstreamAuth means the signed-URL request was rejected.
	ErrUpstreamAuth = errors.New("agent: signed url request rejected")
	// ErrConnect means the WebSocket handshake to the agent failed.
	ErrConnect = errors.New("agent: websocket connect failed")
)

// Client opens authenticated sessions against the conversational agent
// service. A circuit breaker fronts the signed-URL endpoint so an upstream
// outage fails new calls fast instead of stacking up handshakes; nothing is
// retried, a failed handshake ends that call's automated path.
type Client struct {
	signedURLEndpoint string
	httpClient        *http.Client
	dialer            *websocket.Dialer
	breaker           *circuitbreaker.CircuitBreaker
	logger            *zap.Logger
}

// NewClient creates an agent client. An empty endpoint uses the upstream
// default. The timeout bounds the signed-URL fetch; the WebSocket open is
// bounded by the context passed to Connect.
func NewClient(signedURLEndpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if signedURLEndpoint == "" {
		signedURLEndpoint = DefaultSignedURLEndpoint
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		signedURLEndpoint: signedURLEndpoint,
		httpClient:        &http.Client{Timeout: timeout},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

type signedURLResponse struct {
	SignedURL string `json:"signed_url"`
}

// GetSignedURL fetches a short-lived, pre-authorized WebSocket URL scoped to
// one conversation with the given agent.
func (c *Client) GetSignedURL(ctx context.Context, agentID, apiKey string) (string, error) {
	var signedURL string

	err := c.breaker.Execute(ctx, func() error {
		reqURL := fmt.Sprintf("%s?agent_id=%s", c.signedURLEndpoint, url.QueryEscape(agentID))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("agent: build signed url request: %w", err)
		}
		req.Header.Set("xi-api-key", apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("%w: status %d: %s", ErrUpstreamAuth, resp.StatusCode, string(body))
		}

		var parsed signedURLResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUpstreamAuth, err)
		}
		if parsed.SignedURL == "" {
			return fmt.Errorf("%w: empty signed_url in response", ErrUpstreamAuth)
		}

		signedURL = parsed.SignedURL
		return nil
	})
	if err != nil {
		return "", err
	}

	return signedURL, nil
}

// BreakerState reports the signed-URL circuit breaker state for health
// reporting: "healthy" while closed, "degraded" otherwise.
func (c *Client) BreakerState() string {
	switch c.breaker.GetState() {
	case circuitbreaker.StateClosed:
		return "healthy"
	case circuitbreaker.StateHalfOpen:
		return "recovering"
	default:
		return "unhealthy"
	}
}

// Connect opens the WebSocket to a signed conversation URL. It returns only
// once the socket is open; a dial failure or context expiry is a
// ConnectError for the caller.
func (c *Client) Connect(ctx context.Context, signedURL string) (*Session, error) {
	conn, resp, err := c.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("%w: %v (status %d)", ErrConnect, err, status)
	}

	return newSession(conn, c.logger), nil
}
