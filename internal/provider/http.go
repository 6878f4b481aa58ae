package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/Ign14/PYMERP-sub000/internal/config"
)

const maxResponseBytes = 4 << 20

// HTTPGateway calls POST {base}/documents with a bearer token. Requests are
// rate limited client side and traced through otelhttp.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	name    string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPGateway(cfg config.ProviderConfig) *HTTPGateway {
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		if b := int(cfg.RatePerSec); b > 1 {
			burst = b
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGateway{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		name:    cfg.Name,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
	}
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (g *HTTPGateway) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, &Error{Message: "rate limit wait aborted", Transient: true, Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Message: "encode request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/documents", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Message: "provider unreachable", Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "read response", Transient: true, Err: err}
	}

	if resp.StatusCode >= 300 {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    responseMessage(resp.StatusCode, raw),
			Transient:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusRequestTimeout,
		}
	}

	var out IssueResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "malformed provider response", Transient: true, Err: err}
	}
	if out.Provider == "" {
		out.Provider = g.name
	}
	return &out, nil
}

func responseMessage(status int, raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
	}
	return fmt.Sprintf("provider returned %s", http.StatusText(status))
}
