package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// HTTPConfig configures an HTTP adapter.
type HTTPConfig struct {
	Endpoint string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// AuthToken, when set, is sent as a bearer token.
	AuthToken string

	// Client overrides the HTTP client; its Timeout is left untouched.
	Client *http.Client

	Logger *log.Logger
}

// HTTP posts each call to a remote endpoint.
type HTTP struct {
	name      string
	endpoint  string
	headers   map[string]string
	authToken string
	client    *http.Client
	logger    *log.Logger
}

// NewHTTP returns an HTTP adapter registered as name.
func NewHTTP(name string, cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &HTTP{
		name:      name,
		endpoint:  cfg.Endpoint,
		headers:   headers,
		authToken: cfg.AuthToken,
		client:    client,
		logger:    logger.With("adapter", name, "kind", KindHTTP),
	}
}

// Name returns the tool name.
func (h *HTTP) Name() string { return h.name }

// Run POSTs the request and decodes the response.
func (h *HTTP) Run(ctx context.Context, op string, params map[string]any) tool.Output {
	payload, err := encodeRequest(op, params)
	if err != nil {
		return tool.Fail("http_error:encode", short(err.Error()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return tool.Fail("network_error", short(err.Error()))
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.WithError(err).Warn("request failed", "op", op)
		if isTimeout(err) {
			return tool.Fail("network_error", "timeout")
		}
		return tool.Fail("network_error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		h.logger.WithError(err).Warn("reading response failed", "op", op)
		if isTimeout(err) {
			return tool.Fail("network_error", "timeout")
		}
		return tool.Fail("network_error")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		h.logger.Warn("endpoint returned error status", "op", op, "status", resp.StatusCode)
		return tool.Fail("network_error", fmt.Sprintf("http_status:%d", resp.StatusCode))
	}

	out, kind, err := decodeResponse(body)
	if err != nil {
		h.logger.WithError(err).Debug("endpoint returned malformed body", "op", op)
		return badJSON(kind, bytes.TrimSpace(body))
	}
	return normalize(h.name, out)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
