package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/toolgate/internal/log"
)

func TestHTTPRoundTrip(t *testing.T) {
	var gotReq request
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true, "result": {"title": "doc"}, "evidence": {"coverage": 0.95, "sources": ["meta", "web"]}}`))
	}))
	defer srv.Close()

	h := NewHTTP("meta", HTTPConfig{
		Endpoint:  srv.URL,
		Timeout:   time.Second,
		Headers:   map[string]string{"X-Agent": "toolgate"},
		AuthToken: "s3cret",
		Logger:    log.Discard(),
	})
	out := h.Run(context.Background(), "extract", map[string]any{"url": "https://example.org/doc"})

	require.True(t, out.OK, "reasons: %v", out.Reasons)
	assert.Equal(t, map[string]any{"title": "doc"}, out.Result)
	assert.Equal(t, 0.95, out.Evidence.Coverage)
	assert.Equal(t, []string{"meta", "web"}, out.Evidence.Sources)

	assert.Equal(t, "extract", gotReq.Op)
	assert.Equal(t, map[string]any{"url": "https://example.org/doc"}, gotReq.Params)
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "toolgate", gotHeaders.Get("X-Agent"))
	assert.Equal(t, "Bearer s3cret", gotHeaders.Get("Authorization"))
}

func TestHTTPWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok": true, "evidence": {"sources": []}}`))
	}))
	defer srv.Close()

	out := NewHTTP("meta", HTTPConfig{Endpoint: srv.URL, Logger: log.Discard()}).Run(context.Background(), "ping", nil)

	require.True(t, out.OK)
	assert.Equal(t, DefaultCoverage, out.Evidence.Coverage)
	assert.Equal(t, []string{"meta"}, out.Evidence.Sources)
}

func TestHTTPFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reasons []string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			reasons: []string{"network_error", "http_status:503"},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>hi</html>"))
			},
			reasons: []string{"bad_json:syntax", "<html>hi</html>"},
		},
		{
			name: "truncated json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok": tr`))
			},
			reasons: []string{"bad_json:syntax", `{"ok": tr`},
		},
		{
			name: "ok is not a boolean",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok": "yes"}`))
			},
			reasons: []string{"bad_json:type", `{"ok": "yes"}`},
		},
		{
			name: "declined",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok": false, "reasons": ["low confidence"]}`))
			},
			reasons: []string{"low confidence"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			out := NewHTTP("meta", HTTPConfig{Endpoint: srv.URL, Logger: log.Discard()}).Run(context.Background(), "extract", nil)
			assert.False(t, out.OK)
			assert.Nil(t, out.Evidence)
			assert.Equal(t, tt.reasons, out.Reasons)
		})
	}
}

func TestHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewHTTP("meta", HTTPConfig{Endpoint: url, Timeout: time.Second, Logger: log.Discard()}).Run(context.Background(), "extract", nil)
	assert.False(t, out.OK)
	assert.Equal(t, []string{"network_error"}, out.Reasons)
}

func TestHTTPTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	out := NewHTTP("meta", HTTPConfig{Endpoint: srv.URL, Timeout: 50 * time.Millisecond, Logger: log.Discard()}).Run(context.Background(), "extract", nil)
	assert.False(t, out.OK)
	assert.Equal(t, []string{"network_error", "timeout"}, out.Reasons)
}
