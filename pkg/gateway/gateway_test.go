package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispodojo/agent-finder/pkg/config"
	"github.com/dispodojo/agent-finder/pkg/reporting"
)

func testSource(name string) config.SourceConfig {
	return config.SourceConfig{
		Name:              name,
		Enabled:           true,
		RequestsPerSecond: 1000,
		MaxConcurrent:     5,
		MaxRetries:        1,
		TimeoutSeconds:    5,
	}
}

func testLogger() *reporting.Logger {
	return reporting.Nop()
}

func TestGatewayGet(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		assert.Equal(t, "85001", r.URL.Query().Get("zip"))
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	g := New(testSource("redfin"), srv.Client(), testLogger(), nil)

	resp, err := g.Get(context.Background(), srv.URL, url.Values{"zip": {"85001"}})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, "hello", string(resp.Body))
	assert.NotEmpty(t, gotUA)

	stats := g.Stats()
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(1), stats.Successes)
	assert.Equal(t, int64(0), stats.Blocks)
}

func TestGatewayNon200PassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	g := New(testSource("realtor"), srv.Client(), testLogger(), nil)

	resp, err := g.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.OK())
}

func TestGatewayBlockClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"forbidden", http.StatusForbidden, "", ErrBlocked},
		{"rate limited", http.StatusTooManyRequests, "", ErrRateLimited},
		{"captcha page", http.StatusOK, "<html>Just a moment...</html>", ErrCaptcha},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := New(testSource("zillow"), srv.Client(), testLogger(), nil)

			_, err := g.Get(context.Background(), srv.URL, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsBlock(err))

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, "zillow", fe.Source)
			assert.Equal(t, int64(1), g.Stats().Blocks)
		})
	}
}

func TestGatewayCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := New(testSource("zillow"), srv.Client(), testLogger(), nil)

	for i := 0; i < breakerThreshold; i++ {
		_, err := g.Get(context.Background(), srv.URL, nil)
		assert.ErrorIs(t, err, ErrBlocked)
	}

	// The breaker is now open and requests fail without touching the server
	before := g.Stats().Blocks
	_, err := g.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, before, g.Stats().Blocks)
}

func TestGatewayContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	g := New(testSource("redfin"), srv.Client(), testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Get(ctx, srv.URL, nil)
	assert.Error(t, err)
}

func TestDetectCaptcha(t *testing.T) {
	assert.True(t, DetectCaptcha("please solve this reCAPTCHA to continue"))
	assert.True(t, DetectCaptcha("Checking your browser before accessing"))
	assert.False(t, DetectCaptcha("<html><body>123 Main St</body></html>"))
}

func TestRetryableNetError(t *testing.T) {
	assert.True(t, retryableNetError(&net.OpError{Op: "dial", Err: errors.New("connection refused")}))
	assert.True(t, retryableNetError(context.DeadlineExceeded))
	assert.True(t, retryableNetError(io.ErrUnexpectedEOF))
	assert.False(t, retryableNetError(errors.New("schema drift")))
	assert.False(t, retryableNetError(nil))
}

func TestHeaderRotation(t *testing.T) {
	h := BrowserHeaders()
	assert.NotEmpty(t, h["User-Agent"])
	assert.Contains(t, h["Accept"], "text/html")

	api := APIHeaders()
	assert.NotEmpty(t, api["User-Agent"])
	assert.Contains(t, api["Accept"], "application/json")
}
