// internal/network/httpclient_test.go
package network

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/specter/internal/config"
)

// -- Configuration and Defaults --

func TestClientConfigFrom_Defaults(t *testing.T) {
	cfg := ClientConfigFrom(config.NetworkConfig{}, nil)

	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultTLSHandshakeTimeout, cfg.TLSHandshakeTimeout)
	assert.Equal(t, DefaultResponseHeaderTimeout, cfg.ResponseHeaderTimeout)
	assert.Equal(t, DefaultIdleConnTimeout, cfg.IdleConnTimeout)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, DefaultMaxIdleConnsPerHost, cfg.MaxIdleConnsPerHost)
	assert.False(t, cfg.IgnoreTLSErrors)
}

func TestClientConfigFrom_Overrides(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := ClientConfigFrom(config.NetworkConfig{
		IgnoreTLSErrors:     true,
		DialTimeout:         time.Second,
		TLSHandshakeTimeout: 2 * time.Second,
		IdleConnTimeout:     3 * time.Second,
		MaxIdleConnsPerHost: 4,
	}, logger)

	assert.True(t, cfg.IgnoreTLSErrors)
	assert.Equal(t, time.Second, cfg.DialTimeout)
	assert.Equal(t, 2*time.Second, cfg.TLSHandshakeTimeout)
	assert.Equal(t, 3*time.Second, cfg.IdleConnTimeout)
	assert.Equal(t, 4, cfg.MaxIdleConnsPerHost)
	assert.Same(t, logger, cfg.Logger)
}

func TestConfigureTLS(t *testing.T) {
	tlsConfig := configureTLS(ClientConfigFrom(config.NetworkConfig{}, nil))
	require.NotNil(t, tlsConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
	assert.False(t, tlsConfig.InsecureSkipVerify)
	assert.NotNil(t, tlsConfig.ClientSessionCache, "TLS session cache should be enabled")

	insecure := configureTLS(ClientConfigFrom(config.NetworkConfig{IgnoreTLSErrors: true}, nil))
	assert.True(t, insecure.InsecureSkipVerify)
}

// -- Transport --

func TestNewHTTPTransport_ConfigurationMapping(t *testing.T) {
	cfg := ClientConfigFrom(config.NetworkConfig{MaxIdleConnsPerHost: 7}, zaptest.NewLogger(t))
	rt := NewHTTPTransport(cfg)

	dt, ok := rt.(*decompressingTransport)
	require.True(t, ok, "transport should decode compressed bodies")
	transport, ok := dt.next.(*http.Transport)
	require.True(t, ok)

	assert.Equal(t, 7, transport.MaxIdleConnsPerHost)
	assert.Equal(t, DefaultMaxIdleConns, transport.MaxIdleConns)
	assert.Equal(t, DefaultTLSHandshakeTimeout, transport.TLSHandshakeTimeout)
	assert.True(t, transport.DisableCompression)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.NotNil(t, transport.Proxy)
}

func TestNewHTTPTransport_NilConfig(t *testing.T) {
	assert.NotPanics(t, func() {
		rt := NewHTTPTransport(nil)
		assert.NotNil(t, rt)
	})
}

// -- Client Behavior --

func TestNewClient_RedirectPolicy(t *testing.T) {
	hops := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, fmt.Sprintf("%s/%d", server.URL, hops), http.StatusFound)
	}))
	defer server.Close()

	client := NewClient(ClientConfigFrom(config.NetworkConfig{}, nil))
	resp, err := client.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
	assert.Equal(t, maxRedirects, hops)
}

func TestNewClient_FollowsShortRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("arrived"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(nil)
	resp, err := client.Get(server.URL + "/start")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "arrived", string(body))
}

func TestClient_HTTPS(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secure"))
	}))
	defer server.Close()

	// The self-signed test certificate is rejected unless TLS errors are ignored.
	strict := NewClient(ClientConfigFrom(config.NetworkConfig{}, nil))
	resp, err := strict.Get(server.URL)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)

	lax := NewClient(ClientConfigFrom(config.NetworkConfig{IgnoreTLSErrors: true}, nil))
	resp, err = lax.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "secure", string(body))
}

func TestClient_AdvertisesCompression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Accept-Encoding")))
	}))
	defer server.Close()

	resp, err := NewClient(nil).Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "br, gzip, deflate", string(body))
}
