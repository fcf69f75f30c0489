package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(body)
}

// TestServer tests serving metrics and status.
func TestServer(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	promauto.With(reg).NewCounter(prometheus.CounterOpts{
		Namespace: "magicns",
		Name:      "test_total",
		Help:      "Test counter.",
	}).Add(3)

	cfg := DefaultConfig(reg)
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.Status = func() interface{} {
		return map[string]string{"account": "0x1234...abcd"}
	}

	s, err := New(cfg)
	require.NoError(t, err)
	require.Nil(t, s.Addr())

	require.NoError(t, s.Start())
	defer func() {
		require.NoError(t, s.Stop())
	}()

	// Starting twice is a no-op.
	require.NoError(t, s.Start())

	base := fmt.Sprintf("http://%s", s.Addr())

	code, body := get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.True(t, strings.Contains(body, "magicns_test_total 3"))

	code, body = get(t, base+"/status")
	require.Equal(t, http.StatusOK, code)

	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	require.Equal(t, "0x1234...abcd", status["account"])
}

// TestServer_NoStatus tests the status endpoint without a source.
func TestServer_NoStatus(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig(prometheus.NewRegistry())
	cfg.ListenAddr = "127.0.0.1:0"

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Stop()

	code, _ := get(t, fmt.Sprintf("http://%s/status", s.Addr()))
	require.Equal(t, http.StatusNotFound, code)
}

// TestServer_InvalidConfig tests config validation.
func TestServer_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.Error(t, err)

	_, err = New(&Config{ListenAddr: "127.0.0.1:0"})
	require.Error(t, err)

	// Stopping a server that never started is a no-op.
	s, err := New(DefaultConfig(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, s.Stop())
}
