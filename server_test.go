package comet

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/cometd/engine/internal/log"
)

func TestNewServerAppliesOptionsBeforeStartingRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewServer(DefaultConfig(),
		WithPrometheusRegisterer(reg),
		WithLogger(log.Discard()),
	)
	require.NoError(t, err)
	defer s.Shutdown()

	require.Same(t, s.Metrics, s.Registry.metrics)
	require.Same(t, s.Metrics, s.handler.Metrics)
}

func TestServerServeHTTPDispatchesOnContentType(t *testing.T) {
	s, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	defer s.Shutdown()

	owned := httptest.NewRequest("POST", "/", strings.NewReader(""))
	owned.Header.Set("Content-Type", requestContentType)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, owned)
	require.Equal(t, 400, rr.Code)

	notOwned := httptest.NewRequest("GET", "/", nil)
	rr2 := httptest.NewRecorder()
	s.ServeHTTP(rr2, notOwned)
	require.Equal(t, 404, rr2.Code)
}

func TestServerStatusReflectsLiveChannels(t *testing.T) {
	s, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	defer s.Shutdown()

	_, err = s.Registry.Create(make(chan Event))
	require.NoError(t, err)

	status := s.Status()
	require.Equal(t, "OK", status.Status)
	require.Equal(t, 1, status.LiveChannels)

	encoded, err := json.Marshal(status)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"live_channels":1`)
}

func TestServerWithDisabledAdminSetsOption(t *testing.T) {
	s, err := NewServer(DefaultConfig(), WithDisabledAdmin())
	require.NoError(t, err)
	require.True(t, s.Options.DisableAdminEndpoints)

	// Shutdown stops the registry's owning goroutine without draining
	// in-flight requests (documented on Registry.Shutdown); calling it here
	// only confirms it returns without blocking or panicking.
	s.Shutdown()
}
