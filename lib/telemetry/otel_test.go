package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openalgo/gateway/config"
)

func TestOTLPTarget(t *testing.T) {
	host, insecure, err := otlpTarget("https://collector.example.com:4318")
	require.NoError(t, err)
	require.Equal(t, "collector.example.com:4318", host)
	require.False(t, insecure)

	host, insecure, err = otlpTarget("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), config.TelemetryConfig{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRejectsMalformedEndpoint(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "://bad"})
	require.Error(t, err)
}

func TestInitExportsToCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	shutdown, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: srv.URL, ServiceName: "gateway"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
