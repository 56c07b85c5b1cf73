package telemetry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aussiebroadwan/brewhouse/internal/telemetry"
	"github.com/aussiebroadwan/brewhouse/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := telemetry.Setup(context.Background(), telemetry.Config{ServiceName: "test"}, slogx.Discard())
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestTransportAndHandlerPassThrough(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(telemetry.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	}), "test"))
	t.Cleanup(srv.Close)

	hc := &http.Client{Transport: telemetry.Transport(nil)}
	resp, err := hc.Get(srv.URL + "/api/orders")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "/api/orders", gotPath)
}
