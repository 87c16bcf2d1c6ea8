package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpc-fabrics/kfabric-verbs/pkg/config"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/device"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/fabric/fabricsim"
	"github.com/hpc-fabrics/kfabric-verbs/pkg/registry"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	sim := fabricsim.New()
	sim.AddInfo(&fabric.Info{ProviderName: "cxi", NodeName: "dev0", DefaultVNI: 7, HasDefaultVNI: true})
	devices, err := device.Discover(context.Background(), sim, device.DiscoverConfig{ProviderName: "cxi"})
	require.NoError(t, err)

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterAll(devices))

	cfg := config.Default()
	return New(reg, cfg)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleListDevices(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got []deviceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	require.Equal(t, "cxi", got[0].ProviderName)
}

func TestHandleListQPs_UnknownDevice(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/nope/qps", nil)
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMRCache(t *testing.T) {
	s := testServer(t)
	names := s.reg.DeviceNames()
	require.Len(t, names, 1)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/"+names[0]+"/mrcache", nil)
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got mrCacheView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 0, got.CachedRegions)
}

func TestHandleProgress(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil)
	rec := httptest.NewRecorder()
	s.newRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got progressView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.NotEmpty(t, got.PollInterval)
}
