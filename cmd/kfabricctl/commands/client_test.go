package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]deviceView{{Name: "dev0", ProviderName: "cxi"}})
	}))
	defer srv.Close()

	prevAddr := addr
	addr = srv.Listener.Addr().String()
	defer func() { addr = prevAddr }()

	var views []deviceView
	require.NoError(t, getJSON("/api/v1/devices", &views))
	require.Len(t, views, 1)
	require.Equal(t, "dev0", views[0].Name)
}

func TestGetJSON_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "device not found"})
	}))
	defer srv.Close()

	prevAddr := addr
	addr = srv.Listener.Addr().String()
	defer func() { addr = prevAddr }()

	var views []deviceView
	err := getJSON("/api/v1/devices", &views)
	require.Error(t, err)
	require.Contains(t, err.Error(), "device not found")
}
