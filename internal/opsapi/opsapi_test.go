package opsapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vscp/internal/bureau"
	"vscp/internal/manager"
	"vscp/internal/wrlstore"
)

func newTestStore(t *testing.T) *wrlstore.Store {
	t.Helper()
	s, err := wrlstore.New(":memory:")
	if err != nil {
		t.Fatalf("wrlstore.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHealthz(t *testing.T) {
	store := newTestStore(t)
	api := New(store, func() map[string]*manager.Manager { return nil })
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("got status %q", body.Status)
	}
}

func TestWRLsListsRegistry(t *testing.T) {
	store := newTestStore(t)
	if err := store.Seed([]string{"SAPARi SPA"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := store.SetOverrides("SAPARi SPA", 3, 16); err != nil {
		t.Fatalf("SetOverrides: %v", err)
	}

	api := New(store, func() map[string]*manager.Manager { return nil })
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/wrls")
	if err != nil {
		t.Fatalf("GET /api/wrls: %v", err)
	}
	defer resp.Body.Close()

	var wrls []wrlResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrls); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(wrls) != 1 || wrls[0].Name != "SAPARi SPA" || wrls[0].MaxBureaus != 3 || wrls[0].MaxUsers != 16 {
		t.Fatalf("got %+v", wrls)
	}
}

func TestBureausListsLiveBureaus(t *testing.T) {
	store := newTestStore(t)

	m := manager.New("SAPARi SPA", 2, bureau.Options{MaxUsers: 4, ConnectTimeout: time.Second}, nil)
	t.Cleanup(m.Close)
	port, ok := m.Available()
	if !ok {
		t.Fatal("Available: expected a bureau to spawn")
	}

	mgrs := map[string]*manager.Manager{"SAPARi SPA": m}
	api := New(store, func() map[string]*manager.Manager { return mgrs })
	ts := httptest.NewServer(api.Echo())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/api/bureaus")
	if err != nil {
		t.Fatalf("GET /api/bureaus: %v", err)
	}
	defer resp.Body.Close()

	var bureaus []bureauResponse
	if err := json.NewDecoder(resp.Body).Decode(&bureaus); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bureaus) != 1 || bureaus[0].WRL != "SAPARi SPA" || bureaus[0].Port != port {
		t.Fatalf("got %+v", bureaus)
	}
	if bureaus[0].InstanceID == "" || bureaus[0].Uptime == "" || bureaus[0].StartTime == "" {
		t.Fatalf("expected instance id/uptime/start_time populated, got %+v", bureaus[0])
	}
}
