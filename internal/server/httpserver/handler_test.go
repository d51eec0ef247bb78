package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubSource struct {
	accepting bool
}

func (s stubSource) Accepting() bool              { return s.accepting }
func (stubSource) UptimeSeconds() float64         { return 42.9 }
func (stubSource) ActiveConnections() int64       { return 2 }
func (stubSource) TotalConnections() uint64       { return 11 }
func (stubSource) RejectedConnections() uint64    { return 1 }
func (stubSource) UsedMemory() int64              { return 2048 }
func (stubSource) MaxMemory() int64               { return 1 << 20 }
func (stubSource) EvictedKeys() uint64            { return 3 }
func (stubSource) TotalCommands() uint64          { return 77 }

func TestHealth_OK(t *testing.T) {
	h := NewHandler(stubSource{accepting: true}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var reply map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &reply); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	want := map[string]float64{
		"uptime_seconds":       42,
		"active_connections":   2,
		"total_connections":    11,
		"rejected_connections": 1,
		"memory_used":          2048,
		"max_memory":           1 << 20,
		"evicted_keys":         3,
		"total_commands":       77,
	}
	if reply["status"] != "ok" {
		t.Errorf("status field = %v, want ok", reply["status"])
	}
	for field, v := range want {
		if reply[field] != v {
			t.Errorf("%s = %v, want %v", field, reply[field], v)
		}
	}
}

func TestHealth_ShuttingDown(t *testing.T) {
	h := NewHandler(stubSource{accepting: false}, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
	var reply map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &reply)
	if reply["status"] != "shutting_down" {
		t.Errorf("status field = %v, want shutting_down", reply["status"])
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})

	h := NewHandler(stubSource{accepting: true}, metrics)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Errorf("metrics route = %d %q", rr.Code, rr.Body.String())
	}

	// Without a metrics handler the route does not exist.
	h = NewHandler(stubSource{accepting: true}, nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("metrics without handler = %d, want 404", rr.Code)
	}
}

func TestHealth_MethodNotAllowed(t *testing.T) {
	h := NewHandler(stubSource{accepting: true}, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/health", nil))
	if rr.Code == http.StatusOK {
		t.Errorf("POST /health = %d, want non-200", rr.Code)
	}
}
