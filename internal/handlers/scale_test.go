package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"scalebridge/internal/device"
	"scalebridge/internal/models"
	"scalebridge/internal/service"

	"github.com/gin-gonic/gin"
)

func TestScaleHandlers_WeightHealthPortsReconnect(t *testing.T) {
	reading := models.Reading{Weight: 32000.5, Unit: "kg", Connected: true}
	mon := &mockMonitoring{
		reading: reading,
		health: service.Health{
			Status: "ok", Connected: true, State: device.StateConnected, Reading: reading,
		},
	}
	dev := &mockDevice{ports: service.PortList{Ports: []string{"/dev/ttyUSB0"}}}
	r := newTestRouter(&service.Service{Monitoring: mon, Device: dev})

	// GET /weight
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weight", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("weight status=%d body=%s", w.Code, w.Body.String())
	}
	var got models.Reading
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Weight != 32000.5 || got.Unit != "kg" || !got.Connected {
		t.Fatalf("unexpected reading: %+v", got)
	}

	// GET /health
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	var h map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &h)
	if w.Code != http.StatusOK || h["status"] != "ok" || h["state"] != "CONNECTED" || h["connected"] != true {
		t.Fatalf("unexpected health: %d %v", w.Code, h)
	}
	if _, ok := h["simulated"]; !ok {
		t.Fatalf("health must report simulated flag: %v", h)
	}

	// GET /ports
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ports", nil))
	var ports service.PortList
	_ = json.Unmarshal(w.Body.Bytes(), &ports)
	if w.Code != http.StatusOK || len(ports.Ports) != 1 || ports.Simulated {
		t.Fatalf("unexpected ports: %d %+v", w.Code, ports)
	}

	// POST /reconnect
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/reconnect", nil))
	var rc map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &rc)
	if w.Code != http.StatusOK || rc["status"] != statusReconnecting || dev.reconnects != 1 {
		t.Fatalf("unexpected reconnect: %d %v calls=%d", w.Code, rc, dev.reconnects)
	}
}

func TestPorts_ErrorEnvelope(t *testing.T) {
	r := newTestRouter(&service.Service{Device: &mockDevice{err: errBoom}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ports", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != errListPorts {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestCORS_Preflight(t *testing.T) {
	r := newTestRouter(&service.Service{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/command", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestServePhotos(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	gin.SetMode(gin.TestMode)
	r := NewHandler(&service.Service{}, nil).ServePhotos("/photos", dir).InitRoutes()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/photos/a.jpg", nil))
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestPanicReturnsErrorEnvelope(t *testing.T) {
	r := newTestRouter(&service.Service{Monitoring: panickingMonitoring{}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/weight", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d, want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %q", w.Body.String())
	}
	if body["error"] != errInternal {
		t.Fatalf("error=%q, want %q", body["error"], errInternal)
	}

	// the router keeps serving after a panic
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/weight", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status after panic=%d", w.Code)
	}
}
