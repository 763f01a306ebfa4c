package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scalebridge/internal/models"
	"scalebridge/internal/service"
)

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/command", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCommand_ReturnsResultAndRelaysInBackground(t *testing.T) {
	url := "/photos/a.jpg"
	capt := &mockCapture{result: models.CaptureResult{
		ID: "c1", Success: true, Weight: 32000, Unit: "kg", Action: models.ActionBrutto,
		PhotoURL: &url, Photos: []string{url}, Timestamp: time.Now().UTC(),
	}}
	r := newTestRouter(&service.Service{Capture: capt})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(`{"action":"brutto","orderId":17}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got models.CaptureResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "c1" || got.PhotoURL == nil || *got.PhotoURL != url {
		t.Fatalf("unexpected body: %+v", got)
	}
	if capt.lastParams.Action != "brutto" || capt.lastParams.OrderID == nil || *capt.lastParams.OrderID != 17 {
		t.Fatalf("params not passed: %+v", capt.lastParams)
	}
	if len(capt.relayed) != 1 || capt.relayed[0].ID != "c1" {
		t.Fatalf("relay not scheduled: %+v", capt.relayed)
	}
}

func TestCommand_NoCameraReportsNullPhoto(t *testing.T) {
	capt := &mockCapture{result: models.CaptureResult{
		ID: "c2", Success: true, Weight: 8500, Unit: "kg", Action: models.ActionTara,
		Photos: []string{}, NoCamera: true,
	}}
	r := newTestRouter(&service.Service{Capture: capt})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(`{"action":"TARA"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var raw map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &raw)
	if v, ok := raw["photoUrl"]; !ok || v != nil {
		t.Fatalf("photoUrl must be present and null: %v", raw)
	}
	if raw["success"] != true || raw["noCamera"] != true {
		t.Fatalf("unexpected body: %v", raw)
	}
}

func TestCommand_BadInput(t *testing.T) {
	capt := &mockCapture{}
	r := newTestRouter(&service.Service{Capture: capt})

	for _, body := range []string{``, `{bad json`, `{"action":"GROSS"}`, `{"action":"TARA","orderId":"x"}`} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, postJSON(body))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d", body, w.Code)
		}
		var env map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil || env["error"] == "" {
			t.Fatalf("body %q: missing error envelope: %s", body, w.Body.String())
		}
	}
	if len(capt.relayed) != 0 {
		t.Fatalf("nothing should be relayed")
	}
}

func TestCommand_InternalFailure(t *testing.T) {
	r := newTestRouter(&service.Service{Capture: &mockCapture{err: errBoom}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(`{"action":"NETTO"}`))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var env map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["error"] != errCapture {
		t.Fatalf("unexpected envelope: %v", env)
	}
}

func TestCapturePhoto_OptionalBody(t *testing.T) {
	url := "/photos/gate.jpg"
	capt := &mockCapture{photo: service.PhotoResult{Success: true, Photos: []string{url}, PhotoURL: &url}}
	r := newTestRouter(&service.Service{Capture: capt})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/capture", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("empty body: status=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/capture", bytes.NewBufferString(`{"filename":"gate"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || capt.lastFilename != "gate" {
		t.Fatalf("status=%d filename=%q", w.Code, capt.lastFilename)
	}
	var got service.PhotoResult
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if !got.Success || got.PhotoURL == nil || *got.PhotoURL != url {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestListCaptures_FiltersAndValidation(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	hist := &mockHistory{resp: []models.CaptureResult{
		{ID: "a", Action: models.ActionTara, Timestamp: now},
		{ID: "b", Action: models.ActionBrutto, Timestamp: now.Add(time.Minute)},
	}}
	r := newTestRouter(&service.Service{History: hist})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/captures?from=notatime", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad from, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/captures?from=2025-08-02&to=2025-08-01", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for reversed range, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/captures?from=2025-08-01&to=2025-08-01&action=tara", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var body struct {
		Count    int                    `json:"count"`
		Captures []models.CaptureResult `json:"captures"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 2 || len(body.Captures) != 2 {
		t.Fatalf("unexpected body: %+v", body)
	}
	if hist.last.Action != "TARA" {
		t.Fatalf("action=%q", hist.last.Action)
	}
	wantTo := time.Date(2025, 8, 1, 23, 59, 59, 999999999, time.UTC)
	if !hist.last.From.Equal(time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)) || !hist.last.To.Equal(wantTo) {
		t.Fatalf("range=(%v,%v)", hist.last.From, hist.last.To)
	}

	hist.err = errBoom
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/captures", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

type fixedWeight models.Reading

func (w fixedWeight) CurrentWeight() models.Reading { return models.Reading(w) }

// failingPusher rejects every push, like an unreachable collector.
type failingPusher struct {
	calls chan models.CaptureResult
}

func (p *failingPusher) Push(ctx context.Context, res models.CaptureResult) error {
	p.calls <- res
	return errBoom
}

func TestCommand_RelayFailureDoesNotChangeResponse(t *testing.T) {
	pusher := &failingPusher{calls: make(chan models.CaptureResult, 1)}
	capt := service.NewCaptureService(
		fixedWeight{Weight: 32000, Unit: "kg", Connected: true},
		nil, nil, nil, pusher, nil,
	)
	r := newTestRouter(&service.Service{Capture: capt})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, postJSON(`{"action":"BRUTTO","orderId":17}`))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got models.CaptureResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !got.Success || got.Weight != 32000 || got.Action != models.ActionBrutto || got.OrderID == nil || *got.OrderID != 17 {
		t.Fatalf("unexpected body: %+v", got)
	}
	if !got.NoCamera || got.PhotoURL != nil {
		t.Fatalf("capture without camera should report noCamera: %+v", got)
	}

	select {
	case pushed := <-pusher.calls:
		if pushed.ID != got.ID {
			t.Fatalf("relayed %q, responded %q", pushed.ID, got.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay was not attempted")
	}
	capt.Wait()
}
