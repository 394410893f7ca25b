package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/storage"
	"vital-signs-monitor/internal/vitals"
)

type fakeProcessor struct {
	result    pipeline.Result
	flush     pipeline.FlushResult
	stats     pipeline.Stats
	online    bool
	setCalls  []bool
	ingested  []vitals.Measurement
	flushHits int
}

func (f *fakeProcessor) IngestMeasurement(_ context.Context, m vitals.Measurement) pipeline.Result {
	f.ingested = append(f.ingested, m)
	return f.result
}

func (f *fakeProcessor) FlushCachedData() pipeline.FlushResult {
	f.flushHits++
	return f.flush
}

func (f *fakeProcessor) SetOnline(online bool) {
	f.online = online
	f.setCalls = append(f.setCalls, online)
}

func (f *fakeProcessor) Online() bool { return f.online }

func (f *fakeProcessor) Stats() pipeline.Stats { return f.stats }

func newTestServer(t *testing.T, proc Processor, store *storage.MemoryStore, hub *Hub) *Server {
	t.Helper()

	var measurements storage.MeasurementHistory
	var alerts storage.AlertHistory
	if store != nil {
		measurements = store
		alerts = store
	}
	return New(Options{Listen: "127.0.0.1:0"}, proc, measurements, alerts, hub, zerolog.Nop())
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestHandleIngestOK(t *testing.T) {
	m := vitals.Measurement{
		ID:            "m-1",
		PatientID:     "patient-1",
		Type:          vitals.HeartRate,
		Value:         72,
		Timestamp:     time.Now().UTC(),
		SignalQuality: 0.95,
	}
	proc := &fakeProcessor{result: pipeline.Result{Status: pipeline.StatusOK, Measurement: &m}}
	s := newTestServer(t, proc, nil, nil)

	rec := postJSON(t, s.routes(), "/api/measurements", m)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(proc.ingested) != 1 {
		t.Fatalf("expected 1 ingested measurement, got %d", len(proc.ingested))
	}
	if proc.ingested[0].ID != "m-1" {
		t.Fatalf("unexpected measurement id %q", proc.ingested[0].ID)
	}

	var res pipeline.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Status != pipeline.StatusOK {
		t.Fatalf("expected status %q, got %q", pipeline.StatusOK, res.Status)
	}
}

func TestHandleIngestDiscarded(t *testing.T) {
	proc := &fakeProcessor{result: pipeline.Result{Status: pipeline.StatusDiscarded, Reason: "low signal quality"}}
	s := newTestServer(t, proc, nil, nil)

	rec := postJSON(t, s.routes(), "/api/measurements", vitals.Measurement{
		ID:        "m-2",
		PatientID: "patient-1",
		Type:      vitals.HeartRate,
		Value:     70,
		Timestamp: time.Now().UTC(),
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for discarded measurement, got %d", rec.Code)
	}
	var res pipeline.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Reason != "low signal quality" {
		t.Fatalf("expected discard reason in body, got %q", res.Reason)
	}
}

func TestHandleIngestRejectsMalformedJSON(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/measurements", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed payload, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	proc := &fakeProcessor{stats: pipeline.Stats{Online: true, Processed: 7, Alerts: 2, Streams: 3}}
	s := newTestServer(t, proc, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode status body: %v", err)
	}
	if body["online"] != true {
		t.Fatalf("expected online true, got %v", body["online"])
	}
	if body["processed"] != float64(7) {
		t.Fatalf("expected processed 7, got %v", body["processed"])
	}
	if _, ok := body["wsClients"]; ok {
		t.Fatalf("wsClients should be absent without a hub")
	}
}

func TestHandleConnectivity(t *testing.T) {
	proc := &fakeProcessor{online: true}
	s := newTestServer(t, proc, nil, nil)

	rec := postJSON(t, s.routes(), "/api/connectivity", map[string]bool{"online": false})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(proc.setCalls) != 1 || proc.setCalls[0] != false {
		t.Fatalf("expected SetOnline(false), got %v", proc.setCalls)
	}
}

func TestHandleConnectivityRequiresFlag(t *testing.T) {
	proc := &fakeProcessor{}
	s := newTestServer(t, proc, nil, nil)

	rec := postJSON(t, s.routes(), "/api/connectivity", map[string]string{"state": "down"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without online flag, got %d", rec.Code)
	}
	if len(proc.setCalls) != 0 {
		t.Fatalf("SetOnline should not be called, got %v", proc.setCalls)
	}
}

func TestHandleFlush(t *testing.T) {
	proc := &fakeProcessor{flush: pipeline.FlushResult{
		Status:       pipeline.FlushFlushed,
		Measurements: []vitals.Measurement{{ID: "m-1"}},
		Alerts:       []alerting.Event{},
	}}
	s := newTestServer(t, proc, nil, nil)

	rec := postJSON(t, s.routes(), "/api/flush", map[string]any{})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if proc.flushHits != 1 {
		t.Fatalf("expected 1 flush call, got %d", proc.flushHits)
	}
	var res pipeline.FlushResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode flush body: %v", err)
	}
	if res.Status != pipeline.FlushFlushed {
		t.Fatalf("expected status %q, got %q", pipeline.FlushFlushed, res.Status)
	}
	if len(res.Measurements) != 1 {
		t.Fatalf("expected 1 flushed measurement, got %d", len(res.Measurements))
	}
}

func TestHandlePatientMeasurements(t *testing.T) {
	store := storage.NewMemoryStore(100)
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := storage.NewMeasurementRecord(vitals.Measurement{
			ID:            fmt.Sprintf("m-%d", i),
			PatientID:     "patient-9",
			Type:          vitals.HeartRate,
			Value:         70 + float64(i),
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
			SignalQuality: 1,
		})
		if err := store.InsertMeasurement(context.Background(), rec); err != nil {
			t.Fatalf("seed measurement: %v", err)
		}
	}

	s := newTestServer(t, &fakeProcessor{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/patients/patient-9/measurements?type=heart_rate&limit=2", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		PatientID    string                      `json:"patientId"`
		Type         string                      `json:"type"`
		Measurements []storage.MeasurementRecord `json:"measurements"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.PatientID != "patient-9" || body.Type != "HEART_RATE" {
		t.Fatalf("unexpected echo fields: %+v", body)
	}
	if len(body.Measurements) != 2 {
		t.Fatalf("expected limit to cap results at 2, got %d", len(body.Measurements))
	}
}

func TestHandlePatientMeasurementsRequiresType(t *testing.T) {
	s := newTestServer(t, &fakeProcessor{}, storage.NewMemoryStore(10), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/patients/patient-9/measurements", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without type, got %d", rec.Code)
	}
}

func TestHandleAlerts(t *testing.T) {
	store := storage.NewMemoryStore(100)
	for i := 0; i < 2; i++ {
		rec, err := storage.NewAlertRecord(alerting.Event{
			ID:        fmt.Sprintf("a-%d", i),
			PatientID: "patient-9",
			Severity:  alerting.SeverityHigh,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("build alert record: %v", err)
		}
		if err := store.InsertAlert(context.Background(), rec); err != nil {
			t.Fatalf("seed alert: %v", err)
		}
	}

	s := newTestServer(t, &fakeProcessor{}, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/alerts?patientId=patient-9", nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Alerts []storage.AlertRecord `json:"alerts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(body.Alerts))
	}
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zerolog.Nop())
	go hub.Run(ctx)

	s := newTestServer(t, &fakeProcessor{}, nil, hub)
	srv := httptest.NewServer(s.routes())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.BroadcastAlert(alerting.Event{
		ID:        "a-1",
		PatientID: "patient-1",
		Severity:  alerting.SeverityHigh,
		Timestamp: time.Now().UTC(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Type != "alert" {
		t.Fatalf("expected alert envelope, got %q", env.Type)
	}
	var event alerting.Event
	if err := json.Unmarshal(env.Payload, &event); err != nil {
		t.Fatalf("decode alert payload: %v", err)
	}
	if event.ID != "a-1" {
		t.Fatalf("unexpected alert id %q", event.ID)
	}
}
