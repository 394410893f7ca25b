package uplink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/alerting"
	"vital-signs-monitor/internal/vitals"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestClientRequiresBaseURL(t *testing.T) {
	c := NewClient(Options{}, noopLogger())

	if err := c.Probe(context.Background()); err == nil {
		t.Fatal("缺少 base url 时应返回错误")
	}
	if err := c.PublishMeasurement(context.Background(), vitals.Measurement{}); err == nil {
		t.Fatal("缺少 base url 时应返回错误")
	}
}

func TestClientProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("探测路径应为 /health, 实际 %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("健康探测不应报错: %v", err)
	}
}

func TestClientProbeBackendDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if err := c.Probe(context.Background()); err == nil {
		t.Fatal("HTTP 503 应返回错误")
	}
}

func TestClientPublishMeasurement(t *testing.T) {
	var received vitals.Measurement
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/measurements" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	m := vitals.Measurement{
		ID:            "m-1",
		PatientID:     "p-1",
		Type:          vitals.HeartRate,
		Value:         82,
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SignalQuality: 0.9,
	}

	if err := c.PublishMeasurement(context.Background(), m); err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if received.ID != "m-1" || received.PatientID != "p-1" {
		t.Fatalf("后端收到的测量不正确: %+v", received)
	}
}

func TestClientPublishAlertError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts" {
			t.Fatalf("路径不正确: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad payload"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if err := c.PublishAlert(context.Background(), alerting.Event{ID: "a-1"}); err == nil {
		t.Fatal("HTTP 400 应返回错误")
	}
}
