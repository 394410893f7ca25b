package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vital-signs-monitor/internal/anomaly"
	"vital-signs-monitor/internal/vitals"
)

func webhookEvent() Event {
	return Event{
		ID:        "alert-1",
		PatientID: "patient-42",
		Kind:      anomaly.ThresholdHigh,
		Severity:  SeverityHigh,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Finding: anomaly.Finding{
			Kind:       anomaly.ThresholdHigh,
			Type:       vitals.HeartRate,
			Observed:   142,
			DetectedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Message:    "heart rate above configured maximum",
		},
	}
}

func TestWebhookNotifierSuccess(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("应为 POST, 实际 %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type 不正确: %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), webhookEvent()); err != nil {
		t.Fatalf("Webhook Notify 应成功: %v", err)
	}

	if received.Alert.ID != "alert-1" {
		t.Fatalf("alert id 不正确: %#v", received.Alert)
	}
	if received.Alert.PatientID != "patient-42" {
		t.Fatalf("patient id 不正确: %#v", received.Alert)
	}
	if received.Text == "" {
		t.Fatalf("text 应非空")
	}
	if !strings.Contains(received.Text, "patient-42") {
		t.Fatalf("text 应包含患者标识: %s", received.Text)
	}
	if !strings.Contains(received.Text, string(SeverityHigh)) {
		t.Fatalf("text 应包含严重级别: %s", received.Text)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), webhookEvent()); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestWebhookNotifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	notifier := NewWebhookNotifier(srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), webhookEvent()); err == nil {
		t.Fatal("服务不可达应报错")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
