package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// WebhookNotifier 通过 HTTP Webhook 把告警推送到值班端（护士站、运维群等）。
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhookNotifier 构造 Webhook 告警器。
func NewWebhookNotifier(url string, timeout time.Duration, logger zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "alert_webhook").Logger(),
	}
}

type webhookPayload struct {
	Text  string `json:"text"`
	Alert Event  `json:"alert"`
}

// Notify 将告警 JSON POST 到配置的地址。
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(webhookPayload{
		Text:  renderMessage(event),
		Alert: event,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook 响应码异常: %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("alert_id", event.ID).
		Str("patient_id", event.PatientID).
		Str("severity", string(event.Severity)).
		Msg("告警已发送 (webhook)")
	return nil
}

func renderMessage(event Event) string {
	builder := strings.Builder{}
	builder.WriteString("[Vital Signs Alert]\n")
	builder.WriteString(fmt.Sprintf("Patient: %s\n", event.PatientID))
	builder.WriteString(fmt.Sprintf("Severity: %s\n", event.Severity))
	builder.WriteString(fmt.Sprintf("Type: %s / %s\n", event.Finding.Type, event.Kind))
	builder.WriteString(fmt.Sprintf("Observed: %.1f\n", event.Finding.Observed))
	builder.WriteString(fmt.Sprintf("At: %s UTC\n", event.Timestamp.UTC().Format(time.RFC3339)))
	if event.Finding.Message != "" {
		builder.WriteString(event.Finding.Message)
	}
	return builder.String()
}

var _ Notifier = (*WebhookNotifier)(nil)
