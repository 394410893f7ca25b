package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/vitals"
)

// SimulateAlert 将一条合成测量送入流水线以验证告警链路。
func (a *App) SimulateAlert(ctx context.Context, patientID, kind string, value float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}
	if a.newNotifier() == nil {
		return errors.New("未配置任何告警通道")
	}

	processor := a.newProcessor(nil, nil)

	m := vitals.Measurement{
		ID:            uuid.NewString(),
		PatientID:     patientID,
		Type:          vitals.MeasurementType(strings.ToUpper(kind)),
		Value:         value,
		Timestamp:     time.Now().UTC(),
		SignalQuality: 1,
	}

	res := processor.IngestMeasurement(ctx, m)
	switch res.Status {
	case pipeline.StatusAlert:
		a.Logger.Info().
			Str("alert_id", res.Alert.ID).
			Str("severity", string(res.Alert.Severity)).
			Str("alert_type", string(res.Alert.Kind)).
			Msg("模拟告警已触发")
		return nil
	case pipeline.StatusDiscarded:
		return fmt.Errorf("测量值未通过校验: %s", res.Reason)
	default:
		a.Logger.Warn().Float64("value", value).Msg("测量值未触发告警，请检查阈值配置")
		return nil
	}
}
