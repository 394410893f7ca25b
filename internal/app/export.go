package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vital-signs-monitor/internal/storage"
	"vital-signs-monitor/internal/vitals"
)

const defaultExportWindow = 24 * time.Hour

// Export renders one patient's measurement history as CSV and/or PNG. The PNG
// overlays a moving average sized to the smoothing window, so the chart shows
// the same view the anomaly detector works on.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.PatientID == "" {
		return errors.New("--patient must be provided")
	}

	kind := vitals.MeasurementType(strings.ToUpper(opts.Type))
	if kind == "" {
		return errors.New("--type must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListPatientMeasurementsBetween(ctx, opts.PatientID, kind, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no measurements found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting measurements")

	if opts.CSVPath != "" {
		if err := writeMeasurementsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeMeasurementsPNG(opts.PNGPath, kind, downsampled, a.Config.Pipeline.WindowSize); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRecords(records []storage.MeasurementRecord, max int) []storage.MeasurementRecord {
	if max <= 0 || len(records) <= max {
		return records
	}

	result := make([]storage.MeasurementRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeMeasurementsCSV(path string, records []storage.MeasurementRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"measurement_id", "patient_id", "measurement_type", "value", "recorded_at", "signal_quality"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.MeasurementID,
			rec.PatientID,
			string(rec.Type),
			strconv.FormatFloat(rec.Value, 'f', -1, 64),
			rec.RecordedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(rec.SignalQuality, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeMeasurementsPNG(path string, kind vitals.MeasurementType, records []storage.MeasurementRecord, smoothing int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	values := make([]float64, len(records))
	for i, rec := range records {
		x[i] = rec.RecordedAt
		values[i] = rec.Value
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}

	raw := chart.TimeSeries{
		Name:    string(kind),
		XValues: x,
		YValues: values,
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           axisLabel(kind),
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			raw,
			&chart.SMASeries{
				Name:        fmt.Sprintf("Smoothed (window %d)", smoothing),
				Period:      smoothing,
				InnerSeries: raw,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func axisLabel(kind vitals.MeasurementType) string {
	switch kind {
	case vitals.HeartRate:
		return "Heart rate (bpm)"
	case vitals.SpO2:
		return "SpO2 (%)"
	case vitals.Temperature:
		return "Temperature (°C)"
	default:
		return string(kind)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
