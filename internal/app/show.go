package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent measurements and alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	measurements, err := store.ListRecentMeasurements(ctx, opts.Limit)
	if err != nil {
		return err
	}
	alerts, err := store.ListRecentAlerts(ctx, opts.Limit)
	if err != nil {
		return err
	}

	if len(measurements) == 0 && len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no history found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	if len(measurements) > 0 {
		fmt.Fprintln(writer, "Recorded (UTC)\tPatient\tType\tValue\tQuality\tID")
		for _, m := range measurements {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%.2f\t%.2f\t%s\n",
				m.RecordedAt.UTC().Format(time.RFC3339),
				m.PatientID,
				m.Type,
				m.Value,
				m.SignalQuality,
				m.MeasurementID,
			)
		}
	}

	if len(alerts) > 0 {
		if len(measurements) > 0 {
			fmt.Fprintln(writer, "\t\t\t\t\t")
		}
		fmt.Fprintln(writer, "Raised (UTC)\tPatient\tType\tSeverity\tID\t")
		for _, alert := range alerts {
			fmt.Fprintf(
				writer,
				"%s\t%s\t%s\t%s\t%s\t\n",
				alert.RaisedAt.UTC().Format(time.RFC3339),
				alert.PatientID,
				alert.Kind,
				alert.Severity,
				alert.AlertID,
			)
		}
	}

	writer.Flush()
	return nil
}
