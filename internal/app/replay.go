package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/google/uuid"

	"vital-signs-monitor/internal/pipeline"
	"vital-signs-monitor/internal/storage"
	"vital-signs-monitor/internal/vitals"
)

// replayScanBuffer bounds one NDJSON line.
const replayScanBuffer = 1 << 20

// Replay feeds measurements from an NDJSON file through the pipeline。
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if opts.Path == "" {
		return errors.New("--file 必须提供")
	}

	var history pipeline.History
	if opts.DryRun {
		a.Logger.Warn().Msg("回放 dry-run：不会写入数据库")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn 未配置，无法回放")
		}
		if closeStore != nil {
			defer closeStore()
		}
		history = storage.History{Measurements: store, Alerts: store}
	}

	file, err := os.Open(opts.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	processor := a.newProcessor(history, nil)
	if opts.Offline {
		a.Logger.Info().Msg("回放期间模拟离线，结束后统一冲刷")
		processor.SetOnline(false)
	}

	var accepted, discarded, alerts, failed int

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), replayScanBuffer)
	line := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var m vitals.Measurement
		if err := json.Unmarshal(raw, &m); err != nil {
			failed++
			a.Logger.Error().Err(err).Int("line", line).Msg("回放记录解析失败")
			continue
		}
		// Captured dumps often lack gateway IDs; the insert dedupes on them.
		if m.ID == "" {
			m.ID = uuid.NewString()
		}

		res := processor.IngestMeasurement(ctx, m)
		switch res.Status {
		case pipeline.StatusDiscarded:
			discarded++
		case pipeline.StatusAlert:
			alerts++
			accepted++
		default:
			accepted++
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if opts.Offline {
		processor.SetOnline(true)
		flushed := processor.FlushCachedData()
		a.Logger.Info().
			Int("measurements", len(flushed.Measurements)).
			Int("alerts", len(flushed.Alerts)).
			Msg("离线缓存已冲刷")
	}

	a.Logger.Info().
		Int("accepted", accepted).
		Int("discarded", discarded).
		Int("alerts", alerts).
		Int("failed", failed).
		Msg("回放完成")

	if failed > 0 {
		return errors.New("部分记录回放失败，请检查日志")
	}
	return nil
}
