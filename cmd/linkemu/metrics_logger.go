package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/linkemu/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"processed", snap.Processed,
					"emitted", snap.Emitted,
					"crc_errors", snap.CrcErrors,
					"decode_errors", snap.DecodeErrors,
					"fec_bad_length", snap.FecBadLength,
					"sync_lost", snap.SyncLost,
					"stop_mismatch", snap.StopMismatch,
					"fec_corrections", snap.Corrections,
					"export_drops", snap.ExportDrops,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
