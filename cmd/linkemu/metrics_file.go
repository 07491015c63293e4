package main

import (
	"os"

	"github.com/kstaniek/linkemu/internal/metrics"
)

// writeMetricsFile dumps the driver's rolling-window CSV to path on shutdown.
func writeMetricsFile(rec *metrics.Recorder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return rec.WriteCSV(f)
}
