// Package transport provides the asynchronous, bounded-queue record
// exporter used by the pipeline driver's optional metrics-export task
// (§5: helper tasks communicate with the hot path via bounded queues;
// a full queue drops the newest record rather than blocking).
package transport

import "github.com/kstaniek/linkemu/internal/metrics"

// RecordSink is anything that can durably accept a metrics record, e.g. a
// UDP metrics-egress socket or a file writer.
type RecordSink interface {
	SendRecord(metrics.Record) error
}
