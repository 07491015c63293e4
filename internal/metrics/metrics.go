// Package metrics exposes the emulator's Prometheus counters and the
// per-packet rolling-window recorder described in spec.md §4.9.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/linkemu/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters/gauges for the pipeline driver's hot path.
var (
	PacketsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packets_processed_total",
		Help: "Total packets received on the ingress socket.",
	})
	PacketsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "packets_emitted_total",
		Help: "Total packets successfully re-encoded and sent to egress.",
	})
	CrcErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crc_errors_total",
		Help: "Packets dropped due to CRC mismatch or malformed header.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_errors_total",
		Help: "Packets dropped due to decipher failure.",
	})
	FecBadLength = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fec_bad_length_total",
		Help: "Packets dropped because FEC-coded length was not a multiple of r.",
	})
	SyncLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_lost_total",
		Help: "Sample-mode packets dropped for failing the frame-sync correlator.",
	})
	StopMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stop_mismatch_total",
		Help: "Sample-mode packets dropped for failing the stop-pattern check.",
	})
	FecCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fec_corrections_total",
		Help: "Cumulative bytes outvoted (corrected) by FEC majority vote.",
	})
	MetricsExportDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "metrics_export_dropped_total",
		Help: "Metrics records dropped because the exporter queue was full.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrTooShort      = "too_short"
	ErrBadLength     = "bad_length"
	ErrCrcMismatch   = "crc_mismatch"
	ErrDecipher      = "decipher_too_short"
	ErrFecBadLength  = "fec_bad_length"
	ErrSyncLost      = "sync_lost"
	ErrStopMismatch  = "stop_mismatch"
	ErrIO            = "io"
	ErrConfigInvalid = "config_invalid"
	ErrBind          = "bind"
)

// Local mirrored counters, cheap to read for periodic log lines without
// touching the Prometheus registry.
var (
	localProcessed    uint64
	localEmitted      uint64
	localCrcErrors    uint64
	localDecodeErrors uint64
	localFecBadLength uint64
	localSyncLost     uint64
	localStopMismatch uint64
	localCorrections  uint64
	localExportDrop   uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of the local counters.
type Snapshot struct {
	Processed    uint64
	Emitted      uint64
	CrcErrors    uint64
	DecodeErrors uint64
	FecBadLength uint64
	SyncLost     uint64
	StopMismatch uint64
	Corrections  uint64
	ExportDrops  uint64
	Errors       uint64
}

// Snap reads all local counters atomically (one at a time; the snapshot is
// not transactionally consistent across fields, which is acceptable for a
// periodic log line).
func Snap() Snapshot {
	return Snapshot{
		Processed:    atomic.LoadUint64(&localProcessed),
		Emitted:      atomic.LoadUint64(&localEmitted),
		CrcErrors:    atomic.LoadUint64(&localCrcErrors),
		DecodeErrors: atomic.LoadUint64(&localDecodeErrors),
		FecBadLength: atomic.LoadUint64(&localFecBadLength),
		SyncLost:     atomic.LoadUint64(&localSyncLost),
		StopMismatch: atomic.LoadUint64(&localStopMismatch),
		Corrections:  atomic.LoadUint64(&localCorrections),
		ExportDrops:  atomic.LoadUint64(&localExportDrop),
		Errors:       atomic.LoadUint64(&localErrors),
	}
}

func IncProcessed() {
	PacketsProcessed.Inc()
	atomic.AddUint64(&localProcessed, 1)
}

func IncEmitted() {
	PacketsEmitted.Inc()
	atomic.AddUint64(&localEmitted, 1)
}

func IncCrcError() {
	CrcErrors.Inc()
	atomic.AddUint64(&localCrcErrors, 1)
}

func IncDecodeError() {
	DecodeErrors.Inc()
	atomic.AddUint64(&localDecodeErrors, 1)
}

func IncFecBadLength() {
	FecBadLength.Inc()
	atomic.AddUint64(&localFecBadLength, 1)
}

func IncSyncLost() {
	SyncLost.Inc()
	atomic.AddUint64(&localSyncLost, 1)
}

func IncStopMismatch() {
	StopMismatch.Inc()
	atomic.AddUint64(&localStopMismatch, 1)
}

func AddFecCorrections(n int) {
	if n <= 0 {
		return
	}
	FecCorrections.Add(float64(n))
	atomic.AddUint64(&localCorrections, uint64(n))
}

func IncExportDropped() {
	MetricsExportDropped.Inc()
	atomic.AddUint64(&localExportDrop, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers error label
// series for the per-packet error kinds (not bind or config_invalid) so
// their first occurrence doesn't pay first-touch registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{
		ErrTooShort, ErrBadLength, ErrCrcMismatch, ErrDecipher,
		ErrFecBadLength, ErrSyncLost, ErrStopMismatch, ErrIO,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
