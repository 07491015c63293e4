package metrics

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultWindowSize is the rolling-window depth W (§4.9).
const DefaultWindowSize = 100

// Record is one packet's channel metrics (§3 "Packet metrics").
type Record struct {
	Seq            uint32
	TimestampNS    uint64
	SizeBytes      int
	SNRDb          float64
	HasSNR         bool
	BER            float64
	HasBER         bool
	BitErrors      int
	HasBitErrors   bool
	LatencyMs      float64
	HasLatency     bool
	EVM            float64
	HasEVM         bool
	FECCorrections int
	DecodeError    bool
}

// Recorder maintains a rolling window of the last W packet records plus
// cumulative counters, per §4.9.
type Recorder struct {
	mu       sync.Mutex
	window   []Record
	capacity int
	start    int // index of oldest record in window (ring buffer)
	count    int // number of valid records in window

	totalPackets uint64
	totalErrors  uint64
	startedAt    time.Time
}

// NewRecorder builds a Recorder with the given rolling-window capacity
// (0 or negative defaults to DefaultWindowSize).
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Recorder{
		window:    make([]Record, capacity),
		capacity:  capacity,
		startedAt: time.Now(),
	}
}

// Add appends a record to the rolling window, evicting the oldest entry
// once the window is full, and updates cumulative counters.
func (r *Recorder) Add(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := (r.start + r.count) % r.capacity
	if r.count < r.capacity {
		r.window[idx] = rec
		r.count++
	} else {
		r.window[r.start] = rec
		r.start = (r.start + 1) % r.capacity
	}

	r.totalPackets++
	if rec.DecodeError {
		r.totalErrors++
	}
}

// snapshotLocked returns the records currently in the window, oldest first.
// Caller must hold r.mu.
func (r *Recorder) snapshotLocked() []Record {
	out := make([]Record, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.window[(r.start+i)%r.capacity]
	}
	return out
}

// Summary is the aggregate view exported as JSON (§4.9).
type Summary struct {
	PacketCount     uint64  `json:"packet_count"`
	ErrorCount      uint64  `json:"error_count"`
	WindowSize      int     `json:"window_size"`
	MeanBER         float64 `json:"mean_ber"`
	MinBER          float64 `json:"min_ber"`
	MaxBER          float64 `json:"max_ber"`
	MeanSNRDb       float64 `json:"mean_snr_db"`
	MinSNRDb        float64 `json:"min_snr_db"`
	MaxSNRDb        float64 `json:"max_snr_db"`
	MeanLatencyMs   float64 `json:"mean_latency_ms"`
	MinLatencyMs    float64 `json:"min_latency_ms"`
	MaxLatencyMs    float64 `json:"max_latency_ms"`
	MeanEVM         float64 `json:"mean_evm"`
	ThroughputPktps float64 `json:"throughput_packets_per_sec"`
}

// Snapshot computes the current window's aggregates.
func (r *Recorder) Snapshot() Summary {
	r.mu.Lock()
	records := r.snapshotLocked()
	total := r.totalPackets
	errs := r.totalErrors
	elapsed := time.Since(r.startedAt).Seconds()
	r.mu.Unlock()

	s := Summary{
		PacketCount: total,
		ErrorCount:  errs,
		WindowSize:  len(records),
	}
	if elapsed > 0 {
		s.ThroughputPktps = float64(total) / elapsed
	}

	var bers, snrs, lats, evms []float64
	for _, rec := range records {
		if rec.HasBER {
			bers = append(bers, rec.BER)
		}
		if rec.HasSNR {
			snrs = append(snrs, rec.SNRDb)
		}
		if rec.HasLatency {
			lats = append(lats, rec.LatencyMs)
		}
		if rec.HasEVM {
			evms = append(evms, rec.EVM)
		}
	}

	if len(bers) > 0 {
		s.MeanBER = floats.Sum(bers) / float64(len(bers))
		s.MinBER = floats.Min(bers)
		s.MaxBER = floats.Max(bers)
	}
	if len(snrs) > 0 {
		s.MeanSNRDb = floats.Sum(snrs) / float64(len(snrs))
		s.MinSNRDb = floats.Min(snrs)
		s.MaxSNRDb = floats.Max(snrs)
	}
	if len(lats) > 0 {
		s.MeanLatencyMs = floats.Sum(lats) / float64(len(lats))
		s.MinLatencyMs = floats.Min(lats)
		s.MaxLatencyMs = floats.Max(lats)
	}
	if len(evms) > 0 {
		s.MeanEVM = floats.Sum(evms) / float64(len(evms))
	}
	return s
}

// WriteCSV emits one row per record currently in the window (§4.9).
func (r *Recorder) WriteCSV(w io.Writer) error {
	r.mu.Lock()
	records := r.snapshotLocked()
	r.mu.Unlock()

	cw := csv.NewWriter(w)
	header := []string{"seq", "timestamp_ns", "size_bytes", "snr_db", "ber", "bit_errors", "latency_ms", "evm", "fec_corrections", "decode_error"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			strconv.FormatUint(uint64(rec.Seq), 10),
			strconv.FormatUint(rec.TimestampNS, 10),
			strconv.Itoa(rec.SizeBytes),
			optionalFloat(rec.SNRDb, rec.HasSNR),
			optionalFloat(rec.BER, rec.HasBER),
			optionalInt(rec.BitErrors, rec.HasBitErrors),
			optionalFloat(rec.LatencyMs, rec.HasLatency),
			optionalFloat(rec.EVM, rec.HasEVM),
			strconv.Itoa(rec.FECCorrections),
			strconv.FormatBool(rec.DecodeError),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONSummary emits the current aggregate summary as JSON (§4.9).
func (r *Recorder) WriteJSONSummary(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Snapshot())
}

func optionalFloat(v float64, has bool) string {
	if !has {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optionalInt(v int, has bool) string {
	if !has {
		return ""
	}
	return strconv.Itoa(v)
}
