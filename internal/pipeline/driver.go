// Package pipeline implements the PipelineDriver (§4.8): it owns the
// ingress/egress UDP sockets, sequences each received packet through the
// cipher/FEC/channel stages, re-packs the recovery, and updates rolling
// metrics. The driver's hot path is single-threaded and cooperative (§5);
// concurrency is limited to the optional metrics-exporter task.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kstaniek/linkemu/internal/channel"
	"github.com/kstaniek/linkemu/internal/cipher"
	"github.com/kstaniek/linkemu/internal/dsp"
	"github.com/kstaniek/linkemu/internal/fec"
	"github.com/kstaniek/linkemu/internal/framesync"
	"github.com/kstaniek/linkemu/internal/hub"
	"github.com/kstaniek/linkemu/internal/logging"
	"github.com/kstaniek/linkemu/internal/metrics"
	"github.com/kstaniek/linkemu/internal/modulation"
	"github.com/kstaniek/linkemu/internal/pulse"
	"github.com/kstaniek/linkemu/internal/transport"
	"github.com/kstaniek/linkemu/internal/wire"
)

// metricsExportBuf bounds the async metrics-export queue; a full queue
// drops the newest record rather than stall the hot path (§5).
const metricsExportBuf = 256

// Mode selects the receive path (§4.7, §6 --mode).
type Mode int

const (
	ModeByte Mode = iota
	ModeSample
)

// ParseMode parses the --mode CLI value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "byte":
		return ModeByte, nil
	case "sample":
		return ModeSample, nil
	default:
		return 0, fmt.Errorf("pipeline: unknown mode %q", s)
	}
}

const defaultReceiveTimeout = 100 * time.Millisecond

// Driver is the pipeline driver (§4.8). Construct with NewDriver and a list
// of DriverOption values; it is not safe to mutate fields after Serve starts.
type Driver struct {
	mu sync.RWMutex

	listenAddr  string
	destAddr    string
	metricsAddr string

	mode       Mode
	cipher     *cipher.Cipher
	fecR       int
	modScheme  modulation.Scheme
	rrcTaps    []float64
	sps        int
	syncThresh float64

	params     channel.Params
	channel    *channel.Channel
	channelDsp dsp.Dsp

	recorder *metrics.Recorder
	hub      *hub.Hub

	receiveTimeout time.Duration
	logger         *slog.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error
	lastErrMu sync.Mutex
	lastErr   error

	ingress     *net.UDPConn
	egress      *net.UDPConn
	metricsConn *net.UDPConn
	metricsTx   *transport.AsyncTx

	wg sync.WaitGroup
}

// DriverOption configures a Driver at construction time.
type DriverOption func(*Driver)

// NewDriver builds a Driver with defaults matching spec.md §6, then applies
// opts in order.
func NewDriver(opts ...DriverOption) *Driver {
	d := &Driver{
		mode:           ModeByte,
		fecR:           3,
		modScheme:      modulation.QPSK,
		rrcTaps:        pulse.Taps(pulse.DefaultRolloff, pulse.DefaultSpan, 10),
		sps:            10,
		syncThresh:     framesync.DefaultSyncThreshold,
		cipher:         cipher.NewDefault(),
		params:         channel.Params{SNRDb: 20, Model: channel.AWGNOnly, SampleRateHz: 1e6},
		receiveTimeout: defaultReceiveTimeout,
		readyCh:        make(chan struct{}),
		errCh:          make(chan error, 1),
		logger:         logging.L(),
		recorder:       metrics.NewRecorder(metrics.DefaultWindowSize),
	}
	for _, o := range opts {
		o(d)
	}
	if d.channel == nil {
		d.channelDsp = dsp.NewGonumDsp(0)
		d.channel = channel.New(d.params, d.channelDsp)
	}
	return d
}

func WithListenAddr(a string) DriverOption   { return func(d *Driver) { d.listenAddr = a } }
func WithDestAddr(a string) DriverOption     { return func(d *Driver) { d.destAddr = a } }
func WithMetricsAddr(a string) DriverOption  { return func(d *Driver) { d.metricsAddr = a } }
func WithMode(m Mode) DriverOption           { return func(d *Driver) { d.mode = m } }
func WithCipher(c *cipher.Cipher) DriverOption {
	return func(d *Driver) {
		if c != nil {
			d.cipher = c
		}
	}
}
func WithFEC(r int) DriverOption { return func(d *Driver) { d.fecR = r } }
func WithModulation(s modulation.Scheme) DriverOption {
	return func(d *Driver) { d.modScheme = s }
}
func WithRRC(beta float64, span, sps int) DriverOption {
	return func(d *Driver) {
		d.rrcTaps = pulse.Taps(beta, span, sps)
		d.sps = sps
	}
}
func WithSyncThreshold(t float64) DriverOption { return func(d *Driver) { d.syncThresh = t } }
func WithReceiveTimeout(dur time.Duration) DriverOption {
	return func(d *Driver) {
		if dur > 0 {
			d.receiveTimeout = dur
		}
	}
}
func WithRecorder(r *metrics.Recorder) DriverOption {
	return func(d *Driver) {
		if r != nil {
			d.recorder = r
		}
	}
}
func WithHub(h *hub.Hub) DriverOption { return func(d *Driver) { d.hub = h } }
func WithLogger(l *slog.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithChannel configures the channel model parameters and its seeded PRNG
// (§4.6: "the channel exposes a constructor that accepts a seed").
func WithChannel(params channel.Params, seed uint64) DriverOption {
	return func(d *Driver) {
		d.params = params
		d.channelDsp = dsp.NewGonumDsp(seed)
		d.channel = channel.New(params, d.channelDsp)
	}
}

func (d *Driver) Ready() <-chan struct{} { return d.readyCh }
func (d *Driver) Errors() <-chan error   { return d.errCh }

func (d *Driver) setError(err error) {
	if err == nil {
		return
	}
	d.lastErrMu.Lock()
	d.lastErr = err
	d.lastErrMu.Unlock()
	select {
	case d.errCh <- err:
	default:
	}
}

func (d *Driver) LastError() error {
	d.lastErrMu.Lock()
	defer d.lastErrMu.Unlock()
	return d.lastErr
}

// Recorder exposes the rolling-window metrics recorder for CSV/JSON export
// on shutdown.
func (d *Driver) Recorder() *metrics.Recorder { return d.recorder }

// Serve binds the ingress and egress sockets and runs the single-threaded
// receive loop until ctx is cancelled (§4.8, §5). A receive timeout yields
// the loop periodically so the cancellation can be observed.
func (d *Driver) Serve(ctx context.Context) error {
	listenUDP, err := net.ResolveUDPAddr("udp", d.listenAddr)
	if err != nil {
		wrap := fmt.Errorf("%w: resolve listen addr: %v", ErrBind, err)
		metrics.IncError(metrics.ErrBind)
		d.setError(wrap)
		return wrap
	}
	ingress, err := net.ListenUDP("udp", listenUDP)
	if err != nil {
		wrap := fmt.Errorf("%w: listen: %v", ErrBind, err)
		metrics.IncError(metrics.ErrBind)
		d.setError(wrap)
		return wrap
	}
	d.ingress = ingress
	tuneSocketBuffers(ingress)

	destUDP, err := net.ResolveUDPAddr("udp", d.destAddr)
	if err != nil {
		_ = ingress.Close()
		wrap := fmt.Errorf("%w: resolve dest addr: %v", ErrBind, err)
		metrics.IncError(metrics.ErrBind)
		d.setError(wrap)
		return wrap
	}
	egress, err := net.DialUDP("udp", nil, destUDP)
	if err != nil {
		_ = ingress.Close()
		wrap := fmt.Errorf("%w: dial dest: %v", ErrBind, err)
		metrics.IncError(metrics.ErrBind)
		d.setError(wrap)
		return wrap
	}
	d.egress = egress
	tuneSocketBuffers(egress)

	if d.metricsAddr != "" {
		metricsUDP, err := net.ResolveUDPAddr("udp", d.metricsAddr)
		if err == nil {
			if conn, err := net.DialUDP("udp", nil, metricsUDP); err == nil {
				d.metricsConn = conn
				d.metricsTx = transport.NewAsyncTx(ctx, metricsExportBuf, d.sendMetricsRecord, transport.Hooks{
					OnError: func(err error) { d.logger.Warn("metrics_egress_write_error", "error", err) },
					OnDrop:  func() error { metrics.IncExportDropped(); return nil },
				})
			} else {
				d.logger.Warn("metrics_egress_dial_failed", "error", err)
			}
		}
	}

	d.readyOnce.Do(func() { close(d.readyCh) })
	d.logger.Info("pipeline_listen", "listen", ingress.LocalAddr().String(), "dest", egress.RemoteAddr().String(), "mode", d.modeString())

	go func() { <-ctx.Done(); _ = ingress.Close() }()

	buf := make([]byte, wire.MaxPayload+wire.HeaderSize)
	for {
		if ctx.Err() != nil {
			break
		}
		_ = ingress.SetReadDeadline(time.Now().Add(d.receiveTimeout))
		n, _, err := ingress.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				break
			}
			d.logger.Warn("ingress_read_error", "error", err)
			metrics.IncError(metrics.ErrIO)
			continue
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		d.processPacket(raw, time.Now())
	}

	return d.shutdown()
}

func (d *Driver) modeString() string {
	if d.mode == ModeSample {
		return "sample"
	}
	return "byte"
}

func (d *Driver) shutdown() error {
	if d.ingress != nil {
		_ = d.ingress.Close()
	}
	if d.egress != nil {
		_ = d.egress.Close()
	}
	if d.metricsTx != nil {
		d.metricsTx.Close()
	}
	if d.metricsConn != nil {
		_ = d.metricsConn.Close()
	}
	d.wg.Wait()
	summary := d.recorder.Snapshot()
	d.logger.Info("shutdown_summary",
		"packets", summary.PacketCount,
		"errors", summary.ErrorCount,
		"mean_ber", summary.MeanBER,
		"throughput_pktps", summary.ThroughputPktps,
	)
	return nil
}

// processPacket runs one packet through the configured receive path and
// emits the recovered datagram to egress, matching §4.8 steps 1-6. All
// failures are recovered here; none unwind past Serve.
func (d *Driver) processPacket(raw []byte, recvTime time.Time) {
	metrics.IncProcessed()

	frame, err := wire.Unpack(raw)
	if err != nil {
		label := mapWireErrToMetric(err)
		d.countFailure(label)
		d.logger.Warn("packet_dropped", "error_kind", label, "error", err)
		d.recorder.Add(metrics.Record{DecodeError: true})
		return
	}

	var recovered []byte
	var extras stageExtras
	if d.mode == ModeSample {
		recovered, extras, err = d.runSampleMode(frame.Payload)
	} else {
		recovered, extras, err = d.runByteMode(frame.Payload)
	}
	if err != nil {
		label := d.classifyStageErr(err)
		d.countFailure(label)
		d.logger.Warn("packet_dropped", "seq", frame.Seq, "error_kind", label, "error", err)
		d.recorder.Add(metrics.Record{Seq: frame.Seq, TimestampNS: frame.TimestampNS, DecodeError: true})
		return
	}

	out, err := wire.Pack(frame.Seq, frame.Src, frame.Dst, frame.TimestampNS, recovered)
	if err != nil {
		metrics.IncError(metrics.ErrIO)
		d.logger.Warn("repack_failed", "seq", frame.Seq, "error", err)
		d.recorder.Add(metrics.Record{Seq: frame.Seq, TimestampNS: frame.TimestampNS, DecodeError: true})
		return
	}

	if _, err := d.egress.Write(out); err != nil {
		metrics.IncError(metrics.ErrIO)
		d.logger.Warn("egress_write_error", "seq", frame.Seq, "error", err)
		return
	}
	metrics.IncEmitted()
	metrics.AddFecCorrections(extras.FECCorrections)

	latencyMs := float64(recvTime.UnixNano()-int64(frame.TimestampNS)) / 1e6
	rec := metrics.Record{
		Seq:            frame.Seq,
		TimestampNS:    frame.TimestampNS,
		SizeBytes:      len(recovered),
		SNRDb:          d.params.SNRDb,
		HasSNR:         true,
		BER:            extras.BER,
		HasBER:         extras.HasBER,
		BitErrors:      extras.BitErrors,
		HasBitErrors:   extras.HasBitErrors,
		LatencyMs:      latencyMs,
		HasLatency:     true,
		EVM:            extras.EVM,
		HasEVM:         extras.HasEVM,
		FECCorrections: extras.FECCorrections,
	}
	d.recorder.Add(rec)

	if d.metricsTx != nil {
		_ = d.metricsTx.SendRecord(rec)
	}
	if d.hub != nil {
		d.hub.Broadcast(rec)
	}
}

// sendMetricsRecord JSON-encodes rec and writes it to the metrics egress
// socket; called from the AsyncTx worker goroutine, never from the hot path.
func (d *Driver) sendMetricsRecord(rec metrics.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = d.metricsConn.Write(payload)
	return err
}

// classifyStageErr maps a receive-path failure to a metrics label, covering
// cipher/FEC/frame-sync error kinds per §7's error taxonomy.
func (d *Driver) classifyStageErr(err error) string {
	switch {
	case errors.Is(err, cipher.ErrTooShort):
		return metrics.ErrDecipher
	case errors.Is(err, fec.ErrBadLength):
		return metrics.ErrFecBadLength
	case errors.Is(err, framesync.ErrSyncLost), errors.Is(err, framesync.ErrStopMismatch):
		return mapFrameSyncErrToMetric(err)
	default:
		return metrics.ErrIO
	}
}

func (d *Driver) countFailure(label string) {
	metrics.IncError(label)
	switch label {
	case metrics.ErrTooShort, metrics.ErrBadLength, metrics.ErrCrcMismatch:
		metrics.IncCrcError()
	case metrics.ErrDecipher:
		metrics.IncDecodeError()
	case metrics.ErrFecBadLength:
		metrics.IncFecBadLength()
	case metrics.ErrSyncLost:
		metrics.IncSyncLost()
	case metrics.ErrStopMismatch:
		metrics.IncStopMismatch()
	}
}
