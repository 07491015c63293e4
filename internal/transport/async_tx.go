package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/linkemu/internal/metrics"
)

// AsyncTx is a reusable asynchronous record transmitter that funnels writes
// through a single goroutine (fan-in). It provides non-blocking enqueue
// semantics: if the internal buffer is full, SendRecord invokes the
// configured OnDrop hook and returns its error. This keeps the hot path
// (internal/pipeline) from ever blocking behind a slow metrics exporter,
// per §5's backpressure policy.
//
// Life-cycle:
//
//	a := NewAsyncTx(ctx, buf, sendFn, hooks)
//	a.SendRecord(rec)
//	a.Close()
//
// After Close returns no more records will be processed: the channel is
// closed and additional SendRecord calls return ErrAsyncTxClosed.
type AsyncTx struct {
	mu     sync.Mutex
	ch     chan metrics.Record
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	send   func(metrics.Record) error
	hooks  Hooks
	closed atomic.Bool
}

// Hooks customize AsyncTx behavior.
type Hooks struct {
	// OnError is called when send returns a non-nil error (record not sent).
	OnError func(error)
	// OnAfter is called only after a successful send.
	OnAfter func()
	// OnDrop is called when the buffer is full; its returned error is
	// returned from SendRecord. If nil, the overflow is silent.
	OnDrop func() error
}

// NewAsyncTx constructs an AsyncTx with a buffered channel of size buf.
func NewAsyncTx(parent context.Context, buf int, send func(metrics.Record) error, hooks Hooks) *AsyncTx {
	ctx, cancel := context.WithCancel(parent)
	a := &AsyncTx{
		ch:     make(chan metrics.Record, buf),
		ctx:    ctx,
		cancel: cancel,
		send:   send,
		hooks:  hooks,
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

func (a *AsyncTx) loop() {
	defer a.wg.Done()
	for {
		select {
		case rec, ok := <-a.ch:
			if !ok {
				return
			}
			if err := a.send(rec); err != nil {
				if a.hooks.OnError != nil {
					a.hooks.OnError(err)
				}
				continue
			}
			if a.hooks.OnAfter != nil {
				a.hooks.OnAfter()
			}
		case <-a.ctx.Done():
			return
		}
	}
}

// ErrAsyncTxClosed is returned by SendRecord after Close.
var ErrAsyncTxClosed = errors.New("async tx closed")

// SendRecord queues a record for asynchronous export, or returns the drop
// error if the buffer is full.
func (a *AsyncTx) SendRecord(rec metrics.Record) error {
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- rec:
		return nil
	default:
		if a.hooks.OnDrop != nil {
			return a.hooks.OnDrop()
		}
		return nil
	}
}

// Close stops the worker and waits for it to exit. Records still queued when
// Close is called may be discarded without being sent.
func (a *AsyncTx) Close() {
	if a.closed.Swap(true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}
