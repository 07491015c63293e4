package pipeline

import (
	"errors"

	"github.com/kstaniek/linkemu/internal/framesync"
	"github.com/kstaniek/linkemu/internal/metrics"
	"github.com/kstaniek/linkemu/internal/wire"
)

// Sentinel errors for conditions that unwind out of Serve (fatal at
// startup, §7), as distinct from per-packet failures which are always
// recovered inside processPacket.
var (
	ErrBind     = errors.New("bind")
	ErrShutdown = errors.New("shutdown")
)

// mapWireErrToMetric classifies a wire codec failure for counter routing
// and structured logging (§7).
func mapWireErrToMetric(err error) string {
	var werr *wire.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case wire.KindTooShort:
			return metrics.ErrTooShort
		case wire.KindBadLength, wire.KindTooLarge:
			return metrics.ErrBadLength
		case wire.KindCrcMismatch:
			return metrics.ErrCrcMismatch
		case wire.KindBadAddress:
			return metrics.ErrBadLength
		}
	}
	return metrics.ErrIO
}

// mapFrameSyncErrToMetric classifies a sample-mode frame-sync failure.
func mapFrameSyncErrToMetric(err error) string {
	var ferr *framesync.Error
	if errors.As(err, &ferr) {
		switch ferr.Kind {
		case framesync.KindSyncLost:
			return metrics.ErrSyncLost
		case framesync.KindStopMismatch:
			return metrics.ErrStopMismatch
		}
	}
	return metrics.ErrIO
}
