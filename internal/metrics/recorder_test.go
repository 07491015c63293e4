package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecorder_WindowEvictsOldest(t *testing.T) {
	r := NewRecorder(3)
	for seq := uint32(1); seq <= 5; seq++ {
		r.Add(Record{Seq: seq})
	}
	summary := r.Snapshot()
	require.Equal(t, 3, summary.WindowSize)
	require.Equal(t, uint64(5), summary.PacketCount)
}

func TestRecorder_MeanMinMaxBER(t *testing.T) {
	r := NewRecorder(10)
	r.Add(Record{Seq: 1, BER: 0.1, HasBER: true})
	r.Add(Record{Seq: 2, BER: 0.3, HasBER: true})
	r.Add(Record{Seq: 3, BER: 0.2, HasBER: true})

	s := r.Snapshot()
	require.InDelta(t, 0.2, s.MeanBER, 1e-9)
	require.InDelta(t, 0.1, s.MinBER, 1e-9)
	require.InDelta(t, 0.3, s.MaxBER, 1e-9)
}

func TestRecorder_ErrorCount(t *testing.T) {
	r := NewRecorder(10)
	r.Add(Record{Seq: 1, DecodeError: true})
	r.Add(Record{Seq: 2})
	s := r.Snapshot()
	require.Equal(t, uint64(1), s.ErrorCount)
	require.Equal(t, uint64(2), s.PacketCount)
}

func TestRecorder_WriteCSV_OneRowPerRecord(t *testing.T) {
	r := NewRecorder(10)
	r.Add(Record{Seq: 1, SizeBytes: 5, SNRDb: 20, HasSNR: true})
	r.Add(Record{Seq: 2, SizeBytes: 8})

	var buf bytes.Buffer
	require.NoError(t, r.WriteCSV(&buf))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3) // header + 2 records
}

func TestRecorder_WriteJSONSummary(t *testing.T) {
	r := NewRecorder(10)
	r.Add(Record{Seq: 1, LatencyMs: 1.5, HasLatency: true})

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSONSummary(&buf))
	require.Contains(t, buf.String(), `"packet_count": 1`)
}

func TestRecorder_EmptyWindow_NoDivideByZero(t *testing.T) {
	r := NewRecorder(10)
	s := r.Snapshot()
	require.Equal(t, 0, s.WindowSize)
	require.Equal(t, 0.0, s.MeanBER)
}
