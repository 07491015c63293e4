package main

import (
	"log/slog"

	"github.com/kstaniek/linkemu/internal/hub"
)

// initHub builds the metrics-record fan-out hub for optional subscribers
// (an mDNS-discovered peer mirror, a future metrics exporter), defaulting to
// the backpressure-drop policy (§5).
func initHub(l *slog.Logger) *hub.Hub {
	h := hub.New()
	h.OutBufSize = 256
	h.Policy = hub.PolicyDrop
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("hub_config", "policy", "drop", "buffer", h.OutBufSize)
	return h
}
