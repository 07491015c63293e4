package main

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/linkemu/internal/channel"
	"github.com/kstaniek/linkemu/internal/cipher"
	"github.com/kstaniek/linkemu/internal/framesync"
	"github.com/kstaniek/linkemu/internal/hub"
	"github.com/kstaniek/linkemu/internal/modulation"
	"github.com/kstaniek/linkemu/internal/pipeline"
	"github.com/kstaniek/linkemu/internal/pulse"
)

// buildDriver translates the resolved appConfig into a wired pipeline.Driver,
// the CLI-to-domain-objects boundary referenced by §6's external interface.
func buildDriver(cfg *appConfig, h *hub.Hub, l *slog.Logger, seed uint64) (*pipeline.Driver, error) {
	mode, err := pipeline.ParseMode(cfg.mode)
	if err != nil {
		return nil, err
	}
	scheme, err := modulation.ParseScheme(cfg.modulation)
	if err != nil {
		return nil, err
	}
	model, err := channel.ParseModel(cfg.channel)
	if err != nil {
		return nil, err
	}
	fec, err := parseFecFlag(cfg.fec)
	if err != nil {
		return nil, err
	}
	fecR := 0
	if fec.enabled {
		fecR = fec.repeat
	}

	c := cipher.NewDefault()
	if cfg.keyFile != "" {
		c, err = cipher.LoadKeyFile(cfg.keyFile)
		if err != nil {
			return nil, fmt.Errorf("load key file: %w", err)
		}
	}

	sps := pulse.SamplesPerSymbol(cfg.sampleRate, cfg.symbolRate)

	params := channel.Params{
		SNRDb:        cfg.snrDb,
		Model:        model,
		DopplerHz:    cfg.dopplerHz,
		RicianK:      cfg.ricianK,
		DelaySpreadS: cfg.delaySpreadS,
		SampleRateHz: cfg.sampleRate,
	}

	opts := []pipeline.DriverOption{
		pipeline.WithListenAddr(fmt.Sprintf("%s:%d", cfg.listenIP, cfg.listenPort)),
		pipeline.WithDestAddr(fmt.Sprintf("%s:%d", cfg.destIP, cfg.destPort)),
		pipeline.WithMode(mode),
		pipeline.WithCipher(c),
		pipeline.WithFEC(fecR),
		pipeline.WithModulation(scheme),
		pipeline.WithRRC(pulse.DefaultRolloff, pulse.DefaultSpan, sps),
		pipeline.WithSyncThreshold(framesync.DefaultSyncThreshold),
		pipeline.WithChannel(params, seed),
		pipeline.WithHub(h),
		pipeline.WithLogger(l),
	}
	if cfg.metricsIP != "" {
		opts = append(opts, pipeline.WithMetricsAddr(fmt.Sprintf("%s:%d", cfg.metricsIP, cfg.metricsPort)))
	}

	return pipeline.NewDriver(opts...), nil
}
