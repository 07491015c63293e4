package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/linkemu/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("linkemu %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)
	h := initHub(l)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	logMetricsEvery, err := time.ParseDuration(cfg.logMetricsEvery)
	if err != nil {
		l.Error("config_error", "error", err)
		os.Exit(2)
	}
	startMetricsLogger(ctx, logMetricsEvery, l, &wg)

	seed := cfg.seed
	if !cfg.seedSet {
		seed = uint64(time.Now().UnixNano())
	}
	driver, err := buildDriver(cfg, h, l, seed)
	if err != nil {
		l.Error("driver_init_error", "error", err)
		os.Exit(2)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- driver.Serve(ctx) }()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-driver.Ready():
		case <-ctx.Done():
			return
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, cfg.listenPort)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", cfg.listenPort)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-driver.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		<-serveErrCh
	case err := <-serveErrCh:
		if err != nil {
			l.Error("pipeline_bind_error", "error", err)
			exitCode = 1
		}
		cancel()
	}
	wg.Wait()

	if cfg.metricsFile != "" {
		if err := writeMetricsFile(driver.Recorder(), cfg.metricsFile); err != nil {
			l.Warn("metrics_file_write_failed", "error", err)
		}
	}
	os.Exit(exitCode)
}
