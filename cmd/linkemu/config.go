package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// appConfig is the fully-resolved configuration for one linkemu process,
// after flag parsing and an optional JSON config-file merge (§6). Flags
// explicitly passed on the command line always win over the config file.
type appConfig struct {
	listenIP    string
	listenPort  int
	destIP      string
	destPort    int
	metricsIP   string
	metricsPort int

	mode         string
	modulation   string
	snrDb        float64
	channel      string
	ricianK      float64
	dopplerHz    float64
	delaySpreadS float64
	sampleRate   float64
	symbolRate   float64
	fec          string
	keyFile      string
	seed         uint64
	seedSet      bool
	metricsFile  string

	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery string
	mdnsEnable      bool
	mdnsName        string
	configFile      string
}

// fecConfig is the parsed form of the --fec flag: either off, or a
// repetition factor.
type fecConfig struct {
	enabled bool
	repeat  int
}

func parseFecFlag(s string) (fecConfig, error) {
	if s == "off" {
		return fecConfig{}, nil
	}
	const prefix = "rep:"
	if !strings.HasPrefix(s, prefix) {
		return fecConfig{}, fmt.Errorf("fec: expected \"off\" or \"rep:<r>\", got %q", s)
	}
	r, err := strconv.Atoi(strings.TrimPrefix(s, prefix))
	if err != nil {
		return fecConfig{}, fmt.Errorf("fec: invalid repeat factor: %w", err)
	}
	return fecConfig{enabled: true, repeat: r}, nil
}

// jsonConfig mirrors appConfig's domain fields for the optional JSON config
// file (§6 "Configuration file"). Pointer fields distinguish "absent" from
// "explicitly zero" so the merge only overwrites values the file actually set.
type jsonConfig struct {
	ListenIP     *string  `json:"listen_ip"`
	ListenPort   *int     `json:"listen_port"`
	DestIP       *string  `json:"dest_ip"`
	DestPort     *int     `json:"dest_port"`
	MetricsIP    *string  `json:"metrics_ip"`
	MetricsPort  *int     `json:"metrics_port"`
	Mode         *string  `json:"mode"`
	Modulation   *string  `json:"modulation"`
	SNRDb        *float64 `json:"snr_db"`
	Channel      *string  `json:"channel"`
	RicianK      *float64 `json:"rician_k"`
	DopplerHz    *float64 `json:"doppler_hz"`
	DelaySpreadS *float64 `json:"delay_spread_s"`
	SampleRate   *float64 `json:"sample_rate"`
	SymbolRate   *float64 `json:"symbol_rate"`
	FEC          *string  `json:"fec"`
	KeyFile      *string  `json:"key_file"`
	Seed         *uint64  `json:"seed"`
	MetricsFile  *string  `json:"metrics_file"`
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listenIP := flag.String("listen-ip", "0.0.0.0", "Ingress listen address")
	listenPort := flag.Int("listen-port", 5000, "Ingress listen port")
	destIP := flag.String("dest-ip", "", "Egress destination address (required)")
	destPort := flag.Int("dest-port", 0, "Egress destination port (required)")
	metricsIP := flag.String("metrics-ip", "", "Optional UDP metrics-export destination address")
	metricsPort := flag.Int("metrics-port", 0, "Optional UDP metrics-export destination port")
	mode := flag.String("mode", "byte", "Receive path: sample|byte")
	modulation := flag.String("modulation", "qpsk", "Modulation scheme (sample mode): bpsk|qpsk|16qam")
	snrDb := flag.Float64("snr-db", 20, "Channel SNR in dB")
	channel := flag.String("channel", "awgn", "Channel model: awgn|rayleigh|rician")
	ricianK := flag.Float64("rician-k", 10, "Rician K-factor")
	dopplerHz := flag.Float64("doppler-hz", 0, "Doppler shift in Hz")
	delaySpreadS := flag.Float64("delay-spread-s", 0, "RMS multipath delay spread in seconds")
	sampleRate := flag.Float64("sample-rate", 1e6, "Sample rate in Hz (sample mode)")
	symbolRate := flag.Float64("symbol-rate", 1e5, "Symbol rate in Hz (sample mode)")
	fecFlag := flag.String("fec", "rep:3", "FEC: off|rep:<r>")
	keyFile := flag.String("key-file", "", "Path to a cipher key file (optional, uses the demo key otherwise)")
	seed := flag.Uint64("seed", 0, "Channel PRNG seed (0 lets the process pick one)")
	metricsFile := flag.String("metrics-file", "", "Path to write a CSV metrics dump on shutdown")

	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP listen address (e.g. :9100); empty disables")
	logMetricsEvery := flag.String("log-metrics-interval", "0s", "If >0, periodically log metrics counters")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS link-discovery advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default linkemu-<hostname>)")
	configFile := flag.String("config", "", "Optional JSON config file, merged under CLI flags")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenIP = *listenIP
	cfg.listenPort = *listenPort
	cfg.destIP = *destIP
	cfg.destPort = *destPort
	cfg.metricsIP = *metricsIP
	cfg.metricsPort = *metricsPort
	cfg.mode = *mode
	cfg.modulation = *modulation
	cfg.snrDb = *snrDb
	cfg.channel = *channel
	cfg.ricianK = *ricianK
	cfg.dopplerHz = *dopplerHz
	cfg.delaySpreadS = *delaySpreadS
	cfg.sampleRate = *sampleRate
	cfg.symbolRate = *symbolRate
	cfg.fec = *fecFlag
	cfg.keyFile = *keyFile
	cfg.seed = *seed
	cfg.seedSet = *seed != 0
	cfg.metricsFile = *metricsFile
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile

	if cfg.configFile != "" {
		if err := mergeConfigFile(cfg, cfg.configFile, setFlags); err != nil {
			fmt.Printf("configuration file error: %v\n", err)
			return nil, *showVersion
		}
	}

	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// mergeConfigFile loads a JSON config file and applies any field the command
// line did not already set explicitly (§6: "CLI wins").
func mergeConfigFile(cfg *appConfig, path string, setFlags map[string]struct{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var jc jsonConfig
	if err := json.Unmarshal(raw, &jc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	set := func(flagName string) bool { _, ok := setFlags[flagName]; return ok }

	if jc.ListenIP != nil && !set("listen-ip") {
		cfg.listenIP = *jc.ListenIP
	}
	if jc.ListenPort != nil && !set("listen-port") {
		cfg.listenPort = *jc.ListenPort
	}
	if jc.DestIP != nil && !set("dest-ip") {
		cfg.destIP = *jc.DestIP
	}
	if jc.DestPort != nil && !set("dest-port") {
		cfg.destPort = *jc.DestPort
	}
	if jc.MetricsIP != nil && !set("metrics-ip") {
		cfg.metricsIP = *jc.MetricsIP
	}
	if jc.MetricsPort != nil && !set("metrics-port") {
		cfg.metricsPort = *jc.MetricsPort
	}
	if jc.Mode != nil && !set("mode") {
		cfg.mode = *jc.Mode
	}
	if jc.Modulation != nil && !set("modulation") {
		cfg.modulation = *jc.Modulation
	}
	if jc.SNRDb != nil && !set("snr-db") {
		cfg.snrDb = *jc.SNRDb
	}
	if jc.Channel != nil && !set("channel") {
		cfg.channel = *jc.Channel
	}
	if jc.RicianK != nil && !set("rician-k") {
		cfg.ricianK = *jc.RicianK
	}
	if jc.DopplerHz != nil && !set("doppler-hz") {
		cfg.dopplerHz = *jc.DopplerHz
	}
	if jc.DelaySpreadS != nil && !set("delay-spread-s") {
		cfg.delaySpreadS = *jc.DelaySpreadS
	}
	if jc.SampleRate != nil && !set("sample-rate") {
		cfg.sampleRate = *jc.SampleRate
	}
	if jc.SymbolRate != nil && !set("symbol-rate") {
		cfg.symbolRate = *jc.SymbolRate
	}
	if jc.FEC != nil && !set("fec") {
		cfg.fec = *jc.FEC
	}
	if jc.KeyFile != nil && !set("key-file") {
		cfg.keyFile = *jc.KeyFile
	}
	if jc.Seed != nil && !set("seed") {
		cfg.seed = *jc.Seed
		cfg.seedSet = true
	}
	if jc.MetricsFile != nil && !set("metrics-file") {
		cfg.metricsFile = *jc.MetricsFile
	}
	return nil
}

// validate performs semantic validation of the parsed configuration,
// matching the teacher's "only checks values/ranges, never opens resources"
// convention.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.mode {
	case "sample", "byte":
	default:
		return fmt.Errorf("invalid mode: %s", c.mode)
	}
	switch c.modulation {
	case "bpsk", "qpsk", "16qam":
	default:
		return fmt.Errorf("invalid modulation: %s", c.modulation)
	}
	switch c.channel {
	case "awgn", "rayleigh", "rician":
	default:
		return fmt.Errorf("invalid channel: %s", c.channel)
	}
	if c.destIP == "" {
		return errors.New("dest-ip is required")
	}
	if c.destPort <= 0 || c.destPort > 65535 {
		return fmt.Errorf("dest-port out of range: %d", c.destPort)
	}
	if c.listenPort <= 0 || c.listenPort > 65535 {
		return fmt.Errorf("listen-port out of range: %d", c.listenPort)
	}
	if (c.metricsIP == "") != (c.metricsPort == 0) {
		return errors.New("metrics-ip and metrics-port must be set together")
	}
	if c.sampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	if c.symbolRate <= 0 {
		return errors.New("symbol-rate must be > 0")
	}
	if c.sampleRate < c.symbolRate {
		return errors.New("sample-rate must be >= symbol-rate")
	}
	if _, err := parseFecFlag(c.fec); err != nil {
		return err
	}
	return nil
}
