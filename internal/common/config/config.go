package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
	"github.com/edgecomet/siteguard/internal/common/yamlutil"
)

// Defaults
const (
	DefaultListen           = ":5001"
	DefaultTimeout          = 10 * time.Second
	DefaultMaxBodySize      = 64 * 1024
	DefaultHostsPath        = "/etc/hosts"
	DefaultWatchDebounce    = 250 * time.Millisecond
	DefaultScanCacheTTL     = time.Hour
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "siteguard"
)

// Default returns a configuration with every default applied and no file
// backing it.
func Default() *configtypes.Config {
	cfg := &configtypes.Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, validates and completes the configuration at path.
func Load(path string, logger *zap.Logger) (*configtypes.Config, error) {
	logger.Info("Loading configuration", zap.String("path", path))

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg configtypes.Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	applyDefaults(&cfg)

	if err := normalizeListeners(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Info("Configuration loaded successfully",
		zap.String("listen", cfg.Server.Listen),
		zap.String("hosts_path", cfg.Hosts.Path),
		zap.String("model_path", cfg.Model.Path),
		zap.Bool("scan_cache", cfg.ScanCache.Enabled),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	return &cfg, nil
}

func applyDefaults(cfg *configtypes.Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = configtypes.Duration(DefaultTimeout)
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultMaxBodySize
	}

	if cfg.Hosts.Path == "" {
		cfg.Hosts.Path = DefaultHostsPath
	}
	if cfg.Hosts.WatchDebounce == 0 {
		cfg.Hosts.WatchDebounce = configtypes.Duration(DefaultWatchDebounce)
	}

	if cfg.ScanCache.TTL == 0 {
		cfg.ScanCache.TTL = configtypes.Duration(DefaultScanCacheTTL)
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// With both outputs off, log to the console.
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}
}

// normalizeListeners rewrites listen addresses into the host:port form
// net.Listen expects, so a bare "5001" becomes ":5001".
func normalizeListeners(cfg *configtypes.Config) error {
	listen, err := configtypes.NormalizeListen(cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}
	cfg.Server.Listen = listen

	if cfg.Metrics.Listen != "" {
		listen, err := configtypes.NormalizeListen(cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		cfg.Metrics.Listen = listen
	}
	return nil
}
