package configtypes

import (
	"fmt"
	"time"

	"github.com/edgecomet/siteguard/internal/allowlist"
)

// Validate checks the configuration. Empty values that have defaults are
// accepted; defaults are applied by the loader afterwards.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}

	var serverPort int
	if c.Server.Listen != "" {
		if err := ValidateListenAddress(c.Server.Listen); err != nil {
			return fmt.Errorf("invalid server.listen: %w", err)
		}
		serverPort, _ = GetPortFromListen(c.Server.Listen)
	}
	if time.Duration(c.Server.Timeout) < 0 {
		return fmt.Errorf("server.timeout must be >= 0, got %v", c.Server.Timeout)
	}
	if c.Server.MaxBodySize < 0 {
		return fmt.Errorf("server.max_body_size must be >= 0, got %d", c.Server.MaxBodySize)
	}

	if time.Duration(c.Hosts.WatchDebounce) < 0 {
		return fmt.Errorf("hosts.watch_debounce must be >= 0, got %v", c.Hosts.WatchDebounce)
	}
	if c.Hosts.LockFile != "" && c.Hosts.LockFile == c.Hosts.Path {
		return fmt.Errorf("hosts.lock_file must differ from hosts.path")
	}
	if _, err := allowlist.Compile(c.Hosts.Protected); err != nil {
		return fmt.Errorf("invalid hosts.protected: %w", err)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.ScanCache.Enabled {
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be specified when scan_cache is enabled")
		}
		if time.Duration(c.ScanCache.TTL) < 0 {
			return fmt.Errorf("scan_cache.ttl must be >= 0, got %v", c.ScanCache.TTL)
		}
	}

	if c.Audit.Enabled {
		if c.Audit.Path == "" {
			return fmt.Errorf("audit.path must be specified when audit is enabled")
		}
		if err := c.Audit.Rotation.validate("audit.rotation"); err != nil {
			return err
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen must be specified when enabled")
		}
		if err := ValidateListenAddress(c.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		metricsPort, _ := GetPortFromListen(c.Metrics.Listen)
		if serverPort != 0 && metricsPort == serverPort {
			return fmt.Errorf("metrics.listen port (%d) must differ from server.listen port (%d)", metricsPort, serverPort)
		}
	}

	return c.Log.Validate()
}

// Validate checks levels, formats and rotation of a log configuration.
func (l *LogConfig) Validate() error {
	validLogLevels := map[string]bool{
		LogLevelDebug: true,
		LogLevelInfo:  true,
		LogLevelWarn:  true,
		LogLevelError: true,
	}
	if l.Level != "" && !validLogLevels[l.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, got '%s'", l.Level)
	}
	if l.Console.Level != "" && !validLogLevels[l.Console.Level] {
		return fmt.Errorf("log.console.level must be one of: debug, info, warn, error, got '%s'", l.Console.Level)
	}
	if l.File.Level != "" && !validLogLevels[l.File.Level] {
		return fmt.Errorf("log.file.level must be one of: debug, info, warn, error, got '%s'", l.File.Level)
	}

	if l.Console.Enabled && l.Console.Format != "" &&
		l.Console.Format != LogFormatJSON && l.Console.Format != LogFormatConsole {
		return fmt.Errorf("log.console.format must be 'json' or 'console', got '%s'", l.Console.Format)
	}

	if l.File.Enabled {
		if l.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if l.File.Format != "" && l.File.Format != LogFormatJSON && l.File.Format != LogFormatText {
			return fmt.Errorf("log.file.format must be 'json' or 'text', got '%s'", l.File.Format)
		}
		if err := l.File.Rotation.validate("log.file.rotation"); err != nil {
			return err
		}
	}

	return nil
}

func (r RotationConfig) validate(prefix string) error {
	if r.MaxSize < 0 {
		return fmt.Errorf("%s.max_size must be >= 0, got %d", prefix, r.MaxSize)
	}
	if r.MaxAge < 0 {
		return fmt.Errorf("%s.max_age must be >= 0, got %d", prefix, r.MaxAge)
	}
	if r.MaxBackups < 0 {
		return fmt.Errorf("%s.max_backups must be >= 0, got %d", prefix, r.MaxBackups)
	}
	return nil
}
