package configtypes

// Log level constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// Config is the siteguard service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Hosts     HostsConfig     `yaml:"hosts"`
	Model     ModelConfig     `yaml:"model"`
	ScanCache ScanCacheConfig `yaml:"scan_cache"`
	Redis     RedisConfig     `yaml:"redis"`
	Audit     AuditConfig     `yaml:"audit"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type ServerConfig struct {
	Listen      string   `yaml:"listen"`
	Timeout     Duration `yaml:"timeout"`
	MaxBodySize int      `yaml:"max_body_size"` // bytes
	// Headers consulted, in order, for the client address recorded in the
	// audit log. Empty means the TCP peer address.
	ClientIPHeaders []string `yaml:"client_ip_headers"`
}

// HostsConfig describes the managed hosts file.
type HostsConfig struct {
	Path          string   `yaml:"path"`
	LockFile      string   `yaml:"lock_file"`              // empty disables the cross-process lock
	AtomicWrite   *bool    `yaml:"atomic_write,omitempty"` // default true; false for bind-mounted files
	Watch         bool     `yaml:"watch"`
	WatchDebounce Duration `yaml:"watch_debounce"`
	// Domains that can never be blocked, see package allowlist for syntax.
	Protected []string `yaml:"protected"`
}

// IsAtomicWrite reports whether writes replace the file via rename.
func (h HostsConfig) IsAtomicWrite() bool {
	return h.AtomicWrite == nil || *h.AtomicWrite
}

// ModelConfig points at the risk model file. An empty path selects the
// built-in model.
type ModelConfig struct {
	Path string `yaml:"path"`
}

type ScanCacheConfig struct {
	Enabled bool     `yaml:"enabled"`
	TTL     Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuditConfig configures the block/unblock audit trail.
type AuditConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
	Log      bool           `yaml:"log"` // also write events to the service log
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"` // megabytes
	MaxAge     int  `yaml:"max_age"`  // days
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
