package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
)

const (
	DefaultMaxSize    = 100 // MB
	DefaultMaxAge     = 30  // days
	DefaultMaxBackups = 10  // files
)

// FileEmitter appends audit lines to a rotated file.
type FileEmitter struct {
	writer *lumberjack.Logger
	logger *zap.Logger
}

// NewFileEmitter creates the parent directory of cfg.Path if needed.
func NewFileEmitter(cfg configtypes.AuditConfig, logger *zap.Logger) (*FileEmitter, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit log path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
	}

	maxSize := cfg.Rotation.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxSize
	}
	maxAge := cfg.Rotation.MaxAge
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}
	maxBackups := cfg.Rotation.MaxBackups
	if maxBackups == 0 {
		maxBackups = DefaultMaxBackups
	}

	return &FileEmitter{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: maxBackups,
			Compress:   cfg.Rotation.Compress,
		},
		logger: logger,
	}, nil
}

// Emit writes the event. Write failures are logged and dropped.
func (f *FileEmitter) Emit(event *Event) {
	if _, err := f.writer.Write([]byte(event.Line() + "\n")); err != nil {
		f.logger.Warn("failed to write audit event",
			zap.Error(err),
			zap.String("request_id", event.RequestID),
			zap.String("domain", event.Domain))
	}
}

func (f *FileEmitter) Close() error {
	return f.writer.Close()
}
