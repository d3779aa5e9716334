package audit

import (
	"errors"

	"go.uber.org/zap"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
)

// Emitter is an audit backend. Emit never blocks on or returns errors.
type Emitter interface {
	Emit(event *Event)
	Close() error
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (n *NoopEmitter) Emit(event *Event) {}

func (n *NoopEmitter) Close() error { return nil }

// MultiEmitter fans events out to several backends.
type MultiEmitter struct {
	emitters []Emitter
	logger   *zap.Logger
}

func NewMultiEmitter(emitters []Emitter, logger *zap.Logger) *MultiEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiEmitter{
		emitters: emitters,
		logger:   logger,
	}
}

func (m *MultiEmitter) Emit(event *Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}

// Close closes every backend and joins their errors.
func (m *MultiEmitter) Close() error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			m.logger.Warn("Failed to close audit emitter", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the emitters enabled in cfg: the rotated file, the service
// log, both behind a MultiEmitter, or a NoopEmitter when neither is on.
func New(cfg configtypes.AuditConfig, logger *zap.Logger) (Emitter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var emitters []Emitter
	if cfg.Enabled {
		fileEmitter, err := NewFileEmitter(cfg, logger)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, fileEmitter)
	}
	if cfg.Log {
		emitters = append(emitters, NewLogEmitter(logger))
	}

	switch len(emitters) {
	case 0:
		return &NoopEmitter{}, nil
	case 1:
		return emitters[0], nil
	default:
		return NewMultiEmitter(emitters, logger), nil
	}
}
