package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
)

func TestEvent_Line(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name: "all fields",
			event: Event{
				Time: ts, Action: ActionBlock, Domain: "example.com",
				Result: ResultAdded, RequestID: "abc", ClientIP: "10.0.0.1",
			},
			want: "2026-03-01T11:00:00Z\tblock\texample.com\tadded\tabc\t10.0.0.1",
		},
		{
			name:  "empty fields",
			event: Event{Time: ts, Action: ActionUnblock, Domain: "example.com", Result: ResultAbsent},
			want:  "2026-03-01T11:00:00Z\tunblock\texample.com\tabsent\t-\t-",
		},
		{
			name:  "control characters",
			event: Event{Time: ts, Action: ActionBlock, Domain: "a\tb\nc", Result: ResultError, RequestID: "r\r1"},
			want:  "2026-03-01T11:00:00Z\tblock\ta b c\terror\tr 1\t-",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.Line())
		})
	}
}

func TestFileEmitter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.log")

	emitter, err := NewFileEmitter(configtypes.AuditConfig{Enabled: true, Path: path}, zap.NewNop())
	require.NoError(t, err)

	emitter.Emit(&Event{Time: time.Now(), Action: ActionBlock, Domain: "a.com", Result: ResultAdded})
	emitter.Emit(&Event{Time: time.Now(), Action: ActionUnblock, Domain: "a.com", Result: ResultRemoved})
	require.NoError(t, emitter.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "\tblock\ta.com\tadded\t")
	assert.Contains(t, lines[1], "\tunblock\ta.com\tremoved\t")
}

func TestFileEmitter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	emitter, err := NewFileEmitter(configtypes.AuditConfig{Path: path}, zap.NewNop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitter.Emit(&Event{Time: time.Now(), Action: ActionBlock, Domain: "x.com", Result: ResultExists})
		}()
	}
	wg.Wait()
	require.NoError(t, emitter.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50, strings.Count(string(data), "\n"))
}

func TestNewFileEmitter_Errors(t *testing.T) {
	_, err := NewFileEmitter(configtypes.AuditConfig{}, zap.NewNop())
	assert.ErrorContains(t, err, "path is required")

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err = NewFileEmitter(configtypes.AuditConfig{Path: filepath.Join(blocker, "sub", "audit.log")}, zap.NewNop())
	assert.ErrorContains(t, err, "failed to create audit directory")
}

type recordingEmitter struct {
	events   []*Event
	closeErr error
}

func (r *recordingEmitter) Emit(event *Event) { r.events = append(r.events, event) }
func (r *recordingEmitter) Close() error      { return r.closeErr }

func TestMultiEmitter(t *testing.T) {
	a := &recordingEmitter{}
	b := &recordingEmitter{closeErr: errors.New("b failed")}
	c := &recordingEmitter{closeErr: errors.New("c failed")}

	m := NewMultiEmitter([]Emitter{a, b, c, &NoopEmitter{}}, zap.NewNop())
	ev := &Event{Action: ActionBlock, Domain: "a.com"}
	m.Emit(ev)

	assert.Equal(t, []*Event{ev}, a.events)
	assert.Equal(t, []*Event{ev}, c.events)

	err := m.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b failed")
	assert.Contains(t, err.Error(), "c failed")
}

func TestLogEmitter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := NewLogEmitter(zap.New(core))

	e.Emit(&Event{
		Time:      time.Now(),
		Action:    ActionBlock,
		Domain:    "evil.com",
		Result:    ResultAdded,
		RequestID: "req-1",
		ClientIP:  "10.0.0.1",
	})
	require.NoError(t, e.Close())

	entries := logs.FilterMessage("Audit event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "audit", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "block", fields["action"])
	assert.Equal(t, "evil.com", fields["domain"])
	assert.Equal(t, "added", fields["result"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "10.0.0.1", fields["client_ip"])
}

func TestNew(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	tests := []struct {
		name string
		cfg  configtypes.AuditConfig
		want interface{}
	}{
		{"nothing enabled", configtypes.AuditConfig{}, &NoopEmitter{}},
		{"file only", configtypes.AuditConfig{Enabled: true, Path: path}, &FileEmitter{}},
		{"log only", configtypes.AuditConfig{Log: true}, &LogEmitter{}},
		{"file and log", configtypes.AuditConfig{Enabled: true, Path: path, Log: true}, &MultiEmitter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg, zap.NewNop())
			require.NoError(t, err)
			defer e.Close()
			assert.IsType(t, tt.want, e)
		})
	}

	_, err := New(configtypes.AuditConfig{Enabled: true}, zap.NewNop())
	assert.ErrorContains(t, err, "audit log path is required")
}

func TestNew_FileAndLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	core, logs := observer.New(zapcore.InfoLevel)

	e, err := New(configtypes.AuditConfig{Enabled: true, Path: path, Log: true}, zap.New(core))
	require.NoError(t, err)

	e.Emit(&Event{Time: time.Now(), Action: ActionUnblock, Domain: "a.com", Result: ResultRemoved})
	require.NoError(t, e.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\tunblock\ta.com\tremoved\t")
	assert.Equal(t, 1, logs.FilterMessage("Audit event").Len())
}
