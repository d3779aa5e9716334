//go:build unix

package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/edgecomet/siteguard/internal/common/configtypes"
	"github.com/edgecomet/siteguard/internal/hostsfile"
	"github.com/edgecomet/siteguard/internal/risk"
)

func TestAdd_HostsLockHeldElsewhere(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts")
	lockFile := filepath.Join(dir, "hosts.lock")
	original := "127.0.0.1\tlocalhost\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	holder, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	defer holder.Close()
	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_EX))

	store := hostsfile.NewLockedStore(
		hostsfile.NewStore(path, &hostsfile.OSPersister{Atomic: true}, zap.NewNop()),
		lockFile,
		zap.NewNop(),
	)
	assessor := risk.NewAssessor(risk.NewLogisticScorer(risk.DefaultModel()), nil, zap.NewNop())
	s := NewServer(store, assessor, nil, nil, nil,
		configtypes.ServerConfig{Timeout: configtypes.Duration(50 * time.Millisecond)}, zap.NewNop())

	ctx := do(s, "POST", "/api/add", `{"domain":"evil.com"}`)
	assert.Equal(t, 503, ctx.Response.StatusCode())
	assert.Equal(t, "Hosts file busy", errorMessage(t, ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}
