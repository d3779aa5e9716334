//go:build unix

package hostsfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// holdFlock takes the lock the way another process (hostsctl) would, through
// its own open file description.
func holdFlock(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	require.NoError(t, err)
	require.NoError(t, unix.Flock(int(f.Fd()), unix.LOCK_EX))
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestLockedStore_FlockHeldRespectsDeadline(t *testing.T) {
	store, path := newTestStore(t, baseHosts)
	lockFile := filepath.Join(t.TempDir(), "hosts.lock")
	locked := NewLockedStore(store, lockFile, nil)

	holder := holdFlock(t, lockFile)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := locked.Add(ctx, "a.com")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, baseHosts, readFile(t, path))

	require.NoError(t, unix.Flock(int(holder.Fd()), unix.LOCK_UN))

	added, err := locked.Add(context.Background(), "a.com")
	require.NoError(t, err)
	assert.True(t, added)
}

func TestLockedStore_WaitsForFlockRelease(t *testing.T) {
	store, _ := newTestStore(t, baseHosts)
	lockFile := filepath.Join(t.TempDir(), "hosts.lock")
	locked := NewLockedStore(store, lockFile, nil)

	holder := holdFlock(t, lockFile)
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = unix.Flock(int(holder.Fd()), unix.LOCK_UN)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	added, err := locked.Add(ctx, "a.com")
	require.NoError(t, err)
	assert.True(t, added)
}
