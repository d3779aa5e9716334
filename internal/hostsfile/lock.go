package hostsfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// lockRetryInterval is how often a contended flock is retried.
const lockRetryInterval = 10 * time.Millisecond

// LockedStore serializes every read-modify-write cycle on a Store.
// A one-slot semaphore covers goroutines in this process; when lockFile is
// set an exclusive flock on it also excludes other processes (e.g. hostsctl
// running next to the service). Waiting for either lock ends when the
// context is done.
type LockedStore struct {
	store    *Store
	lockFile string
	sem      chan struct{}
	logger   *zap.Logger
}

// NewLockedStore wraps store. An empty lockFile disables the cross-process lock.
func NewLockedStore(store *Store, lockFile string, logger *zap.Logger) *LockedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockedStore{
		store:    store,
		lockFile: lockFile,
		sem:      make(chan struct{}, 1),
		logger:   logger,
	}
}

// Store returns the wrapped store.
func (l *LockedStore) Store() *Store {
	return l.store
}

// List returns the blocked domains.
func (l *LockedStore) List(ctx context.Context) ([]string, error) {
	var domains []string
	err := l.withLock(ctx, func() error {
		var err error
		domains, err = l.store.List()
		return err
	})
	return domains, err
}

// Entries returns the raw entry lines.
func (l *LockedStore) Entries(ctx context.Context) ([]string, error) {
	var entries []string
	err := l.withLock(ctx, func() error {
		var err error
		entries, err = l.store.Entries()
		return err
	})
	return entries, err
}

// Add blocks domain. See Store.Add.
func (l *LockedStore) Add(ctx context.Context, domain string) (bool, error) {
	var added bool
	err := l.withLock(ctx, func() error {
		var err error
		added, err = l.store.Add(domain)
		return err
	})
	return added, err
}

// Remove unblocks domain. See Store.Remove.
func (l *LockedStore) Remove(ctx context.Context, domain string) (bool, error) {
	var removed bool
	err := l.withLock(ctx, func() error {
		var err error
		removed, err = l.store.Remove(domain)
		return err
	})
	return removed, err
}

// withLock runs fn inside the critical section. The context bounds the
// wait for the locks; fn itself is not interruptible.
func (l *LockedStore) withLock(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("waiting for hosts lock: %w", ctx.Err())
	}
	defer func() { <-l.sem }()

	if l.lockFile == "" {
		return fn()
	}

	f, err := os.OpenFile(l.lockFile, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", l.lockFile, err)
	}
	defer f.Close()

	if err := l.acquireFileLock(ctx, f); err != nil {
		return err
	}
	defer func() {
		if err := unlockFile(f); err != nil {
			l.logger.Warn("Failed to release hosts lock",
				zap.String("lock_file", l.lockFile),
				zap.Error(err))
		}
	}()

	return fn()
}

// acquireFileLock polls a non-blocking flock until it succeeds or ctx is done.
func (l *LockedStore) acquireFileLock(ctx context.Context, f *os.File) error {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for logged := false; ; {
		ok, err := tryLockFile(f)
		if err != nil {
			return fmt.Errorf("failed to lock %s: %w", l.lockFile, err)
		}
		if ok {
			return nil
		}

		if !logged {
			l.logger.Debug("Hosts lock held by another process, waiting",
				zap.String("lock_file", l.lockFile))
			logged = true
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", l.lockFile, ctx.Err())
		case <-ticker.C:
		}
	}
}
