// Package lock keeps a single teamsyncd writing to the state store.
//
// Two writers would race each other's member diffs and warm-restart
// views, so the daemon runs its whole event loop under an exclusive
// flock(2) on a file in the runtime directory. Possession of an Owner
// is proof that the lock is held; it can only be obtained through Run.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrHeld is returned by TryRun when another process owns the lock.
var ErrHeld = errors.New("lock held by another process")

// Owner represents the region in which the instance lock is held.
// The unexported marker keeps implementations inside this package.
type Owner interface {
	// Path returns the lock file path.
	Path() string
	// FD returns the lock file descriptor, for diagnostics.
	FD() int

	ownerMarker()
}

type owner struct {
	f *os.File
}

func (*owner) ownerMarker() {}

func (o *owner) Path() string { return o.f.Name() }
func (o *owner) FD() int      { return int(o.f.Fd()) }

// Run acquires the instance lock, waiting with exponential backoff
// until ctx is done, executes fn, then releases the lock.
func Run(ctx context.Context, path string, fn func(context.Context, Owner) error) error {
	f, err := acquire(ctx, path, true)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx, &owner{f: f})
}

// TryRun is Run without waiting: it returns ErrHeld immediately if the
// lock is taken.
func TryRun(ctx context.Context, path string, fn func(context.Context, Owner) error) error {
	f, err := acquire(ctx, path, false)
	if err != nil {
		return err
	}
	defer f.Close()

	return fn(ctx, &owner{f: f})
}

func acquire(ctx context.Context, path string, wait bool) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	backoff := 25 * time.Millisecond
	const maxBackoff = 500 * time.Millisecond

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			f.Close()
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		if !wait {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, ErrHeld)
		}

		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
