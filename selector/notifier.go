package selector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned when posting to a closed Notifier.
var ErrClosed = errors.New("notifier closed")

// Notifier hands closures from other goroutines to the goroutine that
// runs the Selector. Post queues a closure and signals an eventfd; the
// queue is run by ReadData once the Selector sees the eventfd readable.
type Notifier struct {
	fd int

	mu     sync.Mutex
	queue  []func(context.Context)
	closed bool
	// done is closed by Close so waiting callers see ErrClosed.
	done chan struct{}
}

var _ Selectable = (*Notifier)(nil)

// NewNotifier creates a Notifier backed by a non-blocking eventfd.
func NewNotifier() (*Notifier, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Notifier{fd: fd, done: make(chan struct{})}, nil
}

// Post queues fn to run on the Selector goroutine.
func (n *Notifier) Post(fn func(context.Context)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	n.queue = append(n.queue, fn)

	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	if _, err := unix.Write(n.fd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("signal eventfd: %w", err)
	}
	return nil
}

func (n *Notifier) FD() int { return n.fd }

// ReadData resets the eventfd counter and runs every queued closure in
// posting order.
func (n *Notifier) ReadData(ctx context.Context) error {
	var buf [8]byte
	if _, err := unix.Read(n.fd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("read eventfd: %w", err)
	}

	n.mu.Lock()
	queue := n.queue
	n.queue = nil
	n.mu.Unlock()

	for _, fn := range queue {
		fn(ctx)
	}
	return nil
}

// Close stops accepting closures and releases the eventfd. Closures
// still queued are dropped and their Calls return ErrClosed.
func (n *Notifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	n.queue = nil
	close(n.done)
	return unix.Close(n.fd)
}

// Call runs fn on the Selector goroutine and waits for its result, for
// ctx to end or for the Notifier to close.
func Call[T any](ctx context.Context, n *Notifier, fn func(context.Context) T) (T, error) {
	var zero T
	done := make(chan T, 1)
	if err := n.Post(func(loopCtx context.Context) { done <- fn(loopCtx) }); err != nil {
		return zero, err
	}
	select {
	case v := <-done:
		return v, nil
	case <-n.done:
		select {
		case v := <-done:
			return v, nil
		default:
			return zero, ErrClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
