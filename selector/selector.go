// Package selector multiplexes pollable event sources on a single
// goroutine with epoll.
//
// Sources are registered by file descriptor. Select waits until at
// least one is readable or the timeout passes, then calls ReadData on
// each ready source in turn. Add and Remove must not be called from
// inside ReadData; callers stage such changes and apply them between
// Select calls.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// Selectable is an event source.
type Selectable interface {
	// FD returns the descriptor to poll for readability.
	FD() int
	// ReadData consumes whatever made the descriptor readable.
	ReadData(ctx context.Context) error
}

const maxEvents = 64

// Selector is an epoll set. It is not safe for concurrent use.
type Selector struct {
	epfd    int
	sources map[int]Selectable
	events  []unix.EpollEvent
	logger  *slog.Logger
}

// New creates an empty Selector.
func New(logger *slog.Logger) (*Selector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}
	return &Selector{
		epfd:    epfd,
		sources: make(map[int]Selectable),
		events:  make([]unix.EpollEvent, maxEvents),
		logger:  logger.With("component", "selector"),
	}, nil
}

// Add starts polling src.
func (s *Selector) Add(src Selectable) error {
	fd := src.FD()
	if fd < 0 {
		return fmt.Errorf("selectable has no descriptor")
	}
	if _, ok := s.sources[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll add fd %d: %w", fd, err)
	}
	s.sources[fd] = src
	return nil
}

// Remove stops polling src. Removing an unknown source is a no-op.
func (s *Selector) Remove(src Selectable) error {
	fd := src.FD()
	if cur, ok := s.sources[fd]; !ok || cur != src {
		return nil
	}
	delete(s.sources, fd)
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && !errors.Is(err, unix.EBADF) {
		return fmt.Errorf("epoll del fd %d: %w", fd, err)
	}
	return nil
}

// Len returns the number of registered sources.
func (s *Selector) Len() int {
	return len(s.sources)
}

// Select waits up to timeout and dispatches ready sources. It returns
// how many sources were dispatched. ReadData failures are logged and do
// not stop the dispatch of the remaining sources.
func (s *Selector) Select(ctx context.Context, timeout time.Duration) (int, error) {
	n, err := unix.EpollWait(s.epfd, s.events, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait: %w", err)
	}

	dispatched := 0
	for _, ev := range s.events[:n] {
		src, ok := s.sources[int(ev.Fd)]
		if !ok {
			continue
		}
		dispatched++
		if err := src.ReadData(ctx); err != nil {
			s.logger.Error("read failed", "fd", ev.Fd, "error", err)
		}
	}
	return dispatched, nil
}

// Close releases the epoll descriptor. Registered sources are not
// closed.
func (s *Selector) Close() error {
	s.sources = nil
	return unix.Close(s.epfd)
}
