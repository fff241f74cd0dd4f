package linksync

import (
	"errors"
	"log/slog"
)

// undoStack accumulates rollback closures that run in reverse order
// when a multi-step operation fails partway through.
type undoStack []func() error

func (u *undoStack) push(fn func() error) {
	*u = append(*u, fn)
}

// rollback runs every closure in reverse order, logging and collecting
// failures. Returns nil if every closure succeeds.
func (u undoStack) rollback(logger *slog.Logger) error {
	var errs []error
	for i := len(u) - 1; i >= 0; i-- {
		if err := u[i](); err != nil {
			logger.Error("rollback step failed", "step", i, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
