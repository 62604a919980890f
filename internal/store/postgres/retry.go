package postgres

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"
)

// isTransient reports whether err is worth retrying: lost connections,
// serialization failures and deadlocks, server shutdown and resource exhaustion.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func (s *PostgresJobStore) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil || !isTransient(err) {
			return err
		}

		attempt++
		if !s.retry.CanRetry(attempt) {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempt, err)
		}
		delay := s.retry.CalculateDelay(attempt)
		s.logger.Warn("transient database error, retrying",
			"op", op, "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", op, err)
		case <-timer.C:
		}
	}
}
