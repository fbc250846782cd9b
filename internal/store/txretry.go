package store

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// MaxRetries bounds how many times WithRetry re-attempts a transaction
// after a transient sqlite busy/locked error.
const MaxRetries = 5

const retryBaseDelay = 20 * time.Millisecond

// WithRetry runs fn inside a transaction, retrying with bounded
// exponential back-off when sqlite reports a transient lock conflict
// (SQLITE_BUSY/SQLITE_LOCKED under WAL). Any other error — including a
// non-transient constraint violation — is returned immediately.
func (s *Store) WithRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		err := s.DB.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func isTransient(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
