package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// permanentError marks a failure that another attempt cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err} }

// retry runs fn up to attempts times. The wait starts at base, doubles after
// each failure and gets 0-50% random jitter. Permanent errors and context
// cancellation end the loop early.
func retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	wait := base
	for n := 1; ; n++ {
		if err = fn(); err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if n >= attempts || ctx.Err() != nil {
			return err
		}
		d := wait
		if wait > 1 {
			d += time.Duration(rand.Int63n(int64(wait / 2)))
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
		wait *= 2
	}
}
