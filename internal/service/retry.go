package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	ierr "github.com/flexprice/flexbill/internal/errors"
)

// maxConflictRetries bounds how often a mutation is replayed after losing an
// optimistic version check
const maxConflictRetries = 3

// retryOnConflict runs fn again while it fails with ErrVersionConflict.
// fn must reload the records it mutates on every call.
func (p ServiceParams) retryOnConflict(ctx context.Context, operation string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if ierr.IsVersionConflict(err) {
			p.Logger.Warnw("version conflict, retrying",
				"operation", operation,
				"attempt", attempt,
				"error", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxConflictRetries), ctx))

	return err
}
