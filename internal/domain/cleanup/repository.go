package cleanup

import (
	"context"
	"time"
)

// Repository removes terminal subscriptions together with every record that depends on them
type Repository interface {
	// PruneSubscriptions hard deletes up to limit cancelled or expired
	// subscriptions last updated before cutoff and returns how many were removed.
	PruneSubscriptions(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
