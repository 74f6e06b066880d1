package usage

import (
	"time"

	"github.com/flexprice/flexbill/internal/types"
)

// Event is an immutable metered usage record
type Event struct {
	ID string `db:"id" json:"id"`

	// EventID is the caller supplied identifier used for dedup
	EventID        string    `db:"event_id" json:"event_id"`
	SubscriptionID string    `db:"subscription_id" json:"subscription_id"`
	CustomerID     string    `db:"customer_id" json:"customer_id"`
	Metric         string    `db:"metric" json:"metric"`
	Quantity       int64     `db:"quantity" json:"quantity"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`

	types.BaseModel
}
