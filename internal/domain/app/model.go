package app

import (
	"time"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

// App is a client application using the billing engine. Its ID is the tenant id
// every other record is scoped by.
type App struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`

	// GracePeriodDays is added to a period end to compute an invoice due date
	GracePeriodDays int `db:"grace_period_days" json:"grace_period_days"`

	// WebhookURL receives outgoing billing events, empty disables delivery
	WebhookURL string `db:"webhook_url" json:"webhook_url"`

	// WebhookSecret signs outgoing payloads. Stored encrypted.
	WebhookSecret string `db:"webhook_secret" json:"-"`

	// WebhookEvents restricts delivery to these event names, empty means all
	WebhookEvents pq.StringArray `db:"webhook_events" json:"webhook_events"`

	types.BaseModel
}

// Subscribes reports whether the app wants deliveries for eventName
func (a *App) Subscribes(eventName string) bool {
	if a.WebhookURL == "" {
		return false
	}
	if len(a.WebhookEvents) == 0 {
		return true
	}
	return lo.Contains([]string(a.WebhookEvents), eventName)
}

// DueDate returns periodEnd plus the app's grace period
func (a *App) DueDate(periodEnd time.Time) time.Time {
	return periodEnd.AddDate(0, 0, a.GracePeriodDays)
}

func ValidateGracePeriod(days int) error {
	if days < types.MinGracePeriodDays || days > types.MaxGracePeriodDays {
		return ierr.NewError("grace period out of range").
			WithHintf("Grace period must be between %d and %d days", types.MinGracePeriodDays, types.MaxGracePeriodDays).
			WithReportableDetails(map[string]any{
				"grace_period_days": days,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
