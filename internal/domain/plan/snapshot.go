package plan

import (
	"database/sql/driver"
	"encoding/json"

	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/shopspring/decimal"
)

// Snapshot is the copy of a plan's pricing terms taken at subscribe time.
// Later edits to the plan never reach existing subscriptions.
type Snapshot struct {
	PlanID          string                `json:"plan_id"`
	Name            string                `json:"name"`
	PricingModel    types.PricingModel    `json:"pricing_model"`
	BaseAmount      int64                 `json:"base_amount"`
	Currency        string                `json:"currency"`
	BillingInterval types.BillingInterval `json:"billing_interval"`
	UsageMetric     string                `json:"usage_metric,omitempty"`
	UnitPrice       int64                 `json:"unit_price"`
	FreeUnits       int64                 `json:"free_units"`
	TrialDays       int                   `json:"trial_days"`
}

// MonthlyAmount is the monthly normalized fixed charge of the snapshot
func (s Snapshot) MonthlyAmount() decimal.Decimal {
	return MonthlyAmount(s.PricingModel, s.BaseAmount, s.BillingInterval)
}

// RequiresUpfrontPayment reports whether activation waits for a first payment
func (s Snapshot) RequiresUpfrontPayment() bool {
	return s.PricingModel.HasBase() && s.BaseAmount > 0
}

func (s Snapshot) IsOneTime() bool {
	return s.BillingInterval == types.BillingIntervalOneTime
}

// Value implements driver.Valuer, snapshots are stored as JSONB
func (s Snapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner
func (s *Snapshot) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ierr.NewError("unsupported plan snapshot type").
			WithReportableDetails(map[string]any{"type": v}).
			Mark(ierr.ErrDatabase)
	}
	return json.Unmarshal(data, s)
}
