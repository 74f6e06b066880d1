package dto

// MRRResponse is the normalized monthly value of live subscriptions per currency
type MRRResponse struct {
	Currencies []CurrencyMRR `json:"currencies"`
	// ActiveSubscriptions counts subscriptions included in the totals
	ActiveSubscriptions int `json:"active_subscriptions"`
}

type CurrencyMRR struct {
	Currency string `json:"currency"`
	// Amount is in minor units of Currency
	Amount        int64  `json:"amount"`
	DisplayAmount string `json:"display_amount"`
	Subscriptions int    `json:"subscriptions"`
}
