package config

import "time"

// Webhook represents the configuration for outgoing client webhook delivery
type Webhook struct {
	Topic       string          `mapstructure:"topic" validate:"required"`
	Timeout     time.Duration   `mapstructure:"timeout" validate:"required"`
	MaxAttempts int             `mapstructure:"max_attempts" validate:"min=1"`
	RetryDelays []time.Duration `mapstructure:"retry_delays"`
	// RateLimit caps outgoing deliveries per second per process
	RateLimit float64 `mapstructure:"rate_limit" validate:"min=0"`
}

func DefaultWebhookConfig() Webhook {
	return Webhook{
		Topic:       "webhook.deliveries",
		Timeout:     10 * time.Second,
		MaxAttempts: 4,
		RetryDelays: []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
		RateLimit:   50,
	}
}

// RetryDelay returns the wait after the given 1-based failed attempt, and
// false once no further attempts remain.
func (w Webhook) RetryDelay(attempt int) (time.Duration, bool) {
	if attempt >= w.MaxAttempts || attempt < 1 {
		return 0, false
	}
	if len(w.RetryDelays) == 0 {
		return 0, false
	}
	idx := attempt - 1
	if idx >= len(w.RetryDelays) {
		idx = len(w.RetryDelays) - 1
	}
	return w.RetryDelays[idx], true
}
