package types

// Scheduled job names, also the keys of the scheduler config and the cron endpoints
const (
	JobTrialExpiration    = "trial_expiration"
	JobRenewalDue         = "renewal_due"
	JobPaymentRetry       = "payment_retry"
	JobPendingTransaction = "pending_transactions"
	JobGracePeriodExpiry  = "grace_period_expiry"
	JobScheduledCancel    = "scheduled_cancel"
	JobPendingInvoices    = "pending_invoices"
	JobDeliveryRetry      = "delivery_retry"
	JobPrune              = "prune"
)

// JobNames lists every scheduled job in the order a full run executes them
var JobNames = []string{
	JobTrialExpiration,
	JobRenewalDue,
	JobScheduledCancel,
	JobPendingInvoices,
	JobPaymentRetry,
	JobPendingTransaction,
	JobGracePeriodExpiry,
	JobDeliveryRetry,
	JobPrune,
}
