package types

// Outgoing event names delivered to client webhook endpoints
const (
	WebhookEventSubscriptionCreated      = "subscription.created"
	WebhookEventSubscriptionActivated    = "subscription.activated"
	WebhookEventSubscriptionRenewed      = "subscription.renewed"
	WebhookEventSubscriptionCancelled    = "subscription.cancelled"
	WebhookEventSubscriptionPastDue      = "subscription.past_due"
	WebhookEventSubscriptionPaused       = "subscription.paused"
	WebhookEventSubscriptionResumed      = "subscription.resumed"
	WebhookEventSubscriptionUpdated      = "subscription.updated"
	WebhookEventSubscriptionExpired      = "subscription.expired"
	WebhookEventSubscriptionTrialExpired = "subscription.trial_expired"

	WebhookEventInvoiceCreated = "invoice.created"
	WebhookEventInvoicePaid    = "invoice.paid"

	WebhookEventPaymentDue      = "payment.due"
	WebhookEventPaymentFailed   = "payment.failed"
	WebhookEventPaymentRefunded = "payment.refunded"

	WebhookEventCustomerCreated = "customer.created"
	WebhookEventCustomerUpdated = "customer.updated"
	WebhookEventCustomerDeleted = "customer.deleted"
)

// WebhookLogStatus tracks an inbound provider callback through reconciliation
type WebhookLogStatus string

const (
	WebhookLogStatusReceived   WebhookLogStatus = "received"
	WebhookLogStatusProcessing WebhookLogStatus = "processing"
	WebhookLogStatusProcessed  WebhookLogStatus = "processed"
	WebhookLogStatusFailed     WebhookLogStatus = "failed"
	WebhookLogStatusIgnored    WebhookLogStatus = "ignored"
)

// WebhookDeliveryStatus tracks an outgoing event delivery to a client endpoint
type WebhookDeliveryStatus string

const (
	WebhookDeliveryStatusPending WebhookDeliveryStatus = "pending"
	WebhookDeliveryStatusSuccess WebhookDeliveryStatus = "success"
	WebhookDeliveryStatusFailed  WebhookDeliveryStatus = "failed"
)

// Outgoing delivery headers
const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookEvent     = "X-Webhook-Event"
	HeaderDeliveryAttempt  = "X-Delivery-Attempt"
	HeaderDeliveryID       = "X-Delivery-Id"
)
