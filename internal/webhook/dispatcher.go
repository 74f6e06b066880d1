package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/flexbill/internal/config"
	"github.com/flexprice/flexbill/internal/domain/app"
	"github.com/flexprice/flexbill/internal/domain/webhookdelivery"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/httpclient"
	"github.com/flexprice/flexbill/internal/logger"
	"github.com/flexprice/flexbill/internal/metrics"
	"github.com/flexprice/flexbill/internal/pubsub"
	"github.com/flexprice/flexbill/internal/security"
	"github.com/flexprice/flexbill/internal/types"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

// EventPublisher is what mutating services need from the dispatcher.
// Enqueue runs inside the caller's transaction, Publish after it committed.
type EventPublisher interface {
	// Enqueue writes one delivery per subscribed client endpoint and returns their ids
	Enqueue(ctx context.Context, eventName string, data interface{}) ([]string, error)
	// Publish hands the deliveries to the consumer. Failures are logged only,
	// the retry sweep picks up anything that was not published.
	Publish(ctx context.Context, ids ...string)
}

// deliveryMessage is the body of a message on the delivery topic
type deliveryMessage struct {
	DeliveryID string `json:"delivery_id"`
	TenantID   string `json:"tenant_id"`
}

// Dispatcher queues outgoing billing events and delivers them to client endpoints
type Dispatcher struct {
	config            *config.Webhook
	appRepo           app.Repository
	deliveryRepo      webhookdelivery.Repository
	encryptionService security.EncryptionService
	publisher         pubsub.Publisher
	client            httpclient.Client
	limiter           *rate.Limiter
	metrics           *metrics.Metrics
	logger            *logger.Logger
	now               func() time.Time
}

var _ EventPublisher = (*Dispatcher)(nil)

func NewDispatcher(
	cfg *config.Configuration,
	appRepo app.Repository,
	deliveryRepo webhookdelivery.Repository,
	encryptionService security.EncryptionService,
	publisher pubsub.Publisher,
	client httpclient.Client,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) *Dispatcher {
	limit := rate.Inf
	burst := 1
	if cfg.Webhook.RateLimit > 0 {
		limit = rate.Limit(cfg.Webhook.RateLimit)
		burst = max(int(cfg.Webhook.RateLimit), 1)
	}

	return &Dispatcher{
		config:            &cfg.Webhook,
		appRepo:           appRepo,
		deliveryRepo:      deliveryRepo,
		encryptionService: encryptionService,
		publisher:         publisher,
		client:            client,
		limiter:           rate.NewLimiter(limit, burst),
		metrics:           metrics,
		logger:            logger,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used for scheduling retries
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dispatcher) Enqueue(ctx context.Context, eventName string, data interface{}) ([]string, error) {
	a, err := d.appRepo.Get(ctx)
	if err != nil {
		if ierr.IsNotFound(err) {
			d.logger.Debugw("no app settings, skipping webhook event",
				"tenant_id", types.GetTenantID(ctx),
				"event", eventName)
			return nil, nil
		}
		return nil, err
	}

	if !a.Subscribes(eventName) {
		d.logger.Debugw("app is not subscribed to event",
			"tenant_id", a.ID,
			"event", eventName)
		return nil, nil
	}

	now := d.now()
	body, err := BuildPayload(eventName, data, a.ID, now)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to build webhook payload").
			WithReportableDetails(map[string]any{"event": eventName}).
			Mark(ierr.ErrSystem)
	}

	delivery := &webhookdelivery.Delivery{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_DELIVERY),
		EventName:      eventName,
		Payload:        string(body),
		URL:            a.WebhookURL,
		DeliveryStatus: types.WebhookDeliveryStatusPending,
		NextRetryAt:    lo.ToPtr(now),
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if err := d.deliveryRepo.Create(ctx, delivery); err != nil {
		return nil, err
	}

	d.logger.Debugw("enqueued webhook delivery",
		"delivery_id", delivery.ID,
		"event", eventName,
		"tenant_id", a.ID)
	return []string{delivery.ID}, nil
}

func (d *Dispatcher) Publish(ctx context.Context, ids ...string) {
	tenantID := types.GetTenantID(ctx)
	for _, id := range ids {
		body, err := json.Marshal(deliveryMessage{DeliveryID: id, TenantID: tenantID})
		if err != nil {
			d.logger.Errorw("failed to marshal delivery message", "delivery_id", id, "error", err)
			continue
		}

		msg := message.NewMessage(watermill.NewUUID(), body)
		msg.Metadata.Set("tenant_id", tenantID)
		msg.Metadata.Set("delivery_id", id)

		if err := d.publisher.Publish(ctx, d.config.Topic, msg); err != nil {
			d.logger.Errorw("failed to publish webhook delivery, leaving it to the retry sweep",
				"delivery_id", id,
				"tenant_id", tenantID,
				"error", err)
		}
	}
}

// Deliver makes one attempt of a due pending delivery. Deliveries that are not
// due, already finished or claimed by another worker are skipped. A failed
// attempt is recorded on the delivery, only storage errors are returned.
func (d *Dispatcher) Deliver(ctx context.Context, id string) error {
	delivery, err := d.deliveryRepo.Get(ctx, id)
	if err != nil {
		if ierr.IsNotFound(err) {
			d.logger.Warnw("webhook delivery not found", "delivery_id", id)
			return nil
		}
		return err
	}

	now := d.now()
	if !delivery.IsDue(now) {
		d.logger.Debugw("webhook delivery not due, skipping",
			"delivery_id", id,
			"delivery_status", delivery.DeliveryStatus,
			"next_retry_at", delivery.NextRetryAt)
		return nil
	}

	claimed, err := d.deliveryRepo.ClaimAttempt(ctx, id, delivery.Attempts, now, d.leaseUntil(now, delivery.Attempts+1))
	if err != nil {
		return err
	}
	if !claimed {
		d.logger.Debugw("webhook delivery claimed by another worker", "delivery_id", id)
		return nil
	}
	delivery.Attempts++
	delivery.LastAttemptAt = lo.ToPtr(now)
	delivery.NextRetryAt = nil

	statusCode, sendErr := d.send(ctx, delivery)
	delivery.LastResponseCode = statusCode

	outcome := "success"
	if sendErr == nil {
		delivery.DeliveryStatus = types.WebhookDeliveryStatusSuccess
		delivery.LastError = ""
	} else {
		delivery.LastError = sendErr.Error()
		if delay, ok := d.config.RetryDelay(delivery.Attempts); ok {
			outcome = "retry"
			delivery.NextRetryAt = lo.ToPtr(now.Add(delay))
		} else {
			outcome = "failed"
			delivery.DeliveryStatus = types.WebhookDeliveryStatusFailed
		}
	}
	d.metrics.RecordDeliveryAttempt(delivery.EventName, outcome, d.now().Sub(now))

	if err := d.deliveryRepo.RecordResult(ctx, delivery); err != nil {
		return err
	}

	switch outcome {
	case "success":
		d.logger.Infow("webhook delivered",
			"delivery_id", id,
			"event", delivery.EventName,
			"attempt", delivery.Attempts,
			"status_code", statusCode)
	case "retry":
		d.logger.Warnw("webhook delivery failed, retry scheduled",
			"delivery_id", id,
			"event", delivery.EventName,
			"attempt", delivery.Attempts,
			"status_code", statusCode,
			"next_retry_at", delivery.NextRetryAt,
			"error", sendErr)
	default:
		d.logger.Errorw("webhook delivery failed permanently",
			"delivery_id", id,
			"event", delivery.EventName,
			"attempts", delivery.Attempts,
			"status_code", statusCode,
			"error", sendErr)
	}
	return nil
}

// leaseUntil is when a claimed attempt whose result was never recorded becomes
// due again: the send timeout plus the delay that a failed attempt would get.
func (d *Dispatcher) leaseUntil(now time.Time, attempt int) time.Time {
	lease := now.Add(d.config.Timeout)
	if delay, ok := d.config.RetryDelay(attempt); ok {
		lease = lease.Add(delay)
	}
	return lease
}

// send POSTs the stored payload signed with the app's current secret
func (d *Dispatcher) send(ctx context.Context, delivery *webhookdelivery.Delivery) (int, error) {
	a, err := d.appRepo.Get(ctx)
	if err != nil {
		return 0, err
	}
	secret, err := d.encryptionService.Decrypt(a.WebhookSecret)
	if err != nil {
		return 0, err
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	body := []byte(delivery.Payload)
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	resp, err := d.client.Send(ctx, &httpclient.Request{
		Method: http.MethodPost,
		URL:    delivery.URL,
		Headers: map[string]string{
			"Content-Type":               "application/json",
			types.HeaderWebhookSignature: security.SignHMACSHA256(secret, body),
			types.HeaderWebhookEvent:     delivery.EventName,
			types.HeaderDeliveryAttempt:  strconv.Itoa(delivery.Attempts),
			types.HeaderDeliveryID:       delivery.ID,
		},
		Body: body,
	})
	if err != nil {
		if httpErr, ok := httpclient.IsHTTPError(err); ok {
			return httpErr.StatusCode, err
		}
		return 0, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, ierr.NewErrorf("endpoint responded with status %d", resp.StatusCode).
			Mark(ierr.ErrHTTPClient)
	}
	return resp.StatusCode, nil
}

// SweepDue republishes pending deliveries whose next attempt is due and
// returns how many were published
func (d *Dispatcher) SweepDue(ctx context.Context) (int, error) {
	due, err := d.deliveryRepo.List(ctx, &types.WebhookDeliveryFilter{
		QueryFilter: types.QueryFilter{Limit: types.MaxFilterLimit},
		Statuses:    []types.WebhookDeliveryStatus{types.WebhookDeliveryStatusPending},
		DueBefore:   lo.ToPtr(d.now()),
	})
	if err != nil {
		return 0, err
	}

	ids := lo.Map(due, func(del *webhookdelivery.Delivery, _ int) string { return del.ID })
	d.Publish(ctx, ids...)
	return len(ids), nil
}

// Requeue resets a permanently failed delivery and publishes it again
func (d *Dispatcher) Requeue(ctx context.Context, id string) (*webhookdelivery.Delivery, error) {
	delivery, err := d.deliveryRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if delivery.DeliveryStatus != types.WebhookDeliveryStatusFailed {
		return nil, ierr.NewError("only failed deliveries can be retried").
			WithHintf("Delivery is %s", delivery.DeliveryStatus).
			WithReportableDetails(map[string]any{
				"delivery_id":     id,
				"delivery_status": delivery.DeliveryStatus,
			}).
			Mark(ierr.ErrInvalidOperation)
	}

	if err := d.deliveryRepo.Requeue(ctx, id, d.now()); err != nil {
		return nil, err
	}
	d.Publish(ctx, id)

	return d.deliveryRepo.Get(ctx, id)
}

// List returns the tenant's deliveries matching filter
func (d *Dispatcher) List(ctx context.Context, filter *types.WebhookDeliveryFilter) ([]*webhookdelivery.Delivery, error) {
	return d.deliveryRepo.List(ctx, filter)
}
