package webhook

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	ierr "github.com/flexprice/flexbill/internal/errors"
	"github.com/flexprice/flexbill/internal/pubsub"
	"github.com/flexprice/flexbill/internal/pubsub/router"
	"github.com/flexprice/flexbill/internal/types"
)

// RegisterHandler subscribes the dispatcher to the delivery topic
func (d *Dispatcher) RegisterHandler(r *router.Router, subscriber pubsub.Subscriber) {
	r.AddNoPublishHandler(
		"webhook_delivery_handler",
		d.config.Topic,
		subscriber,
		d.processMessage,
	)
	d.logger.Infow("registered webhook delivery handler", "topic", d.config.Topic)
}

func (d *Dispatcher) processMessage(msg *message.Message) error {
	var dm deliveryMessage
	if err := json.Unmarshal(msg.Payload, &dm); err != nil {
		// malformed messages are never redelivered
		d.logger.Errorw("failed to unmarshal delivery message",
			"error", err,
			"message_uuid", msg.UUID)
		return nil
	}

	tenantID := dm.TenantID
	if tenantID == "" {
		tenantID = msg.Metadata.Get("tenant_id")
	}
	if dm.DeliveryID == "" || tenantID == "" {
		d.logger.Errorw("delivery message missing ids",
			"message_uuid", msg.UUID,
			"delivery_id", dm.DeliveryID,
			"tenant_id", tenantID)
		return nil
	}

	ctx := types.SetTenantID(msg.Context(), tenantID)

	if err := d.Deliver(ctx, dm.DeliveryID); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to process webhook delivery").
			WithReportableDetails(map[string]any{
				"delivery_id": dm.DeliveryID,
				"tenant_id":   tenantID,
			}).
			Mark(ierr.ErrSystem)
	}
	return nil
}
