package notify

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Insert(ctx context.Context, env NotificationEnvelope) error
}

// SMSPublisher hands a text message to the outbound SMS queue.
type SMSPublisher interface {
	Publish(ctx context.Context, phone, text string) error
}

// WebhookEnqueuer schedules webhook deliveries for an event.
type WebhookEnqueuer interface {
	EnqueueEvent(ctx context.Context, event string, owners []uuid.UUID, data map[string]any) error
}

// Dispatcher executes an envelope set. Notification writes happen before the
// caller gets its response; SMS and webhooks are queued and delivered by
// background workers. Delivery failures on any channel are logged, isolated
// per channel, and never surface to the business transition.
type Dispatcher struct {
	notifications NotificationStore
	sms           SMSPublisher
	webhooks      WebhookEnqueuer
	logger        *log.Logger
}

func NewDispatcher(notifications NotificationStore, sms SMSPublisher, webhooks WebhookEnqueuer, logger *log.Logger) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		sms:           sms,
		webhooks:      webhooks,
		logger:        logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, set EnvelopeSet) {
	for _, env := range set.Notifications {
		if err := d.notifications.Insert(ctx, env); err != nil {
			d.logger.Printf("notification write failed user=%s type=%s: %v", env.UserID, env.Type, err)
		}
	}

	for _, env := range set.SMS {
		if !env.SMSOptIn || env.Phone == "" {
			continue
		}
		if err := d.sms.Publish(ctx, env.Phone, env.Text); err != nil {
			d.logger.Printf("sms enqueue failed user=%s: %v", env.UserID, err)
		}
	}

	if set.WebhookEvent != "" {
		if err := d.webhooks.EnqueueEvent(ctx, set.WebhookEvent, set.WebhookOwners, set.WebhookData); err != nil {
			d.logger.Printf("webhook enqueue failed event=%s: %v", set.WebhookEvent, err)
		}
	}
}
