package realtime

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"reliefdesk/internal/domain/notification"
)

const publishTimeout = 5 * time.Second

// Dispatcher turns committed notifications and read-state changes into
// events on the broker. Failures are logged; the write already happened.
type Dispatcher struct {
	broker Broker
	log    logrus.FieldLogger
}

func NewDispatcher(broker Broker, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{broker: broker, log: log}
}

var _ notification.Pusher = (*Dispatcher)(nil)

// publishContext outlives the request that committed the write.
func publishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

func (d *Dispatcher) PushNotification(ctx context.Context, recipients []int64, item notification.Item) {
	ctx, cancel := publishContext(ctx)
	defer cancel()
	if err := d.broker.Publish(ctx, recipients, NewNotificationEvent(item)); err != nil {
		d.log.WithError(err).WithFields(logrus.Fields{
			"notification_id": item.ID,
			"recipients":      len(recipients),
		}).Warn("push notification failed")
	}
}

func (d *Dispatcher) PushReadState(ctx context.Context, userID int64, st notification.ReadState) {
	ctx, cancel := publishContext(ctx)
	defer cancel()
	if err := d.broker.Publish(ctx, []int64{userID}, NewReadStateEvent(st)); err != nil {
		d.log.WithError(err).WithField("user_id", userID).Warn("push read state failed")
	}
}
