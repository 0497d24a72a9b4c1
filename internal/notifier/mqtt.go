// Package notifier forwards upgrade progress to the management plane.
package notifier

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/log"
	pkgmqtt "github.com/autopeer-io/mfrhal/pkg/mqtt"
	"github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
)

const (
	progressQoS    = 1
	publishTimeout = 10 * time.Second
	queueSize      = 64
)

// ProgressMessage is the payload published on {root}/ota/progress/{deviceID}.
type ProgressMessage struct {
	DeviceID string `json:"deviceID"`
	fwupgrade.Event
}

// MQTTNotifier is a fwupgrade.Sink publishing every status to MQTT. Events
// are queued so the upgrade worker never waits for the broker.
type MQTTNotifier struct {
	client   pkgmqtt.Publisher
	topic    string
	deviceID string
	queue    chan fwupgrade.Event
	stopped  atomic.Bool
	log      log.Logger
}

var _ fwupgrade.Sink = (*MQTTNotifier)(nil)

// NewMQTTNotifier creates a notifier for deviceID. The client is shared and
// started elsewhere. It must stay connected until Start has returned.
func NewMQTTNotifier(client pkgmqtt.Publisher, topics *topic.TopicBuilder, deviceID string) *MQTTNotifier {
	return &MQTTNotifier{
		client:   client,
		topic:    topics.OTAProgress(deviceID),
		deviceID: deviceID,
		queue:    make(chan fwupgrade.Event, queueSize),
		log:      log.WithName("mqtt-notifier"),
	}
}

// Publish queues ev. When the queue is full or the notifier has stopped the
// event is dropped.
func (n *MQTTNotifier) Publish(ev fwupgrade.Event) {
	if n.stopped.Load() {
		n.log.Warn("Notifier stopped, dropping event", "task", ev.TaskID, "status", ev.Status)
		return
	}
	select {
	case n.queue <- ev:
	default:
		n.log.Warn("Progress queue full, dropping event", "task", ev.TaskID, "status", ev.Status)
	}
}

// Start publishes queued events until ctx is done, then flushes what is
// left in the queue. Cancel ctx only once no upgrade can report anymore.
func (n *MQTTNotifier) Start(ctx context.Context) error {
	n.log.Info("Publishing upgrade progress", "topic", n.topic)
	for {
		select {
		case ev := <-n.queue:
			n.send(ctx, ev)
		case <-ctx.Done():
			n.stopped.Store(true)
			n.flush()
			return nil
		}
	}
}

func (n *MQTTNotifier) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	for {
		select {
		case ev := <-n.queue:
			n.send(ctx, ev)
		default:
			return
		}
	}
}

func (n *MQTTNotifier) send(ctx context.Context, ev fwupgrade.Event) {
	payload, err := json.Marshal(ProgressMessage{DeviceID: n.deviceID, Event: ev})
	if err != nil {
		n.log.Error(err, "Failed to encode progress", "task", ev.TaskID)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := n.client.Publish(pubCtx, n.topic, progressQoS, false, payload); err != nil {
		n.log.Error(err, "Failed to publish progress", "task", ev.TaskID, "status", ev.Status)
		return
	}
	n.log.Debug("Progress published", "task", ev.TaskID, "status", ev.Status)
}
