package mqtt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqtttopic "github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
)

func TestTopicsMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"rdk/v1/ota/request/dev-1", "rdk/v1/ota/request/dev-1", true},
		{"rdk/v1/ota/request/dev-1", "rdk/v1/ota/request/dev-2", false},
		{"rdk/v1/ota/progress/+", "rdk/v1/ota/progress/dev-2", true},
		{"rdk/v1/ota/progress/+", "rdk/v1/ota/progress/dev-2/extra", false},
		{"rdk/v1/#", "rdk/v1/ota/ack/dev-1", true},
		{"rdk/v1/+/ack/+", "rdk/v1/ota/ack/dev-1", true},
		{"rdk/v1/ota/+", "rdk/v1/ota", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, topicsMatch(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestTopicFilterStripsSharedPrefix(t *testing.T) {
	assert.Equal(t, "rdk/v1/ota/ack/+", topicFilter("$share/mgmt/rdk/v1/ota/ack/+"))
	assert.Equal(t, "rdk/v1/ota/ack/+", topicFilter("rdk/v1/ota/ack/+"))
	assert.Equal(t, "$share/mgmt", topicFilter("$share/mgmt"))
}

func TestTopicsMatchBuiltFilters(t *testing.T) {
	topics := mqtttopic.NewTopicBuilder("rdk/v1")

	anyDevice := topics.OTAProgressWildcard()
	assert.True(t, topicsMatch(anyDevice, topics.OTAProgress("dev-1")))
	assert.False(t, topicsMatch(anyDevice, topics.OTAAck("dev-1")))

	everything := "rdk/v1" + mqtttopic.Separator + mqtttopic.MultiWildcard
	assert.True(t, topicsMatch(everything, topics.Online("dev-1")))
	assert.True(t, topicsMatch(topicFilter(mqtttopic.SharedPrefix+"mgmt/"+anyDevice), topics.OTAProgress("dev-2")))
}

func TestNewClientValidates(t *testing.T) {
	_, err := NewClient(nil)
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{})
	assert.Error(t, err)

	_, err = NewClient(&ClientConfig{BrokerURL: "localhost"})
	assert.Error(t, err, "scheme and host are required")

	_, err = NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883", WillTopic: "x", WillQoS: 3})
	assert.Error(t, err)

	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883"})
	require.NoError(t, err)
	pc := c.(*pahoClient)
	assert.EqualValues(t, 60, pc.cfg.KeepAlive)
	assert.NotZero(t, pc.cfg.ConnectTimeout)
	assert.False(t, c.IsConnected())
}

func TestClientRequiresStart(t *testing.T) {
	c, err := NewClient(&ClientConfig{BrokerURL: "tcp://localhost:1883"})
	require.NoError(t, err)

	ctx := context.Background()
	assert.Error(t, c.Publish(ctx, "t", 1, false, nil))
	assert.Error(t, c.Subscribe(ctx, "t", 1, func(context.Context, string, []byte) {}))
	assert.Error(t, c.Unsubscribe(ctx, "t"))
	assert.Error(t, c.AwaitConnection(ctx))
	c.Disconnect(ctx)
}

func TestWillMessage(t *testing.T) {
	c := &pahoClient{cfg: &ClientConfig{}}
	assert.Nil(t, c.willMessage())

	c.cfg.WillTopic = "rdk/v1/online/dev-1"
	c.cfg.WillPayload = []byte(`{"online":false}`)
	c.cfg.WillQoS = 1
	c.cfg.WillRetain = true

	w := c.willMessage()
	require.NotNil(t, w)
	assert.Equal(t, "rdk/v1/online/dev-1", w.Topic)
	assert.Equal(t, []byte(`{"online":false}`), w.Payload)
	assert.EqualValues(t, 1, w.QoS)
	assert.True(t, w.Retain)
}
