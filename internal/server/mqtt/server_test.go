package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	pkgmqtt "github.com/autopeer-io/mfrhal/pkg/mqtt"
	"github.com/autopeer-io/mfrhal/pkg/mqtt/topic"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type message struct {
	topic   string
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu        sync.Mutex
	msgs      []message
	handlers  map[string]pkgmqtt.MessageHandler
	connected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]pkgmqtt.MessageHandler{}}
}

func (c *fakeClient) Start(context.Context) error { return nil }

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *fakeClient) AwaitConnection(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	return nil
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(_ context.Context, topic string, _ int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, message{topic: topic, retain: retain, payload: payload})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, _ int, h pkgmqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = h
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *fakeClient) handler(topic string) pkgmqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

func (c *fakeClient) published(topic string) []message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []message
	for _, m := range c.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type okRunner struct{}

func (okRunner) Run(context.Context, string) (int, error) { return 0, nil }

func newDispatcher() *fwupgrade.Dispatcher {
	opts := options.NewUpgradeOptions()
	opts.FlashScript = "flash"
	opts.PrepareScript = ""
	return fwupgrade.NewDispatcher(opts, okRunner{})
}

func startServer(t *testing.T, srv *Server) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	return cancel, done
}

func TestServerHandlesUpgradeRequests(t *testing.T) {
	client := newFakeClient()
	topics := topic.NewTopicBuilder("rdk/v1")
	dispatcher := newDispatcher()
	tracker := fwupgrade.NewTracker(8)
	srv := NewServer(client, topics, "dev-1", dispatcher, tracker, true)

	cancel, done := startServer(t, srv)

	requestTopic := topics.OTARequest("dev-1")
	require.Eventually(t, func() bool { return client.handler(requestTopic) != nil }, 2*time.Second, 10*time.Millisecond)
	h := client.handler(requestTopic)

	h(context.Background(), requestTopic, []byte(`{"requestID":"r-1","name":"img.bin","path":"/tmp/fw"}`))
	h(context.Background(), requestTopic, []byte(`{"requestID":"r-2","name":"","path":"/tmp/fw"}`))
	h(context.Background(), requestTopic, []byte(`{"requestID":"r-3","name":"img.bin","path":"/tmp/fw","type":"tftp"}`))

	acks := client.published(topics.OTAAck("dev-1"))
	require.Len(t, acks, 3)

	var ack UpgradeAck
	require.NoError(t, json.Unmarshal(acks[0].payload, &ack))
	assert.Equal(t, "r-1", ack.RequestID)
	assert.Equal(t, mfr.NoError, ack.Error)
	require.NotEmpty(t, ack.TaskID)
	_, tracked := tracker.Get(ack.TaskID)
	assert.True(t, tracked)

	require.NoError(t, json.Unmarshal(acks[1].payload, &ack))
	assert.Equal(t, "r-2", ack.RequestID)
	assert.Equal(t, mfr.InvalidParam, ack.Error)

	ack = UpgradeAck{}
	require.NoError(t, json.Unmarshal(acks[2].payload, &ack))
	assert.Equal(t, mfr.InvalidParam, ack.Error)
	assert.Empty(t, ack.TaskID)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, dispatcher.Shutdown(context.Background()))

	online := client.published(topics.Online("dev-1"))
	require.Len(t, online, 2)
	var first, last OnlineMessage
	require.NoError(t, json.Unmarshal(online[0].payload, &first))
	require.NoError(t, json.Unmarshal(online[1].payload, &last))
	assert.True(t, first.Online)
	assert.False(t, last.Online)
	assert.True(t, online[0].retain)
}

func TestServerWithoutRequests(t *testing.T) {
	client := newFakeClient()
	topics := topic.NewTopicBuilder("rdk/v1")
	srv := NewServer(client, topics, "dev-1", newDispatcher(), nil, false)

	cancel, done := startServer(t, srv)
	require.Eventually(t, func() bool { return len(client.published(topics.Online("dev-1"))) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Nil(t, client.handler(topics.OTARequest("dev-1")))
}

func TestOfflinePayload(t *testing.T) {
	var msg OnlineMessage
	require.NoError(t, json.Unmarshal(OfflinePayload(), &msg))
	assert.False(t, msg.Online)
}

type fakeStore struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeStore) Fetch(_ context.Context, key string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.err != nil {
		return "", "", f.err
	}
	return "/var/lib/mfr/images", "img.bin", nil
}

func decodeAcks(t *testing.T, msgs []message) []UpgradeAck {
	t.Helper()
	acks := make([]UpgradeAck, len(msgs))
	for i, m := range msgs {
		require.NoError(t, json.Unmarshal(m.payload, &acks[i]))
	}
	return acks
}

func TestServerFetchesObjects(t *testing.T) {
	client := newFakeClient()
	topics := topic.NewTopicBuilder("rdk/v1")
	dispatcher := newDispatcher()
	store := &fakeStore{}
	srv := NewServer(client, topics, "dev-1", dispatcher, nil, true).WithImageStore(store)

	cancel, done := startServer(t, srv)
	requestTopic := topics.OTARequest("dev-1")
	require.Eventually(t, func() bool { return client.handler(requestTopic) != nil }, 2*time.Second, 10*time.Millisecond)

	h := client.handler(requestTopic)
	h(context.Background(), requestTopic, []byte(`{"requestID":"r-1","object":"releases/img.bin","type":"cdl"}`))

	ackTopic := topics.OTAAck("dev-1")
	require.Eventually(t, func() bool { return len(client.published(ackTopic)) == 1 }, 2*time.Second, 10*time.Millisecond)
	ack := decodeAcks(t, client.published(ackTopic))[0]
	assert.Equal(t, mfr.NoError, ack.Error)
	assert.NotEmpty(t, ack.TaskID)
	assert.Equal(t, []string{"releases/img.bin"}, store.keys)

	task := dispatcher.Latest()
	require.NotNil(t, task)
	assert.Equal(t, "img.bin", task.Image())
	assert.Equal(t, "/var/lib/mfr/images", task.Path())

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, dispatcher.Shutdown(context.Background()))
}

func TestServerObjectRejected(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
		want  mfr.ErrorKind
	}{
		{name: "no store", want: mfr.InvalidParam},
		{name: "fetch fails", store: &fakeStore{err: fmt.Errorf("%w: %w", mfr.General, errors.New("no such key"))}, want: mfr.General},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeClient()
			topics := topic.NewTopicBuilder("rdk/v1")
			srv := NewServer(client, topics, "dev-1", newDispatcher(), nil, true)
			if tt.store != nil {
				srv.WithImageStore(tt.store)
			}

			cancel, done := startServer(t, srv)
			requestTopic := topics.OTARequest("dev-1")
			require.Eventually(t, func() bool { return client.handler(requestTopic) != nil }, 2*time.Second, 10*time.Millisecond)
			client.handler(requestTopic)(context.Background(), requestTopic, []byte(`{"requestID":"r-1","object":"releases/img.bin"}`))

			ackTopic := topics.OTAAck("dev-1")
			require.Eventually(t, func() bool { return len(client.published(ackTopic)) == 1 }, 2*time.Second, 10*time.Millisecond)
			ack := decodeAcks(t, client.published(ackTopic))[0]
			assert.Equal(t, tt.want, ack.Error)
			assert.Empty(t, ack.TaskID)

			cancel()
			require.NoError(t, <-done)
		})
	}
}
