package mqtt

import (
	"context"
)

// MessageHandler processes a message received on a subscribed topic.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Publisher sends device messages: progress, acks and presence.
type Publisher interface {
	// Publish blocks until the broker acknowledged a QoS 1/2 message or ctx
	// is done.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// Client is the device's single broker connection. The Will message from
// ClientConfig is registered on every (re)connect.
type Client interface {
	Publisher

	// Start launches the connection manager without waiting for the broker.
	Start(ctx context.Context) error

	// Disconnect closes the connection, no Will message is sent.
	Disconnect(ctx context.Context)

	// Subscribe routes messages matching topic to handler. Subscriptions
	// survive reconnects.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	Unsubscribe(ctx context.Context, topic string) error

	// AwaitConnection blocks until the first connection is up.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
