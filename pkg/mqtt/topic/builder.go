package topic

import (
	"fmt"

	"github.com/autopeer-io/mfrhal/internal/pkg/mqtt/paths"
)

// TopicBuilder encapsulates the logic for constructing MQTT topic strings.
// It keeps the device and the management plane agreeing on topic names.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g., "rdk/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: root}
}

// OTARequest returns the topic a device listens on for upgrade requests.
// Direction: Cloud -> Device
func (b *TopicBuilder) OTARequest(deviceID string) string {
	return b.build(paths.OTARequest, deviceID)
}

// OTAAck returns the topic a device answers upgrade requests on.
// Direction: Device -> Cloud
func (b *TopicBuilder) OTAAck(deviceID string) string {
	return b.build(paths.OTAAck, deviceID)
}

// OTAAckWildcard matches the acknowledgements of every device.
// Result: {root}/ota/ack/+
func (b *TopicBuilder) OTAAckWildcard() string {
	return b.build(paths.OTAAck, Wildcard)
}

// OTAProgress returns the topic a device reports upgrade progress on.
// Direction: Device -> Cloud
func (b *TopicBuilder) OTAProgress(deviceID string) string {
	return b.build(paths.OTAProgress, deviceID)
}

// OTAProgressWildcard matches the progress reports of every device.
// Result: {root}/ota/progress/+
func (b *TopicBuilder) OTAProgressWildcard() string {
	return b.build(paths.OTAProgress, Wildcard)
}

// Online returns the topic carrying a device's liveness.
// Direction: Device -> Cloud
func (b *TopicBuilder) Online(deviceID string) string {
	return b.build(paths.Online, deviceID)
}

// build is a private helper to construct the final topic string.
// Pattern: {root}/{suffix}/{identifier}
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
