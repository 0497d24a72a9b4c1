package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicBuilder(t *testing.T) {
	b := NewTopicBuilder("rdk/v1")

	assert.Equal(t, "rdk/v1/ota/request/dev-1", b.OTARequest("dev-1"))
	assert.Equal(t, "rdk/v1/ota/ack/dev-1", b.OTAAck("dev-1"))
	assert.Equal(t, "rdk/v1/ota/ack/+", b.OTAAckWildcard())
	assert.Equal(t, "rdk/v1/ota/progress/dev-1", b.OTAProgress("dev-1"))
	assert.Equal(t, "rdk/v1/ota/progress/+", b.OTAProgressWildcard())
	assert.Equal(t, "rdk/v1/online/dev-1", b.Online("dev-1"))
}
