package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress("127.0.0.1:8086"))
	assert.NoError(t, ValidateAddress(":0"))
	assert.Error(t, ValidateAddress("localhost"))
	assert.Error(t, ValidateAddress("localhost:http"))
	assert.Error(t, ValidateAddress("localhost:70000"))
}

func TestDefaultsAreValid(t *testing.T) {
	groups := map[string]IOptions{
		"upgrade": NewUpgradeOptions(),
		"device":  &DeviceOptions{ID: "dev-1", SerializedDir: "/etc/mfr"},
		"http":    NewHttpOptions(),
		"mqtt":    NewMqttOptions(),
		"spool":   NewSpoolOptions(),
		"s3":      NewS3Options(),
	}
	for name, o := range groups {
		assert.Empty(t, o.Validate(), name)
	}
}

func TestUpgradeOptionsValidate(t *testing.T) {
	o := NewUpgradeOptions()
	o.FlashScript = ""
	o.Shell = ""
	o.MaxCommandLength = -1
	o.MaxInFlight = -1
	o.HistorySize = 0

	assert.Len(t, o.Validate(), 5)
}

func TestHttpOptionsDisabled(t *testing.T) {
	o := NewHttpOptions()
	o.Addr = ""
	assert.Empty(t, o.Validate())

	o.Addr = "nope"
	assert.Len(t, o.Validate(), 1)
}

func TestMqttOptions(t *testing.T) {
	o := NewMqttOptions()
	assert.False(t, o.Enabled())

	o.Broker = "broker.local:1883"
	o.TopicRoot = ""
	o.KeepAlive = 0
	assert.Len(t, o.Validate(), 3)

	o = NewMqttOptions()
	o.Broker = "tls://broker.local:8883"
	o.KeepAlive = 30 * time.Second
	require.Empty(t, o.Validate())
	assert.True(t, o.Enabled())

	cfg := o.ToClientConfig("mfr-upgraded-dev-1")
	assert.Equal(t, "tls://broker.local:8883", cfg.BrokerURL)
	assert.Equal(t, "mfr-upgraded-dev-1", cfg.ClientID)
	assert.Equal(t, uint16(30), cfg.KeepAlive)

	o.ClientID = "explicit"
	assert.Equal(t, "explicit", o.ToClientConfig("derived").ClientID)
}

func TestSpoolOptions(t *testing.T) {
	o := NewSpoolOptions()
	assert.False(t, o.Enabled())

	o.Dir = "/var/spool/mfr"
	o.MarkerSuffix = ""
	assert.True(t, o.Enabled())
	assert.Len(t, o.Validate(), 1)
}

func TestS3Options(t *testing.T) {
	o := NewS3Options()
	assert.False(t, o.Enabled())

	o.Endpoint = "https://minio.local:9000"
	o.BucketName = ""
	o.DownloadDir = ""
	assert.Len(t, o.Validate(), 3)

	o = NewS3Options()
	o.Endpoint = "minio.local:9000"
	assert.Empty(t, o.Validate())
}

func TestDeviceOptions(t *testing.T) {
	o := &DeviceOptions{}
	assert.Len(t, o.Validate(), 2)
}

func TestAddFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	upgrade := NewUpgradeOptions()
	mqtt := NewMqttOptions()
	upgrade.AddFlags(fs)
	mqtt.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--upgrade.max-in-flight=2",
		"--upgrade.serialize-flash",
		"--mqtt.broker=tcp://broker:1883",
		"--mqtt.accept-requests",
	}))
	assert.Equal(t, 2, upgrade.MaxInFlight)
	assert.True(t, upgrade.SerializeFlash)
	assert.Equal(t, "tcp://broker:1883", mqtt.Broker)
	assert.True(t, mqtt.AcceptRequests)
}
