package options

import (
	"errors"
	"os"

	"github.com/spf13/pflag"
)

var _ IOptions = (*DeviceOptions)(nil)

// DeviceOptions identifies the device and locates its manufacturing data.
type DeviceOptions struct {
	// ID names the device in MQTT topics. Defaults to the host name.
	ID string `json:"id" mapstructure:"id"`

	// SerializedDir holds one file per serialized data item, named after the
	// item (e.g. "serial_number").
	SerializedDir string `json:"serialized-dir" mapstructure:"serialized-dir"`
}

// NewDeviceOptions creates a DeviceOptions with default values.
func NewDeviceOptions() *DeviceOptions {
	id, _ := os.Hostname()
	return &DeviceOptions{
		ID:            id,
		SerializedDir: "/etc/mfr",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *DeviceOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.ID == "" {
		errs = append(errs, errors.New("device.id must not be empty"))
	}
	if o.SerializedDir == "" {
		errs = append(errs, errors.New("device.serialized-dir must not be empty"))
	}

	return errs
}

// AddFlags adds flags for DeviceOptions to the specified FlagSet.
func (o *DeviceOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.ID, "device.id", o.ID, "Device identifier used in MQTT topics.")
	fs.StringVar(&o.SerializedDir, "device.serialized-dir", o.SerializedDir, "Directory holding the serialized manufacturing data files.")
}
