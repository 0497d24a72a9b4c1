package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SpoolOptions)(nil)

// SpoolOptions configures the incoming image directory.
type SpoolOptions struct {
	// Dir is watched for "<image>.ready" markers. Empty disables the watcher.
	Dir string `json:"dir" mapstructure:"dir"`

	// MarkerSuffix marks an image as completely downloaded.
	MarkerSuffix string `json:"marker-suffix" mapstructure:"marker-suffix"`
}

// NewSpoolOptions creates a SpoolOptions with default values.
func NewSpoolOptions() *SpoolOptions {
	return &SpoolOptions{
		MarkerSuffix: ".ready",
	}
}

// Enabled reports whether a spool directory is configured.
func (o *SpoolOptions) Enabled() bool {
	return o != nil && o.Dir != ""
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SpoolOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.Dir != "" && o.MarkerSuffix == "" {
		errs = append(errs, errors.New("spool.marker-suffix must not be empty"))
	}

	return errs
}

// AddFlags adds flags for SpoolOptions to the specified FlagSet.
func (o *SpoolOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Dir, "spool.dir", o.Dir, "Directory watched for downloaded images. Empty disables the watcher.")
	fs.StringVar(&o.MarkerSuffix, "spool.marker-suffix", o.MarkerSuffix, "Suffix of the marker file announcing a complete image.")
}
