package options

import (
	"errors"

	"github.com/spf13/pflag"
)

var _ IOptions = (*UpgradeOptions)(nil)

// UpgradeOptions configures how firmware images are handed to the platform
// flashing procedure.
type UpgradeOptions struct {
	// FlashScript is the command prefix; the image location is appended as
	// its last argument.
	FlashScript string `json:"flash-script" mapstructure:"flash-script"`

	// PrepareScript runs before every accepted upgrade. Its exit status is
	// ignored. Empty disables the step.
	PrepareScript string `json:"prepare-script" mapstructure:"prepare-script"`

	// Shell interprets both scripts ("<shell> -c <command>").
	Shell string `json:"shell" mapstructure:"shell"`

	// MaxCommandLength bounds the assembled flash command. 0 means unbounded.
	MaxCommandLength int `json:"max-command-length" mapstructure:"max-command-length"`

	// MaxInFlight bounds concurrently running upgrade workers. 0 means unbounded.
	MaxInFlight int `json:"max-in-flight" mapstructure:"max-in-flight"`

	// SerializeFlash makes workers take turns invoking the flash script.
	// Off by default: callers are expected to serialize upgrades themselves.
	SerializeFlash bool `json:"serialize-flash" mapstructure:"serialize-flash"`

	// HistorySize is the number of finished upgrades kept for status queries.
	HistorySize int `json:"history-size" mapstructure:"history-size"`
}

// NewUpgradeOptions creates an UpgradeOptions with the RDK script locations.
func NewUpgradeOptions() *UpgradeOptions {
	return &UpgradeOptions{
		FlashScript:      "sh /lib/rdk/write_kernel_rootfs.sh",
		PrepareScript:    "sh /lib/rdk/memory_partition.sh",
		Shell:            "/bin/sh",
		MaxCommandLength: 4096,
		HistorySize:      32,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *UpgradeOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	if o.FlashScript == "" {
		errs = append(errs, errors.New("upgrade.flash-script must not be empty"))
	}
	if o.Shell == "" {
		errs = append(errs, errors.New("upgrade.shell must not be empty"))
	}
	if o.MaxCommandLength < 0 {
		errs = append(errs, errors.New("upgrade.max-command-length must not be negative"))
	}
	if o.MaxInFlight < 0 {
		errs = append(errs, errors.New("upgrade.max-in-flight must not be negative"))
	}
	if o.HistorySize < 1 {
		errs = append(errs, errors.New("upgrade.history-size must be at least 1"))
	}

	return errs
}

// AddFlags adds flags for UpgradeOptions to the specified FlagSet.
func (o *UpgradeOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.FlashScript, "upgrade.flash-script", o.FlashScript, "Command that flashes an image; the image path is appended.")
	fs.StringVar(&o.PrepareScript, "upgrade.prepare-script", o.PrepareScript, "Command run before each upgrade to prepare the storage partition. Empty disables it.")
	fs.StringVar(&o.Shell, "upgrade.shell", o.Shell, "Shell used to interpret the upgrade commands.")
	fs.IntVar(&o.MaxCommandLength, "upgrade.max-command-length", o.MaxCommandLength, "Upper bound for the assembled flash command (0 = unbounded).")
	fs.IntVar(&o.MaxInFlight, "upgrade.max-in-flight", o.MaxInFlight, "Maximum number of concurrently running upgrades (0 = unbounded).")
	fs.BoolVar(&o.SerializeFlash, "upgrade.serialize-flash", o.SerializeFlash, "Run at most one flash command at a time.")
	fs.IntVar(&o.HistorySize, "upgrade.history-size", o.HistorySize, "Number of upgrades kept for status queries.")
}
