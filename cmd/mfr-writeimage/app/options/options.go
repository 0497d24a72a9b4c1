package options

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/app"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type WriteImageOptions struct {
	UpgradeOptions *options.UpgradeOptions `json:"upgrade" mapstructure:"upgrade"`
	Log            *log.Options            `json:"log" mapstructure:"log"`

	// Type is "cdl" or "rcdl".
	Type string `json:"type" mapstructure:"type"`

	// Name and Path come from the positional arguments.
	Name string `json:"-" mapstructure:"-"`
	Path string `json:"-" mapstructure:"-"`
}

var _ app.NamedFlagSetOptions = (*WriteImageOptions)(nil)

func NewWriteImageOptions() *WriteImageOptions {
	o := &WriteImageOptions{
		UpgradeOptions: options.NewUpgradeOptions(),
		Log:            log.NewOptions(),
		Type:           fwupgrade.DefaultImageType.String(),
	}
	o.Log.OutputPaths = []string{"stderr"}

	return o
}

func (o *WriteImageOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fss.FlagSet("image").StringVar(&o.Type, "type", o.Type, "Image type, 'cdl' or 'rcdl'.")
	o.UpgradeOptions.AddFlags(fss.FlagSet("upgrade"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

// Args takes NAME and PATH from the command line.
func (o *WriteImageOptions) Args(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return err
	}
	o.Name, o.Path = args[0], args[1]
	return nil
}

func (o *WriteImageOptions) Complete() error {
	return nil
}

func (o *WriteImageOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.UpgradeOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	if o.Name == "" || o.Path == "" {
		errs = append(errs, errors.New("image name and path are required"))
	}
	if _, err := fwupgrade.ParseImageType(o.Type); err != nil {
		errs = append(errs, fmt.Errorf("--type: %w", err))
	}
	return utilerrors.NewAggregate(errs)
}
