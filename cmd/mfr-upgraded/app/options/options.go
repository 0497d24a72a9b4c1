package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/mfrhal/internal/agent"
	"github.com/autopeer-io/mfrhal/pkg/app"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type UpgradedOptions struct {
	UpgradeOptions *options.UpgradeOptions `json:"upgrade" mapstructure:"upgrade"`
	DeviceOptions  *options.DeviceOptions  `json:"device" mapstructure:"device"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	SpoolOptions   *options.SpoolOptions   `json:"spool" mapstructure:"spool"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*UpgradedOptions)(nil)

func NewUpgradedOptions() *UpgradedOptions {
	o := &UpgradedOptions{
		UpgradeOptions: options.NewUpgradeOptions(),
		DeviceOptions:  options.NewDeviceOptions(),
		HttpOptions:    options.NewHttpOptions(),
		MqttOptions:    options.NewMqttOptions(),
		SpoolOptions:   options.NewSpoolOptions(),
		S3Options:      options.NewS3Options(),
		Log:            log.NewOptions(),
	}

	return o
}

func (o *UpgradedOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.UpgradeOptions.AddFlags(fss.FlagSet("upgrade"))
	o.DeviceOptions.AddFlags(fss.FlagSet("device"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.SpoolOptions.AddFlags(fss.FlagSet("spool"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *UpgradedOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "mfr-upgraded"
	}
	return nil
}

func (o *UpgradedOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.UpgradeOptions.Validate()...)
	errs = append(errs, o.DeviceOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.SpoolOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *UpgradedOptions) Config() (*agent.Config, error) {
	return &agent.Config{
		UpgradeOptions: o.UpgradeOptions,
		DeviceOptions:  o.DeviceOptions,
		HttpOptions:    o.HttpOptions,
		MqttOptions:    o.MqttOptions,
		SpoolOptions:   o.SpoolOptions,
		S3Options:      o.S3Options,
	}, nil
}
