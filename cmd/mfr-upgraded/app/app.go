package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/mfrhal/cmd/mfr-upgraded/app/options"
	"github.com/autopeer-io/mfrhal/pkg/app"
	"github.com/autopeer-io/mfrhal/pkg/log"
)

const (
	commandName = "mfr-upgraded"
	commandDesc = `mfr-upgraded owns the manufacturer HAL of the device. It accepts
firmware image upgrades over its local HTTP API, an MQTT request topic or a
spool directory, flashes them through the platform scripts and reports
progress back over the same channels.`
)

func NewApp() *app.App {
	opts := options.NewUpgradedOptions()
	application := app.NewApp(
		commandName,
		"Launch the firmware upgrade daemon",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.UpgradedOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
