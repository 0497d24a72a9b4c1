package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosuri/uitable"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/mfrhal/cmd/mfr-writeimage/app/options"
	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/internal/hal"
	"github.com/autopeer-io/mfrhal/pkg/app"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

const (
	commandName = "mfr-writeimage"
	commandDesc = `mfr-writeimage flashes the image PATH/NAME on this device and waits for
the result. Every status reported by the upgrade is printed.

Exit codes: 0 the upgrade completed, 2 the request was rejected,
3 the upgrade was aborted.`

	exitRejected = 2
	exitAborted  = 3

	termTimeout = 5 * time.Second
)

func NewApp() *app.App {
	opts := options.NewWriteImageOptions()
	application := app.NewApp(
		commandName+" NAME PATH",
		"Write a firmware image and wait for the result",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithValidArgs(opts.Args),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.WriteImageOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer log.Sync()

		ctx := genericapiserver.SetupSignalContext()
		return writeImage(ctx, opts, nil, os.Stdout)
	}
}

// writeImage runs one upgrade through the HAL. A nil runner uses the shell.
func writeImage(ctx context.Context, opts *options.WriteImageOptions, runner fwupgrade.CommandRunner, out io.Writer) error {
	t, err := fwupgrade.ParseImageType(opts.Type)
	if err != nil {
		return &app.ExitError{Code: exitRejected, Err: err}
	}

	device := hal.New(hal.Config{
		UpgradeOptions: opts.UpgradeOptions,
		Runner:         runner,
	})
	if kind := device.Init(); kind != mfr.NoError {
		return &app.ExitError{Code: exitRejected, Err: kind}
	}
	defer func() {
		termCtx, cancel := context.WithTimeout(context.Background(), termTimeout)
		defer cancel()
		_ = device.Shutdown(termCtx)
	}()

	statuses := make(chan mfr.UpgradeStatus, 8)
	notifier := mfr.Notifier{
		Callback: func(s mfr.UpgradeStatus, _ any) {
			select {
			case statuses <- s:
			default:
			}
		},
	}

	task, err := device.Submit(opts.Name, opts.Path, t, notifier)
	if err != nil {
		return &app.ExitError{Code: exitRejected, Err: fmt.Errorf("upgrade rejected: %w", err)}
	}

	table := uitable.New()
	table.AddRow("TIME", "PROGRESS", "ERROR", "PERCENT")
	addRow := func(s mfr.UpgradeStatus) {
		table.AddRow(time.Now().Format(time.TimeOnly), s.Progress.String(), s.Error.String(), fmt.Sprintf("%d%%", s.Percentage))
	}

wait:
	for {
		select {
		case s := <-statuses:
			addRow(s)
		case <-task.Done():
			for {
				select {
				case s := <-statuses:
					addRow(s)
				default:
					break wait
				}
			}
		case <-ctx.Done():
			fmt.Fprintln(out, table)
			return fmt.Errorf("interrupted while upgrade %s is %s", task.ID(), task.Status())
		}
	}
	fmt.Fprintln(out, table)

	if final := task.Status(); final.Progress != mfr.ProgressCompleted {
		return &app.ExitError{Code: exitAborted, Err: fmt.Errorf("upgrade aborted: %s", final.Error)}
	}
	return nil
}
