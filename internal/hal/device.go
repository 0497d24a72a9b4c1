// Package hal implements the manufacturer HAL for Linux devices flashed by
// platform scripts.
package hal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

type state int

const (
	stateNew state = iota
	stateReady
	stateTerminated
)

// Config bundles what a Device needs.
type Config struct {
	UpgradeOptions *options.UpgradeOptions
	DeviceOptions  *options.DeviceOptions

	// Runner executes the platform scripts. Defaults to a ShellRunner.
	Runner fwupgrade.CommandRunner

	// Sinks observe every delivered upgrade notification.
	Sinks []fwupgrade.Sink
}

// Device is the mfr.HAL of a device whose manufacturing data lives in a
// directory of files and whose images are written by a flash script.
type Device struct {
	cfg Config

	mu         sync.RWMutex
	state      state
	dispatcher *fwupgrade.Dispatcher

	log log.Logger
}

var (
	_ mfr.HAL             = (*Device)(nil)
	_ fwupgrade.Submitter = (*Device)(nil)
)

// New creates an uninitialized Device.
func New(cfg Config) *Device {
	if cfg.UpgradeOptions == nil {
		cfg.UpgradeOptions = options.NewUpgradeOptions()
	}
	if cfg.DeviceOptions == nil {
		cfg.DeviceOptions = options.NewDeviceOptions()
	}
	if cfg.Runner == nil {
		cfg.Runner = fwupgrade.NewShellRunner(cfg.UpgradeOptions.Shell)
	}
	return &Device{
		cfg: cfg,
		log: log.WithName("hal"),
	}
}

// Init brings the HAL up, including the firmware upgrade subsystem.
func (d *Device) Init() mfr.ErrorKind {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateReady:
		return mfr.NoError
	case stateTerminated:
		return mfr.InvalidState
	}

	d.state = stateReady
	d.startUpgradesLocked()
	d.log.Info("HAL initialized", "serializedDir", d.cfg.DeviceOptions.SerializedDir)
	return mfr.NoError
}

// Term waits for in-flight upgrades and shuts the HAL down. It cannot be
// initialized again.
func (d *Device) Term() mfr.ErrorKind {
	return mfr.KindOf(d.Shutdown(context.Background()))
}

// Shutdown is Term bounded by ctx. When ctx expires the HAL is terminated
// anyway; running upgrades keep going.
func (d *Device) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.state != stateReady {
		d.mu.Unlock()
		return mfr.NotInitialized
	}
	d.state = stateTerminated
	dispatcher := d.dispatcher
	d.dispatcher = nil
	d.mu.Unlock()

	d.log.Info("HAL terminating")
	if dispatcher == nil {
		return nil
	}
	if err := dispatcher.Shutdown(ctx); err != nil {
		return fmt.Errorf("%w: %w", mfr.General, err)
	}
	return nil
}

// GetSerializedData reads <serialized-dir>/<type name>. The content is
// returned as is.
func (d *Device) GetSerializedData(t mfr.SerializedType) (mfr.SerializedData, mfr.ErrorKind) {
	if !d.ready() {
		return mfr.SerializedData{}, mfr.NotInitialized
	}
	if !t.Valid() {
		return mfr.SerializedData{}, mfr.InvalidParam
	}

	file := filepath.Join(d.cfg.DeviceOptions.SerializedDir, t.String())
	buf, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mfr.SerializedData{}, mfr.OperationNotSupported
		}
		d.log.Error(err, "Failed to read serialized data", "type", t, "file", file)
		return mfr.SerializedData{}, mfr.General
	}

	return mfr.SerializedData{Type: t, Buf: buf}, mfr.NoError
}

// WriteImage starts an asynchronous upgrade of path/name.
func (d *Device) WriteImage(name, path string, t mfr.ImageType, notify mfr.Notifier) mfr.ErrorKind {
	_, err := d.Submit(name, path, t, notify)
	return mfr.KindOf(err)
}

// Submit is WriteImage returning the task handle of an accepted upgrade.
func (d *Device) Submit(name, path string, t mfr.ImageType, notify mfr.Notifier) (*fwupgrade.Task, error) {
	d.mu.RLock()
	dispatcher := d.dispatcher
	d.mu.RUnlock()

	if dispatcher == nil {
		return nil, mfr.NotInitialized
	}
	return dispatcher.Submit(name, path, t, notify)
}

// VerifyImage is left to the platform's signature verification.
func (d *Device) VerifyImage(name, path string) mfr.ErrorKind {
	return d.unsupported("VerifyImage")
}

// UnpackImage is left to the platform.
func (d *Device) UnpackImage(name, path, outName, outPath string) mfr.ErrorKind {
	return d.unsupported("UnpackImage")
}

// DeletePDRI is left to the platform.
func (d *Device) DeletePDRI() mfr.ErrorKind {
	return d.unsupported("DeletePDRI")
}

// ScrubAllBanks is left to the platform.
func (d *Device) ScrubAllBanks() mfr.ErrorKind {
	return d.unsupported("ScrubAllBanks")
}

// GetUpgradeStatus reports the most recently accepted upgrade. Without one
// the progress is NotStarted.
func (d *Device) GetUpgradeStatus() (mfr.UpgradeProgress, mfr.ErrorKind) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.state != stateReady {
		return mfr.ProgressNotStarted, mfr.NotInitialized
	}
	if d.dispatcher == nil {
		return mfr.ProgressNotStarted, mfr.NoError
	}

	task := d.dispatcher.Latest()
	if task == nil {
		return mfr.ProgressNotStarted, mfr.NoError
	}
	s := task.Status()
	return s.Progress, s.Error
}

// Task returns the latest accepted upgrade, or nil.
func (d *Device) Task() *fwupgrade.Task {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.dispatcher == nil {
		return nil
	}
	return d.dispatcher.Latest()
}

// FWUpgradeInit starts the upgrade subsystem after FWUpgradeTerm.
func (d *Device) FWUpgradeInit() mfr.ErrorKind {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != stateReady {
		return mfr.NotInitialized
	}
	d.startUpgradesLocked()
	return mfr.NoError
}

// FWUpgradeTerm stops accepting upgrades and waits for running ones.
func (d *Device) FWUpgradeTerm() mfr.ErrorKind {
	d.mu.Lock()
	if d.state != stateReady {
		d.mu.Unlock()
		return mfr.NotInitialized
	}
	dispatcher := d.dispatcher
	d.dispatcher = nil
	d.mu.Unlock()

	if dispatcher == nil {
		return mfr.NoError
	}
	return mfr.KindOf(dispatcher.Shutdown(context.Background()))
}

func (d *Device) startUpgradesLocked() {
	if d.dispatcher != nil {
		return
	}
	d.dispatcher = fwupgrade.NewDispatcher(d.cfg.UpgradeOptions, d.cfg.Runner, d.cfg.Sinks...)
}

func (d *Device) ready() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state == stateReady
}

func (d *Device) unsupported(op string) mfr.ErrorKind {
	if !d.ready() {
		return mfr.NotInitialized
	}
	d.log.Debug("Operation not supported", "op", op)
	return mfr.OperationNotSupported
}
