// Package fwupgrade turns firmware upgrade requests into asynchronous flash
// workers and reports their progress through caller-supplied notifiers.
package fwupgrade

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/autopeer-io/mfrhal/internal/pkg/metrics"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

// Dispatch results as recorded in metrics.UpgradeRequests.
const (
	resultAccepted          = "accepted"
	resultInvalidParam      = "invalid_param"
	resultResourceExhausted = "resource_exhausted"
	resultClosed            = "closed"
)

// Dispatcher validates upgrade requests and launches one worker per accepted
// request. It never waits for a worker unless asked to through Shutdown.
type Dispatcher struct {
	opts      *options.UpgradeOptions
	runner    CommandRunner
	sinks     []Sink
	flashLock *semaphore.Weighted

	mu     sync.Mutex
	group  errgroup.Group
	closed bool
	latest *Task

	log log.Logger
}

var _ Submitter = (*Dispatcher)(nil)

var errClosed = fmt.Errorf("dispatcher is shut down: %w", mfr.InvalidState)

// NewDispatcher creates a Dispatcher. Every notification delivered to a
// caller is also published to sinks.
func NewDispatcher(opts *options.UpgradeOptions, runner CommandRunner, sinks ...Sink) *Dispatcher {
	if opts == nil {
		opts = options.NewUpgradeOptions()
	}
	if runner == nil {
		runner = NewShellRunner(opts.Shell)
	}

	d := &Dispatcher{
		opts:   opts,
		runner: runner,
		sinks:  sinks,
		log:    log.WithName("dispatcher"),
	}
	if opts.MaxInFlight > 0 {
		d.group.SetLimit(opts.MaxInFlight)
	}
	if opts.SerializeFlash {
		d.flashLock = semaphore.NewWeighted(1)
	}
	return d
}

// RequestUpgrade is the HAL entry point. The returned kind reflects whether
// the request was accepted for processing, never whether the flash worked.
func (d *Dispatcher) RequestUpgrade(name, path string, t mfr.ImageType, n mfr.Notifier) mfr.ErrorKind {
	_, err := d.Submit(name, path, t, n)
	return mfr.KindOf(err)
}

// Submit validates the request, prepares the storage partition and starts a
// worker. On success the returned Task tracks the worker; on failure no
// worker exists and n is never called.
func (d *Dispatcher) Submit(name, path string, t mfr.ImageType, n mfr.Notifier) (*Task, error) {
	req := Request{
		Name:     name,
		Path:     path,
		Type:     t,
		Notifier: n,
	}
	if err := req.validate(); err != nil {
		metrics.UpgradeRequests.WithLabelValues(resultInvalidParam).Inc()
		d.log.Error(err, "Rejecting upgrade request", "image", name, "path", path)
		return nil, err
	}

	if d.isClosed() {
		metrics.UpgradeRequests.WithLabelValues(resultClosed).Inc()
		return nil, errClosed
	}

	d.preparePartition()

	req.ID = uuid.NewString()
	task := newTask(req)
	w := newWorker(req, task, d)

	d.mu.Lock()
	defer d.mu.Unlock()

	// Shutdown may have started while the partition was prepared.
	if d.closed {
		metrics.UpgradeRequests.WithLabelValues(resultClosed).Inc()
		return nil, errClosed
	}

	// The worker context is never cancelled; an upgrade always runs to its
	// terminal status.
	if !d.group.TryGo(func() error {
		w.run(context.Background())
		return nil
	}) {
		metrics.UpgradeRequests.WithLabelValues(resultResourceExhausted).Inc()
		err := fmt.Errorf("%d upgrades already in flight: %w", d.opts.MaxInFlight, mfr.ResourceExhausted)
		d.log.Error(err, "Rejecting upgrade request", "image", name, "path", path)
		return nil, err
	}

	d.latest = task
	metrics.UpgradeRequests.WithLabelValues(resultAccepted).Inc()
	d.log.Info("Upgrade accepted", "task", task.ID(), "image", name, "path", path, "type", t)

	return task, nil
}

func (d *Dispatcher) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// preparePartition runs the partition preparation command. Its outcome is
// logged and otherwise ignored.
func (d *Dispatcher) preparePartition() {
	if d.opts.PrepareScript == "" {
		return
	}

	code, err := d.runner.Run(context.Background(), d.opts.PrepareScript)
	if err != nil || code != 0 {
		metrics.PreparePartitionFailures.Inc()
		d.log.Warn("Partition preparation failed, continuing", "command", d.opts.PrepareScript, "exitCode", code, "error", err)
		return
	}
	d.log.Debug("Partition prepared", "command", d.opts.PrepareScript)
}

// Latest returns the most recently accepted task, or nil.
func (d *Dispatcher) Latest() *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest
}

// Shutdown stops accepting requests and waits for in-flight workers until
// ctx is done. Workers are not interrupted when ctx expires.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for upgrade workers: %w", ctx.Err())
	}
}
