package fwupgrade

import (
	"context"
	"fmt"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/sync/semaphore"

	"github.com/autopeer-io/mfrhal/internal/pkg/metrics"
	fsmutil "github.com/autopeer-io/mfrhal/internal/pkg/util/fsm"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

const (
	eventStart    = "start"
	eventComplete = "complete"
	eventAbort    = "abort"
)

var (
	stateNotStarted = mfr.ProgressNotStarted.String()
	stateStarted    = mfr.ProgressStarted.String()
	stateAborted    = mfr.ProgressAborted.String()
	stateCompleted  = mfr.ProgressCompleted.String()
)

// Fixed interim markers. The flash script offers no progress channel, so
// these bracket command construction and invocation.
const (
	percentCommandBuilt = 10
	percentFlashing     = 50
	percentCompleted    = 100
)

// worker performs exactly one upgrade attempt. It never returns a value;
// everything it has to say goes through the Notifier.
type worker struct {
	req  Request
	task *Task

	flashScript string
	maxLen      int
	runner      CommandRunner
	flashLock   *semaphore.Weighted
	sinks       []Sink

	fsm *fsm.FSM
	log log.Logger
}

func newWorker(req Request, task *Task, d *Dispatcher) *worker {
	w := &worker{
		req:         req,
		task:        task,
		flashScript: d.opts.FlashScript,
		maxLen:      d.opts.MaxCommandLength,
		runner:      d.runner,
		flashLock:   d.flashLock,
		sinks:       d.sinks,
		log:         log.WithValues("task", req.ID, "image", req.Name),
	}

	// Terminal states have no outgoing events, so they are never left.
	w.fsm = fsm.NewFSM(
		stateNotStarted,
		fsm.Events{
			{Name: eventStart, Src: []string{stateNotStarted}, Dst: stateStarted},
			{Name: eventComplete, Src: []string{stateStarted}, Dst: stateCompleted},
			{Name: eventAbort, Src: []string{stateNotStarted, stateStarted}, Dst: stateAborted},
		},
		fsm.Callbacks{
			"enter_state": fsmutil.WrapEvent(w.onEnterState),
		},
	)

	return w
}

func (w *worker) run(ctx context.Context) {
	started := time.Now()
	metrics.UpgradesInFlight.Inc()

	final, deliver := w.upgrade(ctx)
	if deliver {
		w.emit(final)
	}

	metrics.UpgradesInFlight.Dec()
	metrics.UpgradeResults.WithLabelValues(final.Progress.String(), final.Error.String()).Inc()
	metrics.UpgradeDuration.Observe(time.Since(started).Seconds())

	w.release(final)
}

// upgrade drives the state machine and returns the terminal status and
// whether the caller must be told about it.
func (w *worker) upgrade(ctx context.Context) (mfr.UpgradeStatus, bool) {
	// The dispatcher already validated the request; this worker may run on a
	// different schedule, so check again. This abort is never notified.
	if err := w.req.validate(); err != nil {
		w.log.Error(err, "Dropping upgrade with invalid parameters")
		w.transition(ctx, eventAbort)
		return aborted(mfr.InvalidParam), false
	}

	w.emit(mfr.UpgradeStatus{Progress: mfr.ProgressNotStarted, Error: mfr.NoError, Percentage: 0})

	command, err := buildFlashCommand(w.flashScript, w.req, w.maxLen)
	if err != nil {
		w.log.Error(err, "Failed to build flash command")
		w.transition(ctx, eventAbort)
		return aborted(mfr.KindOf(err)), true
	}

	w.transition(ctx, eventStart)
	w.emit(mfr.UpgradeStatus{Progress: mfr.ProgressStarted, Error: mfr.NoError, Percentage: percentCommandBuilt})
	w.emit(mfr.UpgradeStatus{Progress: mfr.ProgressStarted, Error: mfr.NoError, Percentage: percentFlashing})

	w.log.Info("Calling flash script", "command", command)
	code, err := w.flash(ctx, command)
	if err != nil || code != 0 {
		// The script exposes no structured error, every failure is classified
		// the same way.
		w.log.Error(err, "Flash script failed", "exitCode", code)
		w.transition(ctx, eventAbort)
		return aborted(mfr.DecryptionFailed), true
	}

	w.log.Info("Flash script finished")
	w.transition(ctx, eventComplete)
	return mfr.UpgradeStatus{Progress: mfr.ProgressCompleted, Error: mfr.NoError, Percentage: percentCompleted}, true
}

func (w *worker) flash(ctx context.Context, command string) (int, error) {
	if w.flashLock != nil {
		if err := w.flashLock.Acquire(ctx, 1); err != nil {
			return -1, fmt.Errorf("wait for flash slot: %w", err)
		}
		defer w.flashLock.Release(1)
	}
	return w.runner.Run(ctx, command)
}

func (w *worker) transition(ctx context.Context, event string) {
	if err := w.fsm.Event(ctx, event); err != nil {
		w.log.Error(err, "Invalid upgrade state transition", "event", event, "state", w.fsm.Current())
	}
}

func (w *worker) onEnterState(_ context.Context, e *fsm.Event) error {
	w.log.Debug("Upgrade state changed", "from", e.Src, "to", e.Dst)
	return nil
}

// emit records s on the task handle, then notifies the caller and the sinks.
func (w *worker) emit(s mfr.UpgradeStatus) {
	w.task.set(s)
	w.notify(s)

	ev := Event{
		TaskID:    w.req.ID,
		Image:     w.req.Name,
		Path:      w.req.Path,
		Type:      w.req.Type,
		Status:    s,
		Timestamp: time.Now(),
	}
	for _, sink := range w.sinks {
		sink.Publish(ev)
	}
}

func (w *worker) notify(s mfr.UpgradeStatus) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error(fmt.Errorf("%v", r), "Upgrade notifier panicked", "status", s)
		}
	}()
	w.req.Notifier.Notify(s)
}

// release drops everything the worker owns and marks the task done. The
// Notifier must not be retained past this point.
func (w *worker) release(final mfr.UpgradeStatus) {
	w.req.Notifier = mfr.Notifier{}
	w.sinks = nil
	w.runner = nil
	w.task.finish(final)
}

func aborted(kind mfr.ErrorKind) mfr.UpgradeStatus {
	return mfr.UpgradeStatus{Progress: mfr.ProgressAborted, Error: kind, Percentage: 0}
}
