package fwupgrade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

// Task is the handle of one accepted upgrade. It exposes the worker's
// lifetime; it does not give control over it.
type Task struct {
	id        string
	image     string
	path      string
	imageType mfr.ImageType
	created   time.Time

	done chan struct{}

	mu     sync.RWMutex
	status mfr.UpgradeStatus
}

func newTask(req Request) *Task {
	return &Task{
		id:        req.ID,
		image:     req.Name,
		path:      req.Path,
		imageType: req.Type,
		created:   time.Now(),
		done:      make(chan struct{}),
	}
}

func (t *Task) ID() string               { return t.id }
func (t *Task) Image() string            { return t.image }
func (t *Task) Path() string             { return t.path }
func (t *Task) ImageType() mfr.ImageType { return t.imageType }
func (t *Task) Created() time.Time       { return t.created }

// Done is closed once the worker has reached a terminal state and released
// its resources.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Status returns the last status set by the worker, including the silent
// invalid-parameter abort that is never delivered to the Notifier.
func (t *Task) Status() mfr.UpgradeStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Wait blocks until the worker finished or ctx is done.
func (t *Task) Wait(ctx context.Context) (mfr.UpgradeStatus, error) {
	select {
	case <-t.done:
		return t.Status(), nil
	case <-ctx.Done():
		return t.Status(), ctx.Err()
	}
}

// Cancel always fails: once dispatched, a flash cannot be interrupted.
func (t *Task) Cancel() error {
	return fmt.Errorf("upgrade %s cannot be cancelled: %w", t.id, mfr.OperationNotSupported)
}

func (t *Task) set(s mfr.UpgradeStatus) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

func (t *Task) finish(s mfr.UpgradeStatus) {
	t.set(s)
	close(t.done)
}
