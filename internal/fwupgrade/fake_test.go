package fwupgrade

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

const (
	testFlashScript   = "flash"
	testPrepareScript = "prepare"
)

type runResult struct {
	code int
	err  error
}

// fakeRunner records commands and answers with canned exit codes. Flash
// commands block while gate is non-nil and open.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string

	flash   runResult
	prepare runResult
	gate    chan struct{}
	started chan string
}

func (r *fakeRunner) Run(ctx context.Context, command string) (int, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()

	if command == testPrepareScript {
		return r.prepare.code, r.prepare.err
	}

	if r.started != nil {
		r.started <- command
	}
	if r.gate != nil {
		select {
		case <-r.gate:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return r.flash.code, r.flash.err
}

func (r *fakeRunner) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

func (r *fakeRunner) FlashCommands() []string {
	var out []string
	for _, c := range r.Commands() {
		if strings.HasPrefix(c, testFlashScript+" ") {
			out = append(out, c)
		}
	}
	return out
}

// recorder collects notifications the way a HAL caller would.
type recorder struct {
	mu       sync.Mutex
	statuses []mfr.UpgradeStatus
	contexts []any
}

func (r *recorder) notifier(ctx any) mfr.Notifier {
	return mfr.Notifier{
		Callback: func(s mfr.UpgradeStatus, c any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.statuses = append(r.statuses, s)
			r.contexts = append(r.contexts, c)
		},
		Context: ctx,
	}
}

func (r *recorder) Statuses() []mfr.UpgradeStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]mfr.UpgradeStatus(nil), r.statuses...)
}

func (r *recorder) Contexts() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.contexts...)
}

// eventLog is a Sink keeping everything it is given.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Publish(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func testOptions() *options.UpgradeOptions {
	opts := options.NewUpgradeOptions()
	opts.FlashScript = testFlashScript
	opts.PrepareScript = testPrepareScript
	return opts
}

func waitTask(t *testing.T, task *Task) mfr.UpgradeStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := task.Wait(ctx)
	require.NoError(t, err)
	return s
}
