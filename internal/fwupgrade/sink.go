package fwupgrade

import (
	"time"

	"github.com/autopeer-io/mfrhal/pkg/mfr"
)

// Event is a delivered notification together with the upgrade it belongs to.
type Event struct {
	TaskID    string            `json:"id"`
	Image     string            `json:"image"`
	Path      string            `json:"path"`
	Type      mfr.ImageType     `json:"type"`
	Status    mfr.UpgradeStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// Sink observes every notification delivered to a caller. Publish runs on
// the worker goroutine right after the caller's callback and must not block
// for long.
type Sink interface {
	Publish(ev Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }
