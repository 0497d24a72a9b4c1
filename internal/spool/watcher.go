// Package spool turns downloaded images into upgrade requests. A downloader
// drops <image> into the spool directory, then a <image><suffix> marker whose
// content is the image type ("cdl" or "rcdl", empty means rcdl). Markers
// should be renamed into place so they are complete when they appear.
package spool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/autopeer-io/mfrhal/internal/fwupgrade"
	"github.com/autopeer-io/mfrhal/pkg/log"
	"github.com/autopeer-io/mfrhal/pkg/mfr"
	"github.com/autopeer-io/mfrhal/pkg/options"
)

// Watcher dispatches one upgrade per marker file.
type Watcher struct {
	dir      string
	suffix   string
	upgrader fwupgrade.Submitter
	tracker  *fwupgrade.Tracker
	log      log.Logger
}

// NewWatcher creates a Watcher. tracker may be nil.
func NewWatcher(opts *options.SpoolOptions, upgrader fwupgrade.Submitter, tracker *fwupgrade.Tracker) *Watcher {
	return &Watcher{
		dir:      opts.Dir,
		suffix:   opts.MarkerSuffix,
		upgrader: upgrader,
		tracker:  tracker,
		log:      log.WithName("spool"),
	}
}

// Start watches the directory until ctx is done. Markers already present
// are handled first.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create spool watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch spool directory %s: %w", w.dir, err)
	}
	w.log.Info("Watching spool directory", "dir", w.dir, "suffix", w.suffix)

	if err := w.scan(); err != nil {
		return err
	}

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.isMarker(ev.Name) {
				continue
			}
			_, _ = w.handleMarker(ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error(err, "Spool watcher error")
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read spool directory %s: %w", w.dir, err)
	}
	for _, e := range entries {
		name := filepath.Join(w.dir, e.Name())
		if e.Type().IsRegular() && w.isMarker(name) {
			_, _ = w.handleMarker(name)
		}
	}
	return nil
}

func (w *Watcher) isMarker(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, w.suffix) && len(base) > len(w.suffix)
}

// handleMarker consumes marker and submits its image. A marker that is
// already gone was handled by an earlier event and yields (nil, nil).
func (w *Watcher) handleMarker(marker string) (*fwupgrade.Task, error) {
	content, err := os.ReadFile(marker)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		w.log.Error(err, "Failed to read marker", "marker", marker)
		return nil, err
	}

	// Removing the marker claims it; duplicate events for the same file
	// find it gone.
	if err := os.Remove(marker); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		w.log.Error(err, "Failed to remove marker, skipping", "marker", marker)
		return nil, err
	}

	image := strings.TrimSuffix(filepath.Base(marker), w.suffix)
	t, err := fwupgrade.ParseImageType(string(content))
	if err != nil {
		w.log.Error(err, "Invalid marker content", "marker", marker)
		return nil, err
	}

	task, err := w.upgrader.Submit(image, w.dir, t, mfr.Notifier{})
	if err != nil {
		w.log.Error(err, "Spooled upgrade rejected", "image", image)
		return nil, err
	}
	if w.tracker != nil {
		w.tracker.Track(task.ID())
	}

	w.log.Info("Spooled upgrade accepted", "image", image, "type", t, "task", task.ID())
	return task, nil
}
