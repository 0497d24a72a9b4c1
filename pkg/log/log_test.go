package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfr.log")

	opts := NewOptions()
	opts.Format = "json"
	opts.EnableColor = false
	opts.OutputPaths = []string{path}
	opts.MaxSize = 1

	l := NewLogger(opts).WithName("dispatcher").WithValues("task", "t-1")
	l.Info("upgrade accepted", "image", "image.bin")
	l.Error(errors.New("exit status 1"), "flash failed")
	if s, ok := l.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	for _, want := range []string{`"logger":"dispatcher"`, `"task":"t-1"`, `"image":"image.bin"`, `"error":"exit status 1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := NewOptions()
	if errs := opts.Validate(); len(errs) != 0 {
		t.Fatalf("defaults should validate, got %v", errs)
	}

	opts.Format = "xml"
	opts.MaxSize = -1
	if errs := opts.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	l := NewNopLogger()
	l.Debug("nothing")
	l.WithName("x").WithValues("k", "v").Warn("still nothing")
}
