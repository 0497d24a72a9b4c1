package app

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/mfrhal/cmd/mfr-writeimage/app/options"
	"github.com/autopeer-io/mfrhal/pkg/app"
)

type exitRunner int

func (r exitRunner) Run(context.Context, string) (int, error) { return int(r), nil }

func newOptions(name string) *options.WriteImageOptions {
	opts := options.NewWriteImageOptions()
	opts.UpgradeOptions.FlashScript = "flash"
	opts.UpgradeOptions.PrepareScript = ""
	opts.Name = name
	opts.Path = "/tmp/fw"
	return opts
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *app.ExitError
	require.ErrorAs(t, err, &exitErr)
	return exitErr.Code
}

func TestWriteImageCompleted(t *testing.T) {
	var out bytes.Buffer

	err := writeImage(context.Background(), newOptions("img.bin"), exitRunner(0), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "PROGRESS")
	assert.Contains(t, out.String(), "Completed")
	assert.Contains(t, out.String(), "100%")
}

func TestWriteImageAborted(t *testing.T) {
	var out bytes.Buffer

	err := writeImage(context.Background(), newOptions("img.bin"), exitRunner(1), &out)
	assert.Equal(t, exitAborted, exitCode(t, err))
	assert.Contains(t, out.String(), "Aborted")
}

func TestWriteImageRejected(t *testing.T) {
	var out bytes.Buffer

	err := writeImage(context.Background(), newOptions(""), exitRunner(0), &out)
	assert.Equal(t, exitRejected, exitCode(t, err))
	assert.Empty(t, out.String())

	opts := newOptions("img.bin")
	opts.Type = "tftp"
	err = writeImage(context.Background(), opts, exitRunner(0), &out)
	assert.Equal(t, exitRejected, exitCode(t, err))
}

func TestCommandArgs(t *testing.T) {
	cmd := NewApp().Command()
	cmd.SetArgs([]string{"only-one"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
