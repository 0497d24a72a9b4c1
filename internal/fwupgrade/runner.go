package fwupgrade

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/autopeer-io/mfrhal/pkg/log"
)

// CommandRunner runs an external platform procedure and reports its exit
// code. A non-nil error means the command could not be started or waited for;
// the exit code is then -1.
type CommandRunner interface {
	Run(ctx context.Context, command string) (int, error)
}

// ShellRunner hands commands to a shell, the way system(3) does.
type ShellRunner struct {
	shell string
}

var _ CommandRunner = (*ShellRunner)(nil)

// NewShellRunner returns a runner executing "<shell> -c <command>".
func NewShellRunner(shell string) *ShellRunner {
	if shell == "" {
		shell = "/bin/sh"
	}
	return &ShellRunner{shell: shell}
}

func (r *ShellRunner) Run(ctx context.Context, command string) (int, error) {
	var out bytes.Buffer

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Debug("Running platform command", "command", command)
	err := cmd.Run()

	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		log.Debug("Platform command output", "command", command, "line", sc.Text())
	}

	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero exit is an outcome, not a runner failure.
		return exitErr.ExitCode(), nil
	}
	return -1, fmt.Errorf("run %q: %w", command, err)
}
