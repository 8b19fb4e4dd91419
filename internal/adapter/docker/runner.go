// Package docker drives session containers through the container engine CLI.
package docker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/Strob0t/Weaver/internal/secrets"
)

// Result is the outcome of one external command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// OK reports a zero exit code.
func (r Result) OK() bool { return r.ExitCode == 0 }

// StartFailure is the exit code reported when the process could not be spawned.
const StartFailure = -1

// Runner executes an external process. A nonzero exit is never an error:
// callers inspect Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, argv ...string) Result
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run spawns argv[0] with the remaining arguments, drains stdout and stderr
// and waits for exit. The command line is logged at debug level in redacted
// form only. Secrets registered on ctx are masked in the warning logged for a
// nonzero exit.
func (ExecRunner) Run(ctx context.Context, argv ...string) Result {
	if len(argv) == 0 {
		return Result{ExitCode: StartFailure, Stderr: "empty command"}
	}
	slog.DebugContext(ctx, "running command", "command", secrets.RedactArgs(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // G204: argv is built by the driver from validated input

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := Result{}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = StartFailure
			if stderr.Len() == 0 {
				stderr.WriteString(err.Error())
			}
		}
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if !res.OK() {
		slog.WarnContext(ctx, "command failed",
			"exit_code", res.ExitCode,
			"stderr", orNoStderr(secrets.RedactOutput(strings.TrimSpace(res.Stderr), secrets.FromContext(ctx)...)),
		)
	}
	return res
}

func orNoStderr(s string) string {
	if s == "" {
		return "no stderr"
	}
	return s
}
