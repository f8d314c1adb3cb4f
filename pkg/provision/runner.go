package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Command describes one external tool invocation.
type Command struct {
	// Name is the program to run, resolved through PATH unless it contains a separator.
	Name string

	// Args are the program arguments.
	Args []string

	// Dir is the working directory.
	Dir string

	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string

	// Step is the pipeline step this command belongs to.
	Step string
}

// String renders the command the way it is logged.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes external tools. Implementations must return a *Error of class
// ErrorClassSpawn or ErrorClassExit on failure.
type Runner interface {
	Run(ctx context.Context, cmd Command) error
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger zerolog.Logger
}

// NewExecRunner creates a runner whose children write both streams to the process
// stderr. Stdout is reserved for link directives.
func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{
		Stdout: os.Stderr,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// Run executes the command and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, c Command) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdin = nil
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	r.Logger.Info().
		Str("step", c.Step).
		Str("dir", c.Dir).
		Msgf("Running: %s", c)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return newError(ErrorClassExit, c.Step,
				fmt.Sprintf("`%s` failed: %s", c, exitErr.ProcessState), err).
				WithDetail("exit_code", exitErr.ExitCode())
		}
		return newError(ErrorClassSpawn, c.Step,
			fmt.Sprintf("failed to execute `%s`", c), err)
	}

	r.Logger.Debug().
		Str("step", c.Step).
		Dur("duration", duration).
		Msgf("Finished: %s", c.Name)

	return nil
}
