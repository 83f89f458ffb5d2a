// Package execenv runs child processes with resolved secrets injected as
// environment variables. Secrets only ever live in process memory.
package execenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	eserrors "github.com/systmms/envsecrets/internal/errors"
	"github.com/systmms/envsecrets/internal/logging"
)

// Executor runs commands with ephemeral environment variables.
type Executor struct {
	logger *logging.Logger
	out    io.Writer
}

// New creates an executor. Output for --print goes to stdout.
func New(logger *logging.Logger) *Executor {
	return &Executor{
		logger: logger,
		out:    os.Stdout,
	}
}

// NewWithWriter creates an executor that prints to w. Tests only.
func NewWithWriter(logger *logging.Logger, w io.Writer) *Executor {
	return &Executor{
		logger: logger,
		out:    w,
	}
}

// Options configures one command execution.
type Options struct {
	// Command is the argv to run, program first.
	Command []string

	// Secrets are injected into the child environment.
	Secrets map[string]string

	// AllowOverride keeps existing environment variables when they
	// collide with a secret; otherwise the secret wins.
	AllowOverride bool

	// PrintVars lists the injected variable names with masked values
	// before running.
	PrintVars bool

	// WorkingDir sets the child's working directory when non-empty.
	WorkingDir string

	// Timeout in seconds; 0 means no timeout.
	Timeout int
}

// Run executes the command and returns its exit code. A non-zero exit from
// the child is not an error; failures to start the child are.
func (e *Executor) Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Command) == 0 {
		return 0, eserrors.ConfigurationError{
			Field:      "command",
			Message:    "no command specified",
			Suggestion: "Provide a command after --, e.g. envsecrets run -- npm start",
		}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.Timeout)*time.Second)
		defer cancel()
	}

	name := opts.Command[0]
	if _, err := exec.LookPath(name); err != nil {
		return 0, eserrors.ConfigurationError{
			Field:      "command",
			Value:      name,
			Message:    "command not found in PATH",
			Suggestion: fmt.Sprintf("Check that '%s' is installed and spelled correctly", name),
		}
	}

	if opts.PrintVars {
		e.printSecrets(opts.Secrets)
	}

	cmd := exec.CommandContext(ctx, name, opts.Command[1:]...)
	cmd.Env = buildEnvironment(os.Environ(), opts.Secrets, opts.AllowOverride)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}

	e.logger.Debug("running: %s", strings.Join(opts.Command, " "))
	e.logger.Debug("injecting %d environment variables", len(opts.Secrets))

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("failed to run '%s': %w", name, err)
	}
	return 0, nil
}

// buildEnvironment merges the parent environment with the secrets. The
// result is sorted for stable debugging output.
func buildEnvironment(parent []string, secrets map[string]string, allowOverride bool) []string {
	merged := make(map[string]string, len(parent)+len(secrets))
	for _, kv := range parent {
		if idx := strings.Index(kv, "="); idx > 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}

	for key, value := range secrets {
		if allowOverride {
			if _, exists := merged[key]; exists {
				continue
			}
		}
		merged[key] = value
	}

	result := make([]string, 0, len(merged))
	for key, value := range merged {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)
	return result
}

// printSecrets lists variable names with masked values.
func (e *Executor) printSecrets(secrets map[string]string) {
	if len(secrets) == 0 {
		fmt.Fprintln(e.out, "No secrets resolved")
		return
	}

	fmt.Fprintf(e.out, "Injecting %d environment variables:\n", len(secrets))

	keys := make([]string, 0, len(secrets))
	for key := range secrets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(e.out, "  %s=%s\n", key, logging.RedactValue(secrets[key]))
	}
}
