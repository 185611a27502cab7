package tools

import (
	"bytes"
	"context"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/m4xw311/mallard/errors"
	"go.uber.org/zap"
)

const defaultPollInterval = 200 * time.Millisecond

var unsafeCommandChars = regexp.MustCompile("[;&|`$()#<>\\s]")

// CommandResult is the outcome of one external process.
type CommandResult struct {
	Command      string
	ExitCode     int
	Stdout       string
	Stderr       string
	TimedOut     bool
	ErrorMessage string
}

func (r *CommandResult) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// ShellRunner starts commands in the project root without a shell. Every run
// is bounded by a timeout checked on a fixed polling interval; an overdue
// process is killed.
type ShellRunner struct {
	dir          string
	timeout      time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewShellRunner(dir string, timeout time.Duration, logger *zap.Logger) *ShellRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellRunner{dir: dir, timeout: timeout, pollInterval: defaultPollInterval, logger: logger}
}

// Run executes name with args. stdin, when non-empty, is fed to the process.
// A non-zero exit or a timeout is reported in the result, not as an error.
func (r *ShellRunner) Run(ctx context.Context, name string, args []string, stdin string) (*CommandResult, error) {
	if strings.TrimSpace(name) == "" || unsafeCommandChars.MatchString(name) {
		return nil, errors.New("command '%s' contains potentially unsafe characters", name)
	}

	res := &CommandResult{Command: strings.Join(append([]string{name}, args...), " ")}
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Dir = r.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	// Grandchildren holding the pipes open must not block Wait forever.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "failed to start command '%s'", name)
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	started := time.Now()

	for {
		select {
		case err := <-done:
			res.Stdout, res.Stderr = stdout.String(), stderr.String()
			if err != nil {
				var exitErr *exec.ExitError
				if !errors.As(err, &exitErr) {
					return nil, errors.Wrapf(err, "command '%s' failed", name)
				}
				res.ExitCode = exitErr.ExitCode()
			}
			return res, nil

		case <-ticker.C:
			if time.Since(started) <= r.timeout {
				continue
			}
			_ = cmd.Process.Kill()
			<-done
			res.Stdout, res.Stderr = stdout.String(), stderr.String()
			res.ExitCode = -1
			res.TimedOut = true
			res.ErrorMessage = "Command timed out after " + strconv.FormatFloat(r.timeout.Seconds(), 'f', -1, 64) + " seconds."
			r.logger.Warn("command timed out", zap.String("command", res.Command), zap.Duration("timeout", r.timeout))
			return res, nil

		case <-ctx.Done():
			_ = cmd.Process.Kill()
			<-done
			return nil, ctx.Err()
		}
	}
}

// outcome turns a finished command into a tool result.
func outcome(res *CommandResult, success, failure string) string {
	if res.Success() {
		return Success(success).
			With("output", res.Stdout+res.Stderr).
			With("command", res.Command).
			String()
	}
	reason := strings.TrimSpace(res.Stderr)
	if res.ErrorMessage != "" {
		reason = res.ErrorMessage
	}
	if reason == "" {
		reason = "exit code " + strconv.Itoa(res.ExitCode)
	}
	r := Failure("%s: %s", failure, reason).
		With("command", res.Command).
		With("stdout", res.Stdout).
		With("stderr", res.Stderr)
	if res.ErrorMessage != "" {
		r.With("error_message", res.ErrorMessage)
	}
	return r.String()
}
