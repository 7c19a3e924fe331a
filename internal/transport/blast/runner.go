// Package blast invokes BLAST+ command line tools and decodes their XML output.
package blast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	"github.com/kailas-cloud/seqsearch/internal/metrics"
)

// Tool binary names.
const (
	ToolMakeDB  = "makeblastdb"
	ToolDBCmd   = "blastdbcmd"
	stderrLimit = 8 << 10
)

// Failure reasons reported by ExecError and the tool_runs_total metric.
const (
	ReasonStart       = "start"
	ReasonExit        = "exit"
	ReasonTimeout     = "timeout"
	ReasonOutputLimit = "output_limit"
	ReasonCanceled    = "canceled"
)

// ExecError describes a failed tool invocation.
type ExecError struct {
	Tool     string
	Reason   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Tool)
	switch e.Reason {
	case ReasonExit:
		fmt.Fprintf(&b, " with exit code %d", e.ExitCode)
	case ReasonTimeout:
		b.WriteString(": timed out")
	case ReasonOutputLimit:
		b.WriteString(": output size limit exceeded")
	case ReasonCanceled:
		b.WriteString(": canceled")
	case ReasonStart:
		if e.Err != nil {
			fmt.Fprintf(&b, " to start: %v", e.Err)
		}
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %s", s)
	}
	return b.String()
}

func (e *ExecError) Unwrap() []error {
	if e.Err == nil {
		return []error{domain.ErrPipeline}
	}
	return []error{domain.ErrPipeline, e.Err}
}

// Config holds runner settings.
type Config struct {
	BinDir    string // empty: resolve binaries from PATH
	Timeout   time.Duration
	MaxOutput int64
	Threads   int
	Logger    *zap.Logger
}

// Runner executes BLAST+ tools as direct subprocesses. Arguments are passed
// as an argv slice; no shell is involved.
type Runner struct {
	binDir    string
	timeout   time.Duration
	maxOutput int64
	threads   int
	logger    *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config) *Runner {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Runner{
		binDir:    cfg.BinDir,
		timeout:   cfg.Timeout,
		maxOutput: cfg.MaxOutput,
		threads:   cfg.Threads,
		logger:    l,
	}
}

// Path returns the executable path for tool.
func (r *Runner) Path(tool string) string {
	if r.binDir == "" {
		return tool
	}
	return filepath.Join(r.binDir, tool)
}

// MaxOutput returns the configured output cap in bytes. Zero means unlimited.
func (r *Runner) MaxOutput() int64 {
	return r.maxOutput
}

// Available reports whether tool can be executed.
func (r *Runner) Available(tool string) error {
	if _, err := exec.LookPath(r.Path(tool)); err != nil {
		return fmt.Errorf("%s not found: %w", tool, err)
	}
	return nil
}

// exec runs tool with args and returns its stdout. Stdout and stderr share
// the output cap; exceeding it kills the process.
func (r *Runner) exec(ctx context.Context, tool string, args []string) ([]byte, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	ctx, kill := context.WithCancelCause(ctx)
	defer kill(nil)

	limit := &outputLimit{max: r.maxOutput, kill: kill}
	stdout := &cappedBuffer{limit: limit}
	stderr := &cappedBuffer{limit: limit, keep: stderrLimit}

	cmd := exec.CommandContext(ctx, r.Path(tool), args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)
	metrics.ToolRunDuration.WithLabelValues(tool).Observe(elapsed.Seconds())

	if err == nil && limit.tripped() {
		err = errOutputLimit
	}
	if err == nil {
		metrics.ToolRunsTotal.WithLabelValues(tool, "ok").Inc()
		r.logger.Debug("Tool finished",
			zap.String("tool", tool),
			zap.Duration("took", elapsed),
		)
		return stdout.Bytes(), nil
	}

	execErr := &ExecError{Tool: tool, Stderr: stderr.String(), Err: err}
	var exitErr *exec.ExitError
	switch {
	case limit.tripped():
		execErr.Reason = ReasonOutputLimit
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		execErr.Reason = ReasonTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		execErr.Reason = ReasonCanceled
	case errors.As(err, &exitErr):
		execErr.Reason = ReasonExit
		execErr.ExitCode = exitErr.ExitCode()
	default:
		execErr.Reason = ReasonStart
	}
	metrics.ToolRunsTotal.WithLabelValues(tool, execErr.Reason).Inc()

	r.logger.Warn("Tool failed",
		zap.String("tool", tool),
		zap.String("reason", execErr.Reason),
		zap.Int("exit_code", execErr.ExitCode),
		zap.Duration("took", elapsed),
		zap.String("stderr", execErr.Stderr),
	)
	return stdout.Bytes(), execErr
}

// checkFileSize fails with an output limit error when the tool wrote more than the cap to path.
func (r *Runner) checkFileSize(tool, path string) error {
	if r.maxOutput <= 0 {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return &ExecError{Tool: tool, Reason: ReasonStart, Err: fmt.Errorf("output file: %w", err)}
	}
	if info.Size() > r.maxOutput {
		metrics.ToolRunsTotal.WithLabelValues(tool, ReasonOutputLimit).Inc()
		return &ExecError{
			Tool:   tool,
			Reason: ReasonOutputLimit,
			Stderr: fmt.Sprintf("%d bytes written, limit %d", info.Size(), r.maxOutput),
		}
	}
	return nil
}

var errOutputLimit = errors.New("output limit exceeded")

// outputLimit is the byte budget shared by a process's output streams.
type outputLimit struct {
	mu    sync.Mutex
	max   int64
	total int64
	kill  context.CancelCauseFunc
}

func (l *outputLimit) tripped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.max > 0 && l.total > l.max
}

func (l *outputLimit) add(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total += int64(n)
	if l.max > 0 && l.total > l.max {
		l.kill(errOutputLimit)
		return false
	}
	return true
}

// cappedBuffer stops retaining data once the shared limit trips.
// keep bounds how much a single stream retains; zero means no per-stream bound.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit *outputLimit
	keep  int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if !c.limit.add(len(p)) {
		return len(p), nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	chunk := p
	if c.keep > 0 {
		room := c.keep - c.buf.Len()
		if room <= 0 {
			return len(p), nil
		}
		if len(chunk) > room {
			chunk = chunk[:room]
		}
	}
	c.buf.Write(chunk)
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Bytes()
}

func (c *cappedBuffer) String() string {
	return string(c.Bytes())
}
