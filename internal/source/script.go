package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/georefresh/internal/log"
)

// stderrTailLines bounds how much stderr a CommandError carries.
const stderrTailLines = 20

// CommandFactoryFunc creates an exec.Cmd. Tests swap it to avoid a shell.
type CommandFactoryFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// ScriptTransformer runs an external command that writes the artifacts,
// optionally preceded by a setup command that installs its dependencies.
type ScriptTransformer struct {
	dir            string
	setup          string
	command        string
	timeout        time.Duration
	env            []string
	commandFactory CommandFactoryFunc
}

// ScriptOption configures a ScriptTransformer.
type ScriptOption func(*ScriptTransformer)

// WithSetup sets the dependency install command run by Prepare.
func WithSetup(cmd string) ScriptOption {
	return func(s *ScriptTransformer) {
		s.setup = cmd
	}
}

// WithTimeout bounds each command. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) ScriptOption {
	return func(s *ScriptTransformer) {
		s.timeout = d
	}
}

// WithEnv appends KEY=VALUE entries to the command environment.
func WithEnv(env ...string) ScriptOption {
	return func(s *ScriptTransformer) {
		s.env = append(s.env, env...)
	}
}

// WithCommandFactory overrides exec.CommandContext.
func WithCommandFactory(fn CommandFactoryFunc) ScriptOption {
	return func(s *ScriptTransformer) {
		s.commandFactory = fn
	}
}

// NewScript creates a transformer that runs command through the shell.
// dir is where Prepare runs the setup command.
func NewScript(dir, command string, opts ...ScriptOption) *ScriptTransformer {
	s := &ScriptTransformer{
		dir:            dir,
		command:        command,
		commandFactory: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns "script".
func (s *ScriptTransformer) Name() string {
	return "script"
}

// Prepare runs the setup command, if any.
func (s *ScriptTransformer) Prepare(ctx context.Context) error {
	if strings.TrimSpace(s.setup) == "" {
		return nil
	}
	log.Info(log.CatFetch, "running setup", "command", s.setup)
	return s.run(ctx, s.dir, s.setup)
}

// Transform runs the configured command in workDir.
func (s *ScriptTransformer) Transform(ctx context.Context, workDir string) error {
	log.Info(log.CatFetch, "running transform", "command", s.command, "dir", workDir)
	return s.run(ctx, workDir, s.command)
}

func (s *ScriptTransformer) run(ctx context.Context, dir, command string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := s.commandFactory(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), s.env...)
	cmd.WaitDelay = 5 * time.Second

	tail := newTailWriter(stderrTailLines)
	cmd.Stdout = &lineLogger{prefix: "stdout"}
	cmd.Stderr = tail

	start := time.Now()
	err := cmd.Run()
	if err == nil {
		log.Debug(log.CatFetch, "command finished", "command", command, "duration", time.Since(start))
		return nil
	}

	cerr := &CommandError{Command: command, ExitCode: -1, Stderr: tail.String(), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		cerr.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		cerr.Err = fmt.Errorf("%w (after %s)", ctxErr, time.Since(start).Round(time.Millisecond))
	}
	return cerr
}

// lineLogger forwards complete lines of output to the debug log.
type lineLogger struct {
	prefix string
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: put it back for the next write.
			l.buf.Reset()
			l.buf.WriteString(line)
			return len(p), nil
		}
		log.Debug(log.CatFetch, strings.TrimRight(line, "\r\n"), "stream", l.prefix)
	}
}

// tailWriter keeps the last n lines written to it.
type tailWriter struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial strings.Builder
}

func newTailWriter(n int) *tailWriter {
	return &tailWriter{n: n}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			t.push(strings.TrimRight(t.partial.String(), "\r"))
			t.partial.Reset()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *tailWriter) push(line string) {
	log.Debug(log.CatFetch, line, "stream", "stderr")
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

// String returns the retained lines, including an unterminated last line.
func (t *tailWriter) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if t.partial.Len() > 0 {
		lines = append(append([]string(nil), lines...), t.partial.String())
		if len(lines) > t.n {
			lines = lines[len(lines)-t.n:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
