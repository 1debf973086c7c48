// Package source wraps an external downloader process as a pull-based byte stream.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ChunkSize bounds every chunk returned by Stream.Next.
const ChunkSize = 512 * 1024

const (
	defaultBinary   = "yt-dlp"
	stderrTailBytes = 4 * 1024
	waitDelay       = 5 * time.Second
)

// DefaultArgs select the best single-file format, disable .part files and
// resizable buffers, and write the media to stdout.
var DefaultArgs = []string{
	"-f", "best",
	"--no-part",
	"--no-resize-buffer",
	"--buffer-size", "16K",
	"--quiet",
	"--no-progress",
	"-o", "-",
}

// Stream yields the downloader's output. Next and Close must not be called concurrently.
type Stream interface {
	// Next returns a non-empty chunk of at most ChunkSize bytes, io.EOF after a
	// clean exit, or a *SourceError. The chunk is only valid until the next call.
	Next() ([]byte, error)
	// Close terminates the process if it is still running and releases its pipes.
	// It is idempotent.
	Close() error
}

// Launcher starts one download per locator.
type Launcher interface {
	Launch(ctx context.Context, locator string) Stream
}

// SourceError reports a downloader that failed to start, failed while being
// read, or exited unsuccessfully.
type SourceError struct {
	Locator string
	Err     error
	Stderr  string
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("source %s: %v", e.Locator, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Config describes how the downloader is invoked.
type Config struct {
	Binary    string
	Args      []string
	ChunkSize int
	Logger    *slog.Logger
}

// ExecLauncher runs the downloader as a child process.
type ExecLauncher struct {
	binary    string
	args      []string
	chunkSize int
	logger    *slog.Logger
}

// NewExecLauncher applies defaults to cfg and returns a launcher.
func NewExecLauncher(cfg Config) *ExecLauncher {
	binary := strings.TrimSpace(cfg.Binary)
	if binary == "" {
		binary = defaultBinary
	}
	args := cfg.Args
	if args == nil {
		args = DefaultArgs
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 || chunkSize > ChunkSize {
		chunkSize = ChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecLauncher{
		binary:    binary,
		args:      append([]string(nil), args...),
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Launch starts the downloader for locator. Start failures are not returned
// here; they surface from the first call to Next.
func (l *ExecLauncher) Launch(ctx context.Context, locator string) Stream {
	args := append(append([]string(nil), l.args...), locator)
	cmd := exec.CommandContext(ctx, l.binary, args...)
	cmd.WaitDelay = waitDelay
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	s := &processStream{
		locator: locator,
		cmd:     cmd,
		stderr:  stderr,
		buf:     make([]byte, l.chunkSize),
		logger:  l.logger,
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.startErr = &SourceError{Locator: locator, Err: fmt.Errorf("open stdout: %w", err)}
		return s
	}
	if err := cmd.Start(); err != nil {
		s.startErr = &SourceError{Locator: locator, Err: fmt.Errorf("start %s: %w", l.binary, err)}
		return s
	}
	s.stdout = stdout
	l.logger.Debug("downloader started", "pid", cmd.Process.Pid, "locator", locator)
	return s
}

type processStream struct {
	locator string
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	stderr  *tailBuffer
	buf     []byte
	logger  *slog.Logger

	startErr error
	finalErr error
	reaped   bool

	closeOnce sync.Once
	closeErr  error
}

func (s *processStream) Next() ([]byte, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	if s.finalErr != nil {
		return nil, s.finalErr
	}
	for {
		n, err := s.stdout.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if errors.Is(err, io.EOF) {
			s.finalErr = s.reap()
			return nil, s.finalErr
		}
		if err != nil {
			s.finalErr = &SourceError{Locator: s.locator, Err: fmt.Errorf("read stdout: %w", err), Stderr: s.stderr.String()}
			return nil, s.finalErr
		}
	}
}

// reap waits for a process whose stdout reached EOF and converts its exit status.
func (s *processStream) reap() error {
	s.reaped = true
	if err := s.cmd.Wait(); err != nil {
		return &SourceError{Locator: s.locator, Err: fmt.Errorf("downloader exited: %w", err), Stderr: s.stderr.String()}
	}
	return io.EOF
}

func (s *processStream) Close() error {
	s.closeOnce.Do(func() {
		if s.startErr != nil || s.reaped {
			return
		}
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			s.closeErr = fmt.Errorf("kill downloader: %w", err)
		}
		s.reaped = true
		// The exit status of a killed process carries no information.
		_ = s.cmd.Wait()
		s.logger.Debug("downloader terminated", "pid", s.cmd.Process.Pid, "locator", s.locator)
	})
	return s.closeErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}
