package infrastructure

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// Handle is a running downloader process
type Handle interface {
	// Output yields combined stdout and stderr until every writer closes
	Output() io.Reader
	// Wait blocks until the process exits
	Wait() error
	// Kill terminates the process and its children
	Kill() error
}

// Launcher starts downloader processes
type Launcher interface {
	Launch(ctx context.Context, binary string, args []string) (Handle, error)
}

// Transcript receives the raw downloader output of each session
type Transcript interface {
	WriteProcessHeader(sessionID, commandLine string)
	WriteProcessLine(sessionID, line string)
	WriteProcessFooter(sessionID string, exitCode int, detail string)
}

// SupervisorOption configures the supervisor
type SupervisorOption func(*Supervisor)

// WithLauncher injects a custom launcher (primarily for tests)
func WithLauncher(l Launcher) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.launcher = l
		}
	}
}

// WithTranscript sets where raw output is recorded
func WithTranscript(t Transcript) SupervisorOption {
	return func(s *Supervisor) {
		s.transcript = t
	}
}

// Supervisor runs yt-dlp for one playlist at a time per session
type Supervisor struct {
	config     domain.DownloaderConfig
	launcher   Launcher
	transcript Transcript
}

// NewSupervisor creates a downloader supervisor
func NewSupervisor(config domain.DownloaderConfig, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		config:   config,
		launcher: execLauncher{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildArgs builds the yt-dlp argument list for a request
func (s *Supervisor) BuildArgs(req domain.AcquisitionRequest, stagingDir string) []string {
	quality := s.config.AudioQuality
	if quality == "" {
		quality = "320k"
	}
	return []string{
		"-x",
		"--audio-format=" + string(req.TargetFormat),
		"--audio-quality=" + quality,
		"--write-thumbnail",
		"--embed-thumbnail",
		"--convert-thumbnails=png",
		"--embed-metadata",
		"--newline",
		"--yes-playlist",
		"-o", stagingDir + string(os.PathSeparator) + "%(id)s.%(ext)s",
		s.PlaylistURL(req.PlaylistID),
	}
}

// PlaylistURL builds the source URL for a playlist id
func (s *Supervisor) PlaylistURL(playlistID string) string {
	tmpl := s.config.PlaylistURLTemplate
	if !strings.Contains(tmpl, "%s") {
		tmpl = "https://www.youtube.com/playlist?list=%s"
	}
	return fmt.Sprintf(tmpl, playlistID)
}

// ExitStatus describes how the downloader process ended
type ExitStatus struct {
	ExitCode int
	Err      error
}

// Process is one supervised downloader run
type Process struct {
	sessionID  string
	handle     Handle
	transcript Transcript

	lines    chan string
	exit     chan ExitStatus
	killed   chan struct{}
	killOnce sync.Once
	killErr  error

	mu     sync.Mutex
	exited bool
}

// Start launches the downloader writing into stagingDir
func (s *Supervisor) Start(ctx context.Context, sessionID string, req domain.AcquisitionRequest, stagingDir string) (*Process, error) {
	binary := s.config.Binary
	if binary == "" {
		binary = "yt-dlp"
	}
	args := s.BuildArgs(req, stagingDir)

	if s.transcript != nil {
		s.transcript.WriteProcessHeader(sessionID, FormatCommandLine(binary, args...))
	}

	handle, err := s.launcher.Launch(ctx, binary, args)
	if err != nil {
		if s.transcript != nil {
			s.transcript.WriteProcessFooter(sessionID, -1, err.Error())
		}
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	p := &Process{
		sessionID:  sessionID,
		handle:     handle,
		transcript: s.transcript,
		lines:      make(chan string),
		exit:       make(chan ExitStatus, 1),
		killed:     make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Lines yields output lines in order; it is closed when output ends
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Exit delivers the exit status once, after Lines is closed
func (p *Process) Exit() <-chan ExitStatus {
	return p.exit
}

// Kill terminates the process. Later calls, and calls after the
// process was reaped, are no-ops.
func (p *Process) Kill() error {
	p.killOnce.Do(func() {
		close(p.killed)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.exited {
			return
		}
		p.killErr = p.handle.Kill()
	})
	return p.killErr
}

func (p *Process) run() {
	scanner := bufio.NewScanner(p.handle.Output())
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(ScanOutputLines)

	for scanner.Scan() {
		line := scanner.Text()
		if p.transcript != nil {
			p.transcript.WriteProcessLine(p.sessionID, line)
		}
		select {
		case p.lines <- line:
		case <-p.killed:
		}
	}
	close(p.lines)

	// drain whatever is left so the child never blocks on a full pipe
	io.Copy(io.Discard, p.handle.Output())

	status := ExitStatus{Err: p.handle.Wait()}
	status.ExitCode = exitCode(status.Err)
	// the pid may be reused from here on
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()

	if p.transcript != nil {
		detail := ""
		if status.Err != nil {
			detail = status.Err.Error()
		}
		p.transcript.WriteProcessFooter(p.sessionID, status.ExitCode, detail)
	}
	p.exit <- status
	close(p.exit)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// execLauncher runs real processes
type execLauncher struct{}

func (execLauncher) Launch(_ context.Context, binary string, args []string) (Handle, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("output pipe: %w", err)
	}

	cmd := exec.Command(binary, args...) //nolint:gosec
	cmd.Stdout = w
	cmd.Stderr = w
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	// the child holds its own copy
	w.Close()

	return &execHandle{cmd: cmd, output: r}, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	output *os.File
}

func (h *execHandle) Output() io.Reader { return h.output }

func (h *execHandle) Wait() error {
	defer h.output.Close()
	return h.cmd.Wait()
}

func (h *execHandle) Kill() error {
	err := killProcessTree(h.cmd.Process)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// FormatCommandLine renders a command for the transcript, quoting
// arguments the way a shell would need them
func FormatCommandLine(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(binary))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$`\\!*?[](){}|;<>&~#%") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
