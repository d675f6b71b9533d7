package infrastructure

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

type fakeHandle struct {
	r       *io.PipeReader
	w       *io.PipeWriter
	waitErr error
	done    chan struct{}
	once    sync.Once
	kills   int
	mu      sync.Mutex
}

func newFakeHandle() *fakeHandle {
	r, w := io.Pipe()
	return &fakeHandle{r: r, w: w, done: make(chan struct{})}
}

func (h *fakeHandle) Output() io.Reader { return h.r }

func (h *fakeHandle) Wait() error {
	<-h.done
	return h.waitErr
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills++
	h.mu.Unlock()
	h.exit()
	return nil
}

func (h *fakeHandle) exit() {
	h.once.Do(func() {
		h.w.Close()
		close(h.done)
	})
}

type fakeLauncher struct {
	handle *fakeHandle
	err    error
	binary string
	args   []string
}

func (l *fakeLauncher) Launch(_ context.Context, binary string, args []string) (Handle, error) {
	l.binary, l.args = binary, args
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

type recordingTranscript struct {
	mu      sync.Mutex
	headers []string
	lines   []string
	footers []int
}

func (t *recordingTranscript) WriteProcessHeader(_, commandLine string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers = append(t.headers, commandLine)
}

func (t *recordingTranscript) WriteProcessLine(_, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
}

func (t *recordingTranscript) WriteProcessFooter(_ string, exitCode int, _ string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.footers = append(t.footers, exitCode)
}

func testDownloaderConfig() domain.DownloaderConfig {
	return domain.DownloaderConfig{
		Binary:              "yt-dlp",
		AudioQuality:        "320k",
		PlaylistURLTemplate: "https://www.youtube.com/playlist?list=%s",
	}
}

func TestSupervisor_BuildArgs(t *testing.T) {
	s := NewSupervisor(testDownloaderConfig())
	req := domain.AcquisitionRequest{PlaylistID: "PL123", TargetFormat: domain.FormatFLAC}

	args := s.BuildArgs(req, "/lib/songs/.incomplete/sess")

	assert.Contains(t, args, "-x")
	assert.Contains(t, args, "--audio-format=flac")
	assert.Contains(t, args, "--audio-quality=320k")
	assert.Contains(t, args, "--write-thumbnail")
	assert.Contains(t, args, "--embed-thumbnail")
	assert.Contains(t, args, "--convert-thumbnails=png")
	assert.Contains(t, args, "--embed-metadata")
	assert.Contains(t, args, "/lib/songs/.incomplete/sess/%(id)s.%(ext)s")
	assert.Equal(t, "https://www.youtube.com/playlist?list=PL123", args[len(args)-1])
}

func collectLines(t *testing.T, p *Process) []string {
	t.Helper()
	var lines []string
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-p.Lines():
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-timeout:
			t.Fatal("lines channel never closed")
		}
	}
}

func TestSupervisor_StreamsLinesThenExit(t *testing.T) {
	handle := newFakeHandle()
	launcher := &fakeLauncher{handle: handle}
	transcript := &recordingTranscript{}
	s := NewSupervisor(testDownloaderConfig(), WithLauncher(launcher), WithTranscript(transcript))

	p, err := s.Start(context.Background(), "sess-1", domain.AcquisitionRequest{PlaylistID: "PL123", TargetFormat: domain.FormatMP3}, "/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "yt-dlp", launcher.binary)

	go func() {
		io.WriteString(handle.w, "[download] Downloading playlist: Road Trip\n")
		io.WriteString(handle.w, "[download] Downloading item 1 of 2\r")
		io.WriteString(handle.w, "[download] Downloading item 2 of 2\n")
		handle.exit()
	}()

	lines := collectLines(t, p)
	assert.Equal(t, []string{
		"[download] Downloading playlist: Road Trip",
		"[download] Downloading item 1 of 2",
		"[download] Downloading item 2 of 2",
	}, lines)

	status := <-p.Exit()
	assert.NoError(t, status.Err)
	assert.Equal(t, 0, status.ExitCode)

	_, open := <-p.Exit()
	assert.False(t, open, "exit is delivered once")

	assert.Len(t, transcript.headers, 1)
	assert.Contains(t, transcript.headers[0], "'/tmp/x/%(id)s.%(ext)s'")
	assert.Len(t, transcript.lines, 3)
	assert.Equal(t, []int{0}, transcript.footers)
}

func TestSupervisor_NonZeroExit(t *testing.T) {
	handle := newFakeHandle()
	handle.waitErr = errors.New("exit status 1")
	s := NewSupervisor(testDownloaderConfig(), WithLauncher(&fakeLauncher{handle: handle}))

	p, err := s.Start(context.Background(), "sess-2", domain.AcquisitionRequest{PlaylistID: "PL1", TargetFormat: domain.FormatFLAC}, "/tmp/x")
	require.NoError(t, err)
	handle.exit()

	assert.Empty(t, collectLines(t, p))
	status := <-p.Exit()
	assert.Error(t, status.Err)
	assert.Equal(t, -1, status.ExitCode)
}

func TestSupervisor_SpawnFailure(t *testing.T) {
	transcript := &recordingTranscript{}
	s := NewSupervisor(testDownloaderConfig(),
		WithLauncher(&fakeLauncher{err: errors.New("executable file not found")}),
		WithTranscript(transcript))

	p, err := s.Start(context.Background(), "sess-3", domain.AcquisitionRequest{PlaylistID: "PL1", TargetFormat: domain.FormatFLAC}, "/tmp/x")

	assert.Nil(t, p)
	assert.ErrorContains(t, err, "executable file not found")
	assert.Equal(t, []int{-1}, transcript.footers)
}

func TestProcess_KillIsIdempotent(t *testing.T) {
	handle := newFakeHandle()
	s := NewSupervisor(testDownloaderConfig(), WithLauncher(&fakeLauncher{handle: handle}))

	p, err := s.Start(context.Background(), "sess-4", domain.AcquisitionRequest{PlaylistID: "PL1", TargetFormat: domain.FormatFLAC}, "/tmp/x")
	require.NoError(t, err)

	go io.WriteString(handle.w, "[download] Downloading item 1 of 2\n")
	assert.Equal(t, "[download] Downloading item 1 of 2", <-p.Lines())

	assert.NoError(t, p.Kill())
	assert.NoError(t, p.Kill())

	collectLines(t, p)
	<-p.Exit()
	assert.Equal(t, 1, handle.kills)
}

func TestProcess_KillAfterExitIsNoop(t *testing.T) {
	handle := newFakeHandle()
	s := NewSupervisor(testDownloaderConfig(), WithLauncher(&fakeLauncher{handle: handle}))

	p, err := s.Start(context.Background(), "sess-5", domain.AcquisitionRequest{PlaylistID: "PL1", TargetFormat: domain.FormatFLAC}, "/tmp/x")
	require.NoError(t, err)

	handle.exit()
	collectLines(t, p)
	<-p.Exit()

	assert.NoError(t, p.Kill())
	handle.mu.Lock()
	defer handle.mu.Unlock()
	assert.Equal(t, 0, handle.kills, "a reaped process is not signalled")
}

func TestFormatCommandLine(t *testing.T) {
	got := FormatCommandLine("yt-dlp", "-x", "--audio-format=mp3", "it's here")
	assert.Equal(t, `yt-dlp -x --audio-format=mp3 'it'"'"'s here'`, got)
	assert.Equal(t, "''", shellQuote(""))
}
