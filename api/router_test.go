package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Angus-Paillaugue/music-player/internal/app"
	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/internal/infrastructure"
)

// scriptLauncher prints lines and optionally blocks until killed
type scriptLauncher struct {
	lines []string
	block bool
}

func (l *scriptLauncher) Launch(_ context.Context, _ string, _ []string) (infrastructure.Handle, error) {
	r, w := io.Pipe()
	h := &pipeHandle{r: r, w: w, killed: make(chan struct{}), done: make(chan struct{})}
	go func() {
		for _, line := range l.lines {
			fmt.Fprintln(w, line)
		}
		if l.block {
			<-h.killed
			h.err = errors.New("signal: killed")
		}
		w.Close()
		close(h.done)
	}()
	return h, nil
}

type pipeHandle struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	killed   chan struct{}
	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (h *pipeHandle) Output() io.Reader { return h.r }

func (h *pipeHandle) Wait() error {
	<-h.done
	return h.err
}

func (h *pipeHandle) Kill() error {
	h.killOnce.Do(func() {
		close(h.killed)
		h.w.CloseWithError(errors.New("killed"))
	})
	return nil
}

// stemInspector names every file after its stem
type stemInspector struct{}

func (stemInspector) Inspect(path string) (*domain.MediaInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	name := filepath.Base(path)
	return &domain.MediaInfo{
		Title:  strings.TrimSuffix(name, filepath.Ext(name)),
		Artist: domain.UnknownArtist,
	}, nil
}

type testServer struct {
	*httptest.Server
	cfg     *domain.Config
	manager *app.AcquisitionManager
	history *infrastructure.SQLiteAcquisitionRepository
}

func newTestServer(t *testing.T, launcher infrastructure.Launcher) *testServer {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.Library.BaseDir = t.TempDir()
	cfg.Stream.KeepAliveInterval = 50 * time.Millisecond

	area := infrastructure.NewMediaArea(cfg.Library)
	require.NoError(t, area.EnsureLayout())

	db, err := infrastructure.OpenSQLite(cfg.Library.DatabasePath())
	require.NoError(t, err)
	t.Cleanup(func() { infrastructure.CloseSQLite(db) })

	store := infrastructure.NewSQLiteLibraryStore(db)
	history := infrastructure.NewSQLiteAcquisitionRepository(db)
	inspector := stemInspector{}
	supervisor := infrastructure.NewSupervisor(cfg.Downloader, infrastructure.WithLauncher(launcher))

	manager := app.NewAcquisitionManager(supervisor, area, store, inspector, history, nil, nil)
	scanner := app.NewLibraryScanner(area, store, inspector, nil)

	srv := httptest.NewServer(SetupRouter(cfg, manager, scanner, store, nil))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		manager.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{Server: srv, cfg: cfg, manager: manager, history: history}
}

// readSSE decodes every data frame of an event stream
func readSSE(t *testing.T, body io.Reader) ([]domain.ProgressEvent, int) {
	t.Helper()
	var events []domain.ProgressEvent
	keepAlives := 0
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			var ev domain.ProgressEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &ev))
			events = append(events, ev)
		case line == ": keep-alive":
			keepAlives++
		}
	}
	return events, keepAlives
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

func TestAcquire_ServerSentEvents(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{lines: []string{
		"[download] Downloading playlist: Road Trip",
		"[download] Downloading item 1 of 1",
	}})

	resp, err := http.Get(ts.URL + "/api/v1/playlists/acquire?playlistId=PL123&format=mp3")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	sessionID := resp.Header.Get("X-Session-ID")
	assert.NotEmpty(t, sessionID)

	events, _ := readSSE(t, resp.Body)
	require.Len(t, events, 3)
	assert.Equal(t, domain.PlaylistNamed("Road Trip"), events[0])
	assert.Equal(t, domain.ItemProgress(1, 1), events[1])
	require.Equal(t, domain.EventEnd, events[2].Kind)
	require.Len(t, events[2].Snapshot.Playlists, 1)
	assert.Equal(t, "Road Trip", events[2].Snapshot.Playlists[0].Name)

	waitFor(t, func() bool { return ts.manager.ActiveCount() == 0 })

	resp, err = http.Get(ts.URL + "/api/v1/acquisitions/" + sessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	var record domain.Acquisition
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, domain.StateCompleted, record.Status)
	assert.Equal(t, domain.FormatMP3, record.Format)
}

func TestAcquire_InvalidRequest(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{})

	for _, query := range []string{"", "?playlistId=", "?playlistId=PL1&format=wav", "?playlistId=a/b"} {
		resp, err := http.Get(ts.URL + "/api/v1/playlists/acquire" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
	assert.Equal(t, 0, ts.manager.ActiveCount())
}

func TestAcquire_KeepAliveAndExplicitCancel(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{
		lines: []string{"[download] Downloading item 1 of 5"},
		block: true,
	})

	resp, err := http.Get(ts.URL + "/api/v1/playlists/acquire?playlistId=PL123")
	require.NoError(t, err)
	defer resp.Body.Close()
	sessionID := resp.Header.Get("X-Session-ID")

	waitFor(t, func() bool {
		active := ts.manager.Active()
		return len(active) == 1 && active[0].Current == 1
	})

	activeResp, err := http.Get(ts.URL + "/api/v1/acquisitions/active")
	require.NoError(t, err)
	var active []app.SessionInfo
	require.NoError(t, json.NewDecoder(activeResp.Body).Decode(&active))
	activeResp.Body.Close()
	require.Len(t, active, 1)
	assert.Equal(t, sessionID, active[0].ID)
	assert.Equal(t, 5, active[0].Total)

	time.Sleep(150 * time.Millisecond)

	cancelResp, err := http.Post(ts.URL+"/api/v1/acquisitions/"+sessionID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusOK, cancelResp.StatusCode)

	events, keepAlives := readSSE(t, resp.Body)
	assert.Positive(t, keepAlives)
	require.Len(t, events, 2)
	assert.Equal(t, domain.ItemProgress(1, 5), events[0])
	assert.Equal(t, domain.ErrorEvent(domain.MsgAcquisitionCancelled), events[1])

	waitFor(t, func() bool { return ts.manager.ActiveCount() == 0 })
	cancelResp, err = http.Post(ts.URL+"/api/v1/acquisitions/"+sessionID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	cancelResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, cancelResp.StatusCode)
}

func TestAcquire_DisconnectCancels(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{
		lines: []string{"[download] Downloading item 1 of 2"},
		block: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/playlists/acquire?playlistId=PL123", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	sessionID := resp.Header.Get("X-Session-ID")

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.Contains(line, "songIndex") {
			break
		}
	}

	cancel()
	resp.Body.Close()

	waitFor(t, func() bool { return ts.manager.ActiveCount() == 0 })
	record, err := ts.history.FindByID(sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, record.Status)

	entries, err := os.ReadDir(ts.cfg.Library.StagingDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquire_WebSocket(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{lines: []string{
		"[download] Downloading playlist: Road Trip",
		"[download] Downloading item 1 of 1",
	}})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/playlists/acquire/ws?playlistId=PL123&format=flac"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []domain.ProgressEvent
	for {
		var ev domain.ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, domain.PlaylistNamed("Road Trip"), events[0])
	assert.Equal(t, domain.EventEnd, events[2].Kind)
}

func TestLibraryEndpoints(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{})

	resp, err := http.Get(ts.URL + "/api/v1/songs")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `[]`, string(body))

	require.NoError(t, os.WriteFile(filepath.Join(ts.cfg.Library.MediaDir(), "abc.flac"), []byte("not really flac"), 0644))

	resp, err = http.Post(ts.URL+"/api/v1/library/rescan", "application/json", nil)
	require.NoError(t, err)
	var rescan struct {
		Scanned int           `json:"scanned"`
		Added   int           `json:"added"`
		Songs   []domain.Song `json:"songs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rescan))
	resp.Body.Close()
	assert.Equal(t, 1, rescan.Scanned)
	assert.Equal(t, 1, rescan.Added)
	require.Len(t, rescan.Songs, 1)
	assert.Equal(t, "abc", rescan.Songs[0].ID)
	assert.Equal(t, "/songs/abc.flac", rescan.Songs[0].FilePath())

	resp, err = http.Get(ts.URL + "/api/v1/artists")
	require.NoError(t, err)
	var artists []domain.Artist
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&artists))
	resp.Body.Close()
	require.Len(t, artists, 1)
	assert.Equal(t, domain.UnknownArtist, artists[0].Name)

	resp, err = http.Get(ts.URL + "/songs/abc.flac")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "not really flac", string(body))

	resp, err = http.Get(ts.URL + "/songs/.incomplete/x")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndLogs(t *testing.T) {
	ts := newTestServer(t, &scriptLauncher{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"status":"ok","version":"1.0.0","acquisitions":{"active":0}}`, string(body))

	resp, err = http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/logs/categories")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `{"categories":["acquisition","error","process"]}`, string(body))

	resp, err = http.Get(ts.URL + "/api/v1/logs/bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/v1/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
