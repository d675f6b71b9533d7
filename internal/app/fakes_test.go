package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/internal/infrastructure"
)

// memoryStore is an in-memory LibraryStore
type memoryStore struct {
	mu        sync.Mutex
	artists   map[string]uint
	albums    map[string]uint
	songs     map[string]domain.NewSong
	playlists map[string]string
	links     map[string][]string

	failPlaylist bool
	failSongs    map[string]bool
	failList     bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		artists:   make(map[string]uint),
		albums:    make(map[string]uint),
		songs:     make(map[string]domain.NewSong),
		playlists: make(map[string]string),
		links:     make(map[string][]string),
		failSongs: make(map[string]bool),
	}
}

func (s *memoryStore) CreateArtistIfAbsent(_ context.Context, name string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.artists[name]; ok {
		return id, nil
	}
	id := uint(len(s.artists) + 1)
	s.artists[name] = id
	return id, nil
}

func (s *memoryStore) CreateAlbumIfAbsent(_ context.Context, title string) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.albums[title]; ok {
		return id, nil
	}
	id := uint(len(s.albums) + 1)
	s.albums[title] = id
	return id, nil
}

func (s *memoryStore) CreateSong(_ context.Context, song domain.NewSong) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSongs[song.ID] {
		return errors.New("constraint failed")
	}
	s.songs[song.ID] = song
	return nil
}

func (s *memoryStore) SongExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.songs[id]
	return ok, nil
}

func (s *memoryStore) CreatePlaylistIfAbsent(_ context.Context, name, explicitID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPlaylist {
		return "", errors.New("database is locked")
	}
	if explicitID == "" {
		explicitID = fmt.Sprintf("pl-%d", len(s.playlists)+1)
	}
	if _, ok := s.playlists[explicitID]; !ok {
		s.playlists[explicitID] = name
	}
	return explicitID, nil
}

func (s *memoryStore) AddSongToPlaylist(_ context.Context, playlistID, songID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.links[playlistID] {
		if id == songID {
			return nil
		}
	}
	s.links[playlistID] = append(s.links[playlistID], songID)
	return nil
}

func (s *memoryStore) ListSongs(context.Context) ([]domain.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failList {
		return nil, errors.New("disk I/O error")
	}
	songs := []domain.Song{}
	for _, ns := range s.songs {
		songs = append(songs, domain.Song{
			ID: ns.ID, Title: ns.Title, ArtistID: ns.ArtistID, AlbumID: ns.AlbumID,
			Duration: ns.Duration, Year: ns.Year, MediaType: ns.MediaType,
		})
	}
	sort.Slice(songs, func(i, j int) bool { return songs[i].ID < songs[j].ID })
	return songs, nil
}

func (s *memoryStore) ListAlbums(context.Context) ([]domain.Album, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	albums := []domain.Album{}
	for title, id := range s.albums {
		albums = append(albums, domain.Album{ID: id, Title: title})
	}
	return albums, nil
}

func (s *memoryStore) ListArtists(context.Context) ([]domain.Artist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artists := []domain.Artist{}
	for name, id := range s.artists {
		artists = append(artists, domain.Artist{ID: id, Name: name})
	}
	return artists, nil
}

func (s *memoryStore) ListPlaylists(context.Context) ([]domain.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playlists := []domain.Playlist{}
	for id, name := range s.playlists {
		ids := append([]string{}, s.links[id]...)
		playlists = append(playlists, domain.Playlist{ID: id, Name: name, SongIDs: ids})
	}
	return playlists, nil
}

func (s *memoryStore) songCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.songs)
}

// stubInspector answers from a table keyed by file stem
type stubInspector struct {
	infos map[string]*domain.MediaInfo
	fail  map[string]bool
}

func (i *stubInspector) Inspect(path string) (*domain.MediaInfo, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i.fail[stem] {
		return nil, errors.New("no parseable metadata")
	}
	if info, ok := i.infos[stem]; ok {
		copied := *info
		return &copied, nil
	}
	return &domain.MediaInfo{Title: stem, Artist: domain.UnknownArtist}, nil
}

// memoryHistory is an in-memory AcquisitionRepository
type memoryHistory struct {
	mu      sync.Mutex
	records map[string]domain.Acquisition
}

func newMemoryHistory() *memoryHistory {
	return &memoryHistory{records: make(map[string]domain.Acquisition)}
}

func (h *memoryHistory) Create(acq *domain.Acquisition) error { return h.Update(acq) }

func (h *memoryHistory) Update(acq *domain.Acquisition) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[acq.ID] = *acq
	return nil
}

func (h *memoryHistory) FindByID(id string) (*domain.Acquisition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	acq, ok := h.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &acq, nil
}

func (h *memoryHistory) FindAll(map[string]interface{}) ([]*domain.Acquisition, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var all []*domain.Acquisition
	for _, acq := range h.records {
		acq := acq
		all = append(all, &acq)
	}
	return all, nil
}

func (h *memoryHistory) GetStats() (*domain.AcquisitionStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &domain.AcquisitionStats{Total: int64(len(h.records))}, nil
}

// downloaderScript plays the part of yt-dlp: it writes into dir, prints
// to out and returns the process exit error. killed closes on Kill.
type downloaderScript func(dir string, out io.Writer, killed <-chan struct{}) error

type scriptedLauncher struct {
	script   downloaderScript
	spawnErr error
}

func (l *scriptedLauncher) Launch(_ context.Context, _ string, args []string) (infrastructure.Handle, error) {
	if l.spawnErr != nil {
		return nil, l.spawnErr
	}
	var dir string
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			dir = filepath.Dir(args[i+1])
		}
	}

	r, w := io.Pipe()
	h := &scriptHandle{r: r, w: w, killed: make(chan struct{}), done: make(chan struct{})}
	go func() {
		err := l.script(dir, w, h.killed)
		w.Close()
		h.err = err
		close(h.done)
	}()
	return h, nil
}

type scriptHandle struct {
	r        *io.PipeReader
	w        *io.PipeWriter
	killed   chan struct{}
	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (h *scriptHandle) Output() io.Reader { return h.r }

func (h *scriptHandle) Wait() error {
	<-h.done
	return h.err
}

func (h *scriptHandle) Kill() error {
	h.killOnce.Do(func() {
		close(h.killed)
		h.w.CloseWithError(errors.New("killed"))
	})
	return nil
}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// collectEvents reads a session's stream until it closes
func collectEvents(t *testing.T, s *Session) []domain.ProgressEvent {
	t.Helper()
	var events []domain.ProgressEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event stream did not close, got %d events", len(events))
		}
	}
}
