package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/internal/infrastructure"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

var ErrShuttingDown = errors.New("acquisition manager is shutting down")

// ProcessStarter launches the downloader for a session
type ProcessStarter interface {
	Start(ctx context.Context, sessionID string, req domain.AcquisitionRequest, stagingDir string) (*infrastructure.Process, error)
}

// Notifier receives acquisition lifecycle notifications
type Notifier interface {
	NotifyAcquisitionStarted(req domain.AcquisitionRequest)
	NotifyAcquisitionCompleted(playlistName string, songsAdded int)
	NotifyAcquisitionCancelled(playlistID string)
	NotifyAcquisitionFailed(playlistID string, err error)
}

type nopNotifier struct{}

func (nopNotifier) NotifyAcquisitionStarted(domain.AcquisitionRequest) {}
func (nopNotifier) NotifyAcquisitionCompleted(string, int)             {}
func (nopNotifier) NotifyAcquisitionCancelled(string)                  {}
func (nopNotifier) NotifyAcquisitionFailed(string, error)              {}

// AcquisitionManager starts sessions and tracks the active ones.
// Sessions are independent; there is no limit on how many run at once.
type AcquisitionManager struct {
	supervisor ProcessStarter
	files      LibraryFiles
	store      domain.LibraryStore
	history    domain.AcquisitionRepository
	reconciler *Reconciler
	notifier   Notifier
	log        *logger.LoggerAdapter

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
	wg       sync.WaitGroup
}

// NewAcquisitionManager creates a new acquisition manager
func NewAcquisitionManager(
	supervisor ProcessStarter,
	files LibraryFiles,
	store domain.LibraryStore,
	inspector domain.MediaInspector,
	history domain.AcquisitionRepository,
	notifier Notifier,
	log *logger.LoggerAdapter,
) *AcquisitionManager {
	if log == nil {
		log = logger.NewNopAdapter()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &AcquisitionManager{
		supervisor: supervisor,
		files:      files,
		store:      store,
		history:    history,
		reconciler: NewReconciler(files, store, inspector, log),
		notifier:   notifier,
		log:        log,
		sessions:   make(map[string]*Session),
	}
}

// Start begins a session for req. The session lives until its terminal
// event, until ctx is done, or until it is cancelled; ctx ending is
// treated as the caller going away.
func (m *AcquisitionManager) Start(ctx context.Context, req domain.AcquisitionRequest) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}

	record := domain.NewAcquisition(req)
	if m.history != nil {
		if err := m.history.Create(record); err != nil {
			return nil, fmt.Errorf("failed to record acquisition: %w", err)
		}
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        record.ID,
		request:   req,
		manager:   m,
		record:    record,
		events:    make(chan domain.ProgressEvent),
		done:      make(chan struct{}),
		cancel:    cancel,
		startedAt: time.Now(),
		state:     domain.StateInitiated,
	}
	m.sessions[s.id] = s

	m.log.LogEvent("Acquisition started",
		zap.String("session_id", s.id),
		zap.String("playlist_id", req.PlaylistID),
		zap.String("format", string(req.TargetFormat)))

	m.wg.Add(1)
	go s.run(sessionCtx)

	return s, nil
}

// release is called by a session once it is terminal
func (m *AcquisitionManager) release(s *Session) {
	s.cancel()
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	m.wg.Done()
}

func (m *AcquisitionManager) persist(record *domain.Acquisition) {
	if m.history == nil {
		return
	}
	if err := m.history.Update(record); err != nil {
		m.log.LogError("Failed to update acquisition record",
			zap.String("session_id", record.ID),
			zap.Error(err))
	}
}

// Session returns an active session by id
func (m *AcquisitionManager) Session(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Cancel explicitly cancels an active session
func (m *AcquisitionManager) Cancel(id string) error {
	s, ok := m.Session(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.Cancel()
	return nil
}

// Active lists the running sessions, oldest first
func (m *AcquisitionManager) Active() []SessionInfo {
	m.mu.RLock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// ActiveCount returns the number of running sessions
func (m *AcquisitionManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ShuttingDown reports whether Shutdown was called
func (m *AcquisitionManager) ShuttingDown() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// History lists acquisition records, newest first
func (m *AcquisitionManager) History(filters map[string]interface{}) ([]*domain.Acquisition, error) {
	if m.history == nil {
		return []*domain.Acquisition{}, nil
	}
	return m.history.FindAll(filters)
}

// Acquisition returns one acquisition record
func (m *AcquisitionManager) Acquisition(id string) (*domain.Acquisition, error) {
	if m.history == nil {
		return nil, domain.ErrNotFound
	}
	return m.history.FindByID(id)
}

// Stats returns acquisition statistics
func (m *AcquisitionManager) Stats() (*domain.AcquisitionStats, error) {
	if m.history == nil {
		return &domain.AcquisitionStats{}, nil
	}
	return m.history.GetStats()
}

// Shutdown refuses new sessions, cancels the active ones and waits for
// them to release their processes and staging
func (m *AcquisitionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.LogEvent("Acquisition manager stopped", zap.Int("cancelled", len(sessions)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
