package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/internal/infrastructure"
)

// Messages for session-level failures
const (
	MsgStagingUnavailable = "Couldn't prepare download directory."
	MsgSpawnFailed        = "Couldn't start the downloader."
	MsgDownloadFailed     = "Download failed."
)

// cancelNoticeTimeout bounds the send of the explicit-cancel notice
const cancelNoticeTimeout = time.Second

// SessionInfo is a point-in-time view of a session
type SessionInfo struct {
	ID           string              `json:"id"`
	PlaylistID   string              `json:"playlist_id"`
	Format       domain.MediaFormat  `json:"format"`
	State        domain.SessionState `json:"state"`
	PlaylistName string              `json:"playlist_name,omitempty"`
	Current      int                 `json:"current"`
	Total        int                 `json:"total"`
	StartedAt    time.Time           `json:"started_at"`
}

// Session is one acquisition: a downloader run, its event stream and
// the reconciliation that follows it
type Session struct {
	id      string
	request domain.AcquisitionRequest
	manager *AcquisitionManager
	record  *domain.Acquisition

	events    chan domain.ProgressEvent
	done      chan struct{}
	cancel    context.CancelFunc
	explicit  atomic.Bool
	startedAt time.Time

	mu           sync.RWMutex
	state        domain.SessionState
	playlistName string
	current      int
	total        int
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Events yields the session's events in order. It is closed after the
// terminal event, or after cancellation.
func (s *Session) Events() <-chan domain.ProgressEvent { return s.events }

// Done is closed once the session reached a terminal state and released
// its process and staging
func (s *Session) Done() <-chan struct{} { return s.done }

// Cancel kills the downloader and discards staging. The stream receives
// a cancellation notice before it closes.
func (s *Session) Cancel() {
	s.explicit.Store(true)
	s.cancel()
}

// State returns the current lifecycle state
func (s *Session) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info returns a snapshot of the session
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		ID:           s.id,
		PlaylistID:   s.request.PlaylistID,
		Format:       s.request.TargetFormat,
		State:        s.state,
		PlaylistName: s.playlistName,
		Current:      s.current,
		Total:        s.total,
		StartedAt:    s.startedAt,
	}
}

func (s *Session) setState(state domain.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) observe(ev domain.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case domain.EventPlaylistNamed:
		s.playlistName = ev.Name
		s.record.PlaylistName = ev.Name
	case domain.EventItemProgress:
		s.current, s.total = ev.Current, ev.Total
	}
}

// emit hands an event to the consumer, giving up once ctx is done
func (s *Session) emit(ctx context.Context, ev domain.ProgressEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	m := s.manager
	defer close(s.done)
	defer m.release(s)
	defer close(s.events)

	dir, err := m.files.PrepareSession(s.id)
	if err != nil {
		s.fail(ctx, MsgStagingUnavailable, err)
		return
	}

	proc, err := m.supervisor.Start(ctx, s.id, s.request, dir)
	if err != nil {
		m.files.DiscardSession(s.id)
		s.fail(ctx, MsgSpawnFailed, err)
		return
	}

	s.setState(domain.StateRunning)
	s.record.MarkRunning()
	m.persist(s.record)
	m.notifier.NotifyAcquisitionStarted(s.request)
	m.log.LogEvent("Acquisition running",
		zap.String("session_id", s.id),
		zap.String("playlist_id", s.request.PlaylistID),
		zap.String("format", string(s.request.TargetFormat)))

	var tracker infrastructure.ProgressTracker
	lines := proc.Lines()
	for lines != nil {
		select {
		case <-ctx.Done():
			s.abort(proc)
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			ev, ok := infrastructure.ParseProgressLine(line)
			if !ok || !tracker.Accept(ev) {
				continue
			}
			s.observe(ev)
			if !s.emit(ctx, ev) {
				s.abort(proc)
				return
			}
		}
	}

	var status infrastructure.ExitStatus
	select {
	case <-ctx.Done():
		s.abort(proc)
		return
	case status = <-proc.Exit():
	}

	s.reconcile(ctx, tracker, status)
}

func (s *Session) reconcile(ctx context.Context, tracker infrastructure.ProgressTracker, status infrastructure.ExitStatus) {
	m := s.manager
	current, total := tracker.Current(), tracker.Total()

	m.log.LogEvent("Downloader exited",
		zap.String("session_id", s.id),
		zap.Int("exit_code", status.ExitCode),
		zap.Int("current", current),
		zap.Int("total", total))

	switch {
	case current < total:
		s.emit(ctx, domain.ErrorEvent(domain.MsgDownloadCancelled))
	case total == 0 && status.Err != nil:
		s.emit(ctx, domain.ErrorEvent(MsgDownloadFailed))
	}

	s.setState(domain.StateReconciling)
	s.mu.Lock()
	s.record.MarkReconciling(current, total)
	if status.Err != nil {
		s.record.ErrorMessage = fmt.Sprintf("downloader exited with code %d: %v", status.ExitCode, status.Err)
	}
	s.mu.Unlock()
	m.persist(s.record)

	// the process is gone; what landed is committed even if the caller left
	commitCtx := context.WithoutCancel(ctx)
	emit := func(ev domain.ProgressEvent) { s.emit(ctx, ev) }

	result := m.reconciler.Reconcile(commitCtx, ReconcileInput{
		SessionID:    s.id,
		Request:      s.request,
		PlaylistName: tracker.PlaylistName(),
	}, emit)

	snapshot, err := Snapshot(commitCtx, m.store)
	if err != nil {
		s.fail(ctx, MsgLibraryUnavailable, err)
		return
	}

	s.emit(ctx, domain.EndEvent(snapshot))

	s.setState(domain.StateCompleted)
	s.record.MarkCompleted(result.SongsAdded, result.Errors)
	m.persist(s.record)

	name := tracker.PlaylistName()
	if name == "" {
		name = s.request.PlaylistID
	}
	m.notifier.NotifyAcquisitionCompleted(name, result.SongsAdded)
	m.log.LogEvent("Acquisition completed",
		zap.String("session_id", s.id),
		zap.Int("songs_added", result.SongsAdded),
		zap.Int("errors", result.Errors))
}

// abort kills the process, waits for it and discards everything it wrote
func (s *Session) abort(proc *infrastructure.Process) {
	m := s.manager

	if err := proc.Kill(); err != nil {
		m.log.LogError("Failed to kill downloader", zap.String("session_id", s.id), zap.Error(err))
	}
	for range proc.Lines() {
	}
	<-proc.Exit()

	if err := m.files.DiscardSession(s.id); err != nil {
		m.log.LogError("Failed to discard staging", zap.String("session_id", s.id), zap.Error(err))
	}

	s.setState(domain.StateCancelled)
	s.record.MarkCancelled()
	m.persist(s.record)
	m.notifier.NotifyAcquisitionCancelled(s.request.PlaylistID)
	m.log.LogEvent("Acquisition cancelled",
		zap.String("session_id", s.id),
		zap.Bool("explicit", s.explicit.Load()))

	if s.explicit.Load() {
		select {
		case s.events <- domain.ErrorEvent(domain.MsgAcquisitionCancelled):
		case <-time.After(cancelNoticeTimeout):
		}
	}
}

func (s *Session) fail(ctx context.Context, message string, err error) {
	m := s.manager
	if err == nil {
		err = errors.New(message)
	}

	s.setState(domain.StateFailed)
	s.record.MarkFailed(err)
	m.persist(s.record)
	m.notifier.NotifyAcquisitionFailed(s.request.PlaylistID, err)
	m.log.LogError("Acquisition failed",
		zap.String("session_id", s.id),
		zap.String("playlist_id", s.request.PlaylistID),
		zap.Error(err))

	s.emit(ctx, domain.FatalEvent(message))
}
