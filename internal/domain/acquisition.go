package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidPlaylistID = errors.New("invalid playlist id")
	ErrUnsupportedFormat = errors.New("unsupported media format")
	ErrSessionNotFound   = errors.New("acquisition session not found")
)

// MediaFormat is the audio codec the downloader extracts to
type MediaFormat string

const (
	FormatFLAC MediaFormat = "flac"
	FormatMP3  MediaFormat = "mp3"
)

// SupportedFormats lists every format an acquisition may target
var SupportedFormats = []MediaFormat{FormatFLAC, FormatMP3}

// ParseMediaFormat normalizes and validates a format string
func ParseMediaFormat(s string) (MediaFormat, error) {
	f := MediaFormat(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedFormats {
		if f == supported {
			return f, nil
		}
	}
	return "", ErrUnsupportedFormat
}

// Extension returns the file extension (with dot) for the format
func (f MediaFormat) Extension() string {
	return "." + string(f)
}

// playlistIDPattern matches the opaque identifiers the source hands out
var playlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// AcquisitionRequest is one incoming request to fetch a playlist
type AcquisitionRequest struct {
	PlaylistID   string
	TargetFormat MediaFormat
}

// NewAcquisitionRequest validates input and builds an immutable request
func NewAcquisitionRequest(playlistID, format string) (AcquisitionRequest, error) {
	playlistID = strings.TrimSpace(playlistID)
	if !playlistIDPattern.MatchString(playlistID) {
		return AcquisitionRequest{}, ErrInvalidPlaylistID
	}
	f, err := ParseMediaFormat(format)
	if err != nil {
		return AcquisitionRequest{}, err
	}
	return AcquisitionRequest{PlaylistID: playlistID, TargetFormat: f}, nil
}

// SessionState is the lifecycle state of an acquisition session
type SessionState string

const (
	StateInitiated   SessionState = "initiated"
	StateRunning     SessionState = "running"
	StateReconciling SessionState = "reconciling"
	StateCompleted   SessionState = "completed"
	StateCancelled   SessionState = "cancelled"
	StateFailed      SessionState = "failed"
)

// IsTerminal checks if the state is one of the final states
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Acquisition is the persisted history record of one session
type Acquisition struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	PlaylistID   string       `json:"playlist_id" gorm:"not null;index"`
	Format       MediaFormat  `json:"format" gorm:"not null"`
	PlaylistName string       `json:"playlist_name,omitempty"`
	Status       SessionState `json:"status" gorm:"not null;index"`
	Current      int          `json:"current"`
	Total        int          `json:"total"`
	SongsAdded   int          `json:"songs_added"`
	ErrorCount   int          `json:"error_count"`
	ErrorMessage string       `json:"error_message,omitempty"`
	CreatedAt    time.Time    `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time   `json:"started_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// NewAcquisition creates a new history record for a request
func NewAcquisition(req AcquisitionRequest) *Acquisition {
	now := time.Now()
	return &Acquisition{
		ID:         uuid.New().String(),
		PlaylistID: req.PlaylistID,
		Format:     req.TargetFormat,
		Status:     StateInitiated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkRunning marks the acquisition as running
func (a *Acquisition) MarkRunning() {
	a.Status = StateRunning
	now := time.Now()
	a.StartedAt = &now
	a.UpdatedAt = now
}

// MarkReconciling records the progress observed when the process exited
func (a *Acquisition) MarkReconciling(current, total int) {
	a.Status = StateReconciling
	a.Current = current
	a.Total = total
	a.UpdatedAt = time.Now()
}

// MarkCompleted marks the acquisition as completed
func (a *Acquisition) MarkCompleted(songsAdded, errorCount int) {
	a.Status = StateCompleted
	a.SongsAdded = songsAdded
	a.ErrorCount = errorCount
	a.finish()
}

// MarkCancelled marks the acquisition as cancelled
func (a *Acquisition) MarkCancelled() {
	a.Status = StateCancelled
	a.finish()
}

// MarkFailed marks the acquisition as failed
func (a *Acquisition) MarkFailed(err error) {
	a.Status = StateFailed
	if err != nil {
		a.ErrorMessage = err.Error()
	}
	a.finish()
}

func (a *Acquisition) finish() {
	now := time.Now()
	a.CompletedAt = &now
	a.UpdatedAt = now
}

// IsTerminal checks if the acquisition is in a terminal state
func (a *Acquisition) IsTerminal() bool {
	return a.Status.IsTerminal()
}
