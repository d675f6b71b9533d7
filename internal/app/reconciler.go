package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

// Messages reported to the caller when one staged file cannot be committed
const (
	MsgSongNotAdded       = "Couldn't add song to database."
	MsgSongNotMoved       = "Couldn't move song file."
	MsgCoverNotMoved      = "Couldn't move cover image."
	MsgPlaylistNotCreated = "Error creating playlist."
	MsgPlaylistLinkFailed = "Couldn't add song to playlist."
	MsgStagingUnreadable  = "Couldn't read downloaded files."
	MsgLibraryUnavailable = "Couldn't load library."
)

// LibraryFiles is the filesystem area the reconciler moves files through
type LibraryFiles interface {
	PrepareSession(sessionID string) (string, error)
	StagingFiles(sessionID string, format domain.MediaFormat) ([]domain.StagingFile, error)
	MoveToMedia(f domain.StagingFile) (string, error)
	PlaceCover(f domain.StagingFile) error
	WriteCover(songID string, data []byte) error
	HasCover(songID string) bool
	Remove(f domain.StagingFile) error
	DiscardSession(sessionID string) error
	MediaFiles() ([]string, error)
}

// ReconcileInput is what a session observed before its process exited
type ReconcileInput struct {
	SessionID    string
	Request      domain.AcquisitionRequest
	PlaylistName string
}

// ReconcileResult summarizes one reconciliation
type ReconcileResult struct {
	SongsAdded int
	Errors     int
}

// Reconciler commits a session's staged files into the library
type Reconciler struct {
	files     LibraryFiles
	store     domain.LibraryStore
	inspector domain.MediaInspector
	log       *logger.LoggerAdapter
}

// NewReconciler creates a file reconciler
func NewReconciler(files LibraryFiles, store domain.LibraryStore, inspector domain.MediaInspector, log *logger.LoggerAdapter) *Reconciler {
	if log == nil {
		log = logger.NewNopAdapter()
	}
	return &Reconciler{files: files, store: store, inspector: inspector, log: log}
}

// Reconcile processes every staged file of a session. Per-file failures
// are reported through emit and never stop the remaining files.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput, emit func(domain.ProgressEvent)) ReconcileResult {
	var result ReconcileResult
	fail := func(message string, err error, fields ...zap.Field) {
		result.Errors++
		r.log.LogError(message, append(fields,
			zap.String("session_id", in.SessionID),
			zap.Error(err))...)
		emit(domain.ErrorEvent(message))
	}

	files, err := r.files.StagingFiles(in.SessionID, in.Request.TargetFormat)
	if err != nil {
		fail(MsgStagingUnreadable, err)
		return result
	}

	playlistName := in.PlaylistName
	if playlistName == "" {
		playlistName = in.Request.PlaylistID
	}
	playlistID, err := r.store.CreatePlaylistIfAbsent(ctx, playlistName, in.Request.PlaylistID)
	if err != nil {
		fail(MsgPlaylistNotCreated, err, zap.String("playlist", playlistName))
		playlistID = ""
	}

	committed := make(map[string]bool)
	embedded := make(map[string][]byte)
	for _, f := range files {
		if f.Kind != domain.StagingMedia {
			continue
		}
		songID := f.Stem()

		dest, err := r.files.MoveToMedia(f)
		if err != nil {
			fail(MsgSongNotMoved, err, zap.String("file", f.Name))
			continue
		}

		info, err := r.inspector.Inspect(dest)
		if err != nil {
			fail(MsgSongNotAdded, err, zap.String("song_id", songID))
			continue
		}

		if err := recordSong(ctx, r.store, songID, in.Request.TargetFormat, info); err != nil {
			fail(MsgSongNotAdded, err, zap.String("song_id", songID))
			continue
		}
		result.SongsAdded++
		committed[songID] = true
		if len(info.Cover) > 0 {
			embedded[songID] = info.Cover
		}

		if playlistID != "" {
			if err := r.store.AddSongToPlaylist(ctx, playlistID, songID); err != nil {
				fail(MsgPlaylistLinkFailed, err, zap.String("song_id", songID))
			}
		}
	}

	for _, f := range files {
		if f.Kind != domain.StagingCover {
			continue
		}
		// a cover without a song stays in staging and goes with it
		if !committed[f.Stem()] {
			r.log.General().Debug("Skipping cover of uncommitted song",
				zap.String("file", f.Name))
			continue
		}
		if err := r.files.PlaceCover(f); err != nil {
			fail(MsgCoverNotMoved, err, zap.String("file", f.Name))
		}
	}

	// songs whose thumbnail was not written separately still carry one
	for songID, data := range embedded {
		if r.files.HasCover(songID) {
			continue
		}
		if err := r.files.WriteCover(songID, data); err != nil {
			r.log.General().Warn("Failed to extract embedded cover",
				zap.String("song_id", songID), zap.Error(err))
		}
	}

	for _, f := range files {
		if f.Kind != domain.StagingArtifact {
			continue
		}
		if err := r.files.Remove(f); err != nil {
			r.log.General().Warn("Failed to delete staging artifact",
				zap.String("file", f.Name), zap.Error(err))
		}
	}

	if err := r.files.DiscardSession(in.SessionID); err != nil {
		r.log.General().Warn("Failed to remove staging directory",
			zap.String("session_id", in.SessionID), zap.Error(err))
	}

	r.log.LogEvent("Reconciliation finished",
		zap.String("session_id", in.SessionID),
		zap.Int("songs_added", result.SongsAdded),
		zap.Int("errors", result.Errors))
	return result
}

func recordSong(ctx context.Context, store domain.LibraryStore, songID string, format domain.MediaFormat, info *domain.MediaInfo) error {
	artistID, err := store.CreateArtistIfAbsent(ctx, info.Artist)
	if err != nil {
		return err
	}

	var albumID *uint
	if info.Album != "" {
		id, err := store.CreateAlbumIfAbsent(ctx, info.Album)
		if err != nil {
			return err
		}
		albumID = &id
	}

	if err := store.CreateSong(ctx, domain.NewSong{
		ID:        songID,
		Title:     info.Title,
		ArtistID:  artistID,
		AlbumID:   albumID,
		Duration:  info.Duration,
		Year:      info.Year,
		MediaType: format,
	}); err != nil {
		return fmt.Errorf("create song %s: %w", songID, err)
	}
	return nil
}

// Snapshot reads the songs, albums and playlists carried by End
func Snapshot(ctx context.Context, store domain.LibraryStore) (domain.LibrarySnapshot, error) {
	songs, err := store.ListSongs(ctx)
	if err != nil {
		return domain.LibrarySnapshot{}, fmt.Errorf("list songs: %w", err)
	}
	albums, err := store.ListAlbums(ctx)
	if err != nil {
		return domain.LibrarySnapshot{}, fmt.Errorf("list albums: %w", err)
	}
	playlists, err := store.ListPlaylists(ctx)
	if err != nil {
		return domain.LibrarySnapshot{}, fmt.Errorf("list playlists: %w", err)
	}
	return domain.LibrarySnapshot{Songs: songs, Albums: albums, Playlists: playlists}, nil
}
