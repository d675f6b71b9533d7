package domain

import "context"

// LibraryStore defines the interface for library persistence
type LibraryStore interface {
	// CreateArtistIfAbsent returns the id of the artist with that name,
	// creating it when missing
	CreateArtistIfAbsent(ctx context.Context, name string) (uint, error)

	// CreateAlbumIfAbsent returns the id of the album with that title,
	// creating it when missing
	CreateAlbumIfAbsent(ctx context.Context, title string) (uint, error)

	// CreateSong creates or replaces a song record
	CreateSong(ctx context.Context, song NewSong) error

	// SongExists checks whether a song with the id is recorded
	SongExists(ctx context.Context, id string) (bool, error)

	// CreatePlaylistIfAbsent returns the id of the playlist. An empty
	// explicitID lets the store assign one.
	CreatePlaylistIfAbsent(ctx context.Context, name, explicitID string) (string, error)

	// AddSongToPlaylist links a song to a playlist; repeat links are ignored
	AddSongToPlaylist(ctx context.Context, playlistID, songID string) error

	ListSongs(ctx context.Context) ([]Song, error)
	ListAlbums(ctx context.Context) ([]Album, error)
	ListArtists(ctx context.Context) ([]Artist, error)
	ListPlaylists(ctx context.Context) ([]Playlist, error)
}

// AcquisitionRepository defines the interface for acquisition history
type AcquisitionRepository interface {
	// Create creates a new acquisition record
	Create(acq *Acquisition) error

	// Update updates an existing acquisition record
	Update(acq *Acquisition) error

	// FindByID finds an acquisition by ID
	FindByID(id string) (*Acquisition, error)

	// FindAll finds acquisitions, newest first, with optional filters
	FindAll(filters map[string]interface{}) ([]*Acquisition, error)

	// GetStats returns acquisition statistics
	GetStats() (*AcquisitionStats, error)
}

// AcquisitionStats represents acquisition statistics
type AcquisitionStats struct {
	Total      int64 `json:"total"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	Cancelled  int64 `json:"cancelled"`
	Failed     int64 `json:"failed"`
	SongsAdded int64 `json:"songs_added"`
}
