package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// OpenSQLite opens the library database and migrates the schema
func OpenSQLite(dbPath string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	// sessions write concurrently; sqlite takes one writer at a time
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&domain.Artist{},
		&domain.Album{},
		&domain.Song{},
		&domain.Playlist{},
		&domain.PlaylistSong{},
		&domain.Acquisition{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// CloseSQLite closes the database connection
func CloseSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLiteLibraryStore implements LibraryStore using SQLite
type SQLiteLibraryStore struct {
	db *gorm.DB
}

// NewSQLiteLibraryStore creates a library store on an open database
func NewSQLiteLibraryStore(db *gorm.DB) *SQLiteLibraryStore {
	return &SQLiteLibraryStore{db: db}
}

// CreateArtistIfAbsent returns the artist id for name, inserting it if needed
func (r *SQLiteLibraryStore) CreateArtistIfAbsent(ctx context.Context, name string) (uint, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&domain.Artist{Name: name}).Error; err != nil {
		return 0, fmt.Errorf("create artist %q: %w", name, err)
	}

	var artist domain.Artist
	if err := db.Where("name = ?", name).First(&artist).Error; err != nil {
		return 0, fmt.Errorf("find artist %q: %w", name, err)
	}
	return artist.ID, nil
}

// CreateAlbumIfAbsent returns the album id for title, inserting it if needed
func (r *SQLiteLibraryStore) CreateAlbumIfAbsent(ctx context.Context, title string) (uint, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "title"}},
		DoNothing: true,
	}).Create(&domain.Album{Title: title}).Error; err != nil {
		return 0, fmt.Errorf("create album %q: %w", title, err)
	}

	var album domain.Album
	if err := db.Where("title = ?", title).First(&album).Error; err != nil {
		return 0, fmt.Errorf("find album %q: %w", title, err)
	}
	return album.ID, nil
}

// CreateSong inserts a song, replacing the metadata of an existing one
func (r *SQLiteLibraryStore) CreateSong(ctx context.Context, s domain.NewSong) error {
	song := domain.Song{
		ID:        s.ID,
		Title:     s.Title,
		ArtistID:  s.ArtistID,
		AlbumID:   s.AlbumID,
		Duration:  s.Duration,
		Year:      s.Year,
		MediaType: s.MediaType,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "artist_id", "album_id", "duration", "year", "media_type"}),
	}).Create(&song).Error
}

// SongExists checks whether a song id is recorded
func (r *SQLiteLibraryStore) SongExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Song{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// CreatePlaylistIfAbsent returns the playlist id. With an explicit id
// the playlist is keyed by it; otherwise an existing playlist of the
// same name is reused or a new id is generated.
func (r *SQLiteLibraryStore) CreatePlaylistIfAbsent(ctx context.Context, name, explicitID string) (string, error) {
	db := r.db.WithContext(ctx)

	if explicitID == "" {
		var existing domain.Playlist
		err := db.Where("name = ?", name).Order("created_at ASC").First(&existing).Error
		if err == nil {
			return existing.ID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("find playlist %q: %w", name, err)
		}
		explicitID = uuid.New().String()
	}

	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&domain.Playlist{ID: explicitID, Name: name}).Error; err != nil {
		return "", fmt.Errorf("create playlist %q: %w", name, err)
	}
	return explicitID, nil
}

// AddSongToPlaylist links a song to a playlist; existing links are kept
func (r *SQLiteLibraryStore) AddSongToPlaylist(ctx context.Context, playlistID, songID string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.PlaylistSong{PlaylistID: playlistID, SongID: songID}).Error
}

// ListSongs returns every song with its artist and album
func (r *SQLiteLibraryStore) ListSongs(ctx context.Context) ([]domain.Song, error) {
	songs := []domain.Song{}
	err := r.db.WithContext(ctx).
		Preload("Artist").
		Preload("Album").
		Order("created_at ASC, id ASC").
		Find(&songs).Error
	return songs, err
}

// ListAlbums returns every album
func (r *SQLiteLibraryStore) ListAlbums(ctx context.Context) ([]domain.Album, error) {
	albums := []domain.Album{}
	err := r.db.WithContext(ctx).Order("title ASC").Find(&albums).Error
	return albums, err
}

// ListArtists returns every artist
func (r *SQLiteLibraryStore) ListArtists(ctx context.Context) ([]domain.Artist, error) {
	artists := []domain.Artist{}
	err := r.db.WithContext(ctx).Order("name ASC").Find(&artists).Error
	return artists, err
}

// ListPlaylists returns every playlist with member ids in insertion order
func (r *SQLiteLibraryStore) ListPlaylists(ctx context.Context) ([]domain.Playlist, error) {
	db := r.db.WithContext(ctx)

	playlists := []domain.Playlist{}
	if err := db.Order("created_at ASC").Find(&playlists).Error; err != nil {
		return nil, err
	}

	var links []domain.PlaylistSong
	if err := db.Order("created_at ASC, song_id ASC").Find(&links).Error; err != nil {
		return nil, err
	}

	members := make(map[string][]string)
	for _, l := range links {
		members[l.PlaylistID] = append(members[l.PlaylistID], l.SongID)
	}
	for i := range playlists {
		playlists[i].SongIDs = members[playlists[i].ID]
		if playlists[i].SongIDs == nil {
			playlists[i].SongIDs = []string{}
		}
	}
	return playlists, nil
}

// SQLiteAcquisitionRepository implements AcquisitionRepository using SQLite
type SQLiteAcquisitionRepository struct {
	db *gorm.DB
}

// NewSQLiteAcquisitionRepository creates an acquisition history repository
func NewSQLiteAcquisitionRepository(db *gorm.DB) *SQLiteAcquisitionRepository {
	return &SQLiteAcquisitionRepository{db: db}
}

// Create creates a new acquisition record
func (r *SQLiteAcquisitionRepository) Create(acq *domain.Acquisition) error {
	return r.db.Create(acq).Error
}

// Update updates an existing acquisition record
func (r *SQLiteAcquisitionRepository) Update(acq *domain.Acquisition) error {
	return r.db.Save(acq).Error
}

// FindByID finds an acquisition by ID
func (r *SQLiteAcquisitionRepository) FindByID(id string) (*domain.Acquisition, error) {
	var acq domain.Acquisition
	err := r.db.First(&acq, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acq, nil
}

var acquisitionFilterColumns = map[string]bool{
	"status":      true,
	"playlist_id": true,
	"format":      true,
}

// FindAll finds acquisitions newest first. Unknown filter keys are rejected.
func (r *SQLiteAcquisitionRepository) FindAll(filters map[string]interface{}) ([]*domain.Acquisition, error) {
	query := r.db
	for key, value := range filters {
		if !acquisitionFilterColumns[key] {
			return nil, fmt.Errorf("unknown filter %q", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	var acquisitions []*domain.Acquisition
	err := query.Order("created_at DESC").Find(&acquisitions).Error
	return acquisitions, err
}

// FailInterrupted marks records left non-terminal by a previous run as failed
func (r *SQLiteAcquisitionRepository) FailInterrupted() (int64, error) {
	now := time.Now()
	res := r.db.Model(&domain.Acquisition{}).
		Where("status IN ?", []domain.SessionState{domain.StateInitiated, domain.StateRunning, domain.StateReconciling}).
		Updates(map[string]interface{}{
			"status":        domain.StateFailed,
			"error_message": "interrupted by server shutdown",
			"completed_at":  now,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}

// GetStats returns acquisition statistics
func (r *SQLiteAcquisitionRepository) GetStats() (*domain.AcquisitionStats, error) {
	stats := &domain.AcquisitionStats{}

	if err := r.db.Model(&domain.Acquisition{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.SessionState
		Count  int64
	}{}
	if err := r.db.Model(&domain.Acquisition{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StateInitiated, domain.StateRunning, domain.StateReconciling:
			stats.Running += sc.Count
		case domain.StateCompleted:
			stats.Completed = sc.Count
		case domain.StateCancelled:
			stats.Cancelled = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		}
	}

	if err := r.db.Model(&domain.Acquisition{}).
		Select("COALESCE(SUM(songs_added), 0)").
		Scan(&stats.SongsAdded).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
