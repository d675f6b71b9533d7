package domain

import (
	"errors"
	"path"
	"time"
)

var ErrNotFound = errors.New("record not found")

// UnknownArtist is used when a media file carries no artist tag
const UnknownArtist = "Unknown Artist"

// Artist is a performer, deduplicated by name
type Artist struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;uniqueIndex"`
}

// Album is a release, deduplicated by title
type Album struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null;uniqueIndex"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// Song is one media file in the library. ID is the file stem the
// downloader assigned, so the media path is derivable from it.
type Song struct {
	ID        string      `json:"id" gorm:"primaryKey"`
	Title     string      `json:"title" gorm:"not null"`
	ArtistID  uint        `json:"artist_id" gorm:"not null;index"`
	Artist    *Artist     `json:"artist,omitempty" gorm:"foreignKey:ArtistID"`
	AlbumID   *uint       `json:"album_id,omitempty" gorm:"index"`
	Album     *Album      `json:"album,omitempty" gorm:"foreignKey:AlbumID"`
	Duration  int         `json:"duration"`
	Year      int         `json:"year,omitempty"`
	MediaType MediaFormat `json:"media_type" gorm:"not null"`
	CreatedAt time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

// FilePath is the public path of the song's media file
func (s Song) FilePath() string {
	return path.Join("/songs", s.ID+s.MediaType.Extension())
}

// CoverPath is the public path of the song's cover art
func (s Song) CoverPath() string {
	return path.Join("/songs/.cover", s.ID+".png")
}

// Playlist is a named, ordered collection of songs
type Playlist struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	// SongIDs lists members in insertion order
	SongIDs []string `json:"song_ids" gorm:"-"`
}

// PlaylistSong is the membership of a song in a playlist
type PlaylistSong struct {
	PlaylistID string    `gorm:"primaryKey"`
	SongID     string    `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

// NewSong holds the fields needed to create a song record
type NewSong struct {
	ID        string
	Title     string
	ArtistID  uint
	AlbumID   *uint
	Duration  int
	Year      int
	MediaType MediaFormat
}
