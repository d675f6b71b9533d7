package domain

import (
	"path/filepath"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Library      LibraryConfig      `mapstructure:"library"`
	Downloader   DownloaderConfig   `mapstructure:"downloader"`
	Stream       StreamConfig       `mapstructure:"stream"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LibraryConfig contains the on-disk layout of the library.
// Every other directory is derived from BaseDir.
type LibraryConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// MediaDir is where permanent media files live ({songId}.{ext})
func (c LibraryConfig) MediaDir() string {
	return filepath.Join(c.BaseDir, "songs")
}

// StagingDir is the scratch area the downloader writes into
func (c LibraryConfig) StagingDir() string {
	return filepath.Join(c.MediaDir(), ".incomplete")
}

// CoverDir holds cover art ({songId}.png)
func (c LibraryConfig) CoverDir() string {
	return filepath.Join(c.MediaDir(), ".cover")
}

// LogsDir holds categorized logs and the downloader transcript
func (c LibraryConfig) LogsDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// DatabasePath is the SQLite library database
func (c LibraryConfig) DatabasePath() string {
	return filepath.Join(c.BaseDir, "library.db")
}

// LockPath is the single-instance server lock file
func (c LibraryConfig) LockPath() string {
	return filepath.Join(c.BaseDir, "server.lock")
}

// DownloaderConfig contains settings for the external yt-dlp process
type DownloaderConfig struct {
	Binary              string      `mapstructure:"binary"`
	AudioQuality        string      `mapstructure:"audio_quality"`
	PlaylistURLTemplate string      `mapstructure:"playlist_url_template"`
	DefaultFormat       MediaFormat `mapstructure:"default_format"`
}

// StreamConfig contains settings for the progress stream transports
type StreamConfig struct {
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Library: LibraryConfig{
			BaseDir: "$HOME/Music/music-player",
		},
		Downloader: DownloaderConfig{
			Binary:              "yt-dlp",
			AudioQuality:        "320k",
			PlaylistURLTemplate: "https://www.youtube.com/playlist?list=%s",
			DefaultFormat:       FormatFLAC,
		},
		Stream: StreamConfig{
			KeepAliveInterval: 15 * time.Second,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
