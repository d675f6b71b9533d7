package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// LoadConfig loads configuration from file and environment.
// An empty path searches ./configs, $HOME/.music-player and /etc/music-player.
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.music-player")
		v.AddConfigPath("/etc/music-player")
	}

	v.SetEnvPrefix("MUSICPLAYER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so environment overrides apply even
// without a config file
func setDefaults(v *viper.Viper, c *domain.Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("library.base_dir", c.Library.BaseDir)
	v.SetDefault("downloader.binary", c.Downloader.Binary)
	v.SetDefault("downloader.audio_quality", c.Downloader.AudioQuality)
	v.SetDefault("downloader.playlist_url_template", c.Downloader.PlaylistURLTemplate)
	v.SetDefault("downloader.default_format", string(c.Downloader.DefaultFormat))
	v.SetDefault("stream.keep_alive_interval", c.Stream.KeepAliveInterval)
	v.SetDefault("notification.enabled", c.Notification.Enabled)
	v.SetDefault("notification.sound", c.Notification.Sound)
	v.SetDefault("notification.method", c.Notification.Method)
	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output_path", c.Logging.OutputPath)
}

func expandPaths(config *domain.Config) {
	config.Library.BaseDir = expandPath(config.Library.BaseDir)
	config.Downloader.Binary = expandPath(config.Downloader.Binary)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Library.BaseDir == "" {
		return fmt.Errorf("library base directory not configured")
	}

	if config.Downloader.Binary == "" {
		return fmt.Errorf("downloader binary not configured")
	}

	if !strings.Contains(config.Downloader.PlaylistURLTemplate, "%s") {
		return fmt.Errorf("playlist url template must contain %%s")
	}

	format, err := domain.ParseMediaFormat(string(config.Downloader.DefaultFormat))
	if err != nil {
		return fmt.Errorf("default format %q: %w", config.Downloader.DefaultFormat, err)
	}
	config.Downloader.DefaultFormat = format

	if config.Stream.KeepAliveInterval <= 0 {
		return fmt.Errorf("stream keep-alive interval must be positive")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// SaveConfig writes configuration to a YAML file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("server.host", config.Server.Host)
	v.Set("server.port", config.Server.Port)
	v.Set("library.base_dir", config.Library.BaseDir)
	v.Set("downloader.binary", config.Downloader.Binary)
	v.Set("downloader.audio_quality", config.Downloader.AudioQuality)
	v.Set("downloader.playlist_url_template", config.Downloader.PlaylistURLTemplate)
	v.Set("downloader.default_format", string(config.Downloader.DefaultFormat))
	v.Set("stream.keep_alive_interval", config.Stream.KeepAliveInterval.String())
	v.Set("notification.enabled", config.Notification.Enabled)
	v.Set("notification.sound", config.Notification.Sound)
	v.Set("notification.method", config.Notification.Method)
	v.Set("logging.level", config.Logging.Level)
	v.Set("logging.format", config.Logging.Format)
	v.Set("logging.output_path", config.Logging.OutputPath)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
