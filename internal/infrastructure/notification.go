package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
)

// commandRunner runs a notifier binary
type commandRunner func(name string, args ...string) error

func runCommand(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// NotificationService sends desktop notifications about acquisitions
type NotificationService struct {
	config domain.NotificationConfig
	logger *zap.Logger
	run    commandRunner
}

// NewNotificationService creates a new notification service
func NewNotificationService(config domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
		run:    runCommand,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(message), escapeAppleScript(title))
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", "--app-name=music-player", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}
	n.logger.Debug("Notification sent", zap.String("title", title))
	return nil
}

// NotifyAcquisitionStarted sends notification when a session starts
func (n *NotificationService) NotifyAcquisitionStarted(req domain.AcquisitionRequest) {
	n.Send("Acquisition Started", fmt.Sprintf("Playlist %s (%s)", truncateString(req.PlaylistID, 40), req.TargetFormat))
}

// NotifyAcquisitionCompleted sends notification when reconciliation finishes
func (n *NotificationService) NotifyAcquisitionCompleted(playlistName string, songsAdded int) {
	n.Send("Acquisition Completed", fmt.Sprintf("%s: %d song(s) added", truncateString(playlistName, 40), songsAdded))
}

// NotifyAcquisitionCancelled sends notification when a session is cancelled
func (n *NotificationService) NotifyAcquisitionCancelled(playlistID string) {
	n.Send("Acquisition Cancelled", fmt.Sprintf("Playlist %s", truncateString(playlistID, 40)))
}

// NotifyAcquisitionFailed sends notification when a session fails
func (n *NotificationService) NotifyAcquisitionFailed(playlistID string, err error) {
	n.Send("Acquisition Failed", fmt.Sprintf("Playlist %s: %v", truncateString(playlistID, 40), err))
}

func escapeAppleScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
