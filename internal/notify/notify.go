// Package notify provides cross-platform desktop notifications.
// It uses the beeep library to send notifications on macOS, Linux, and Windows.
package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/braidhq/braid/internal/logger"
)

// Send sends a desktop notification with the given title and message.
// On macOS, it uses terminal-notifier or AppleScript.
// On Linux, it uses D-Bus or notify-send.
// On Windows, it uses the Windows Runtime COM API.
func Send(title, message string) error {
	logger.Debug("Notification: sending - title=%q, message=%q", title, message)
	// Use empty string for icon - beeep handles platform defaults
	err := beeep.Notify(title, message, "")
	if err != nil {
		logger.Warn("Notification: failed to send: %v", err)
	}
	return err
}

// ResponseComplete sends a notification that a background session finished
// a response.
func ResponseComplete(sessionName string) error {
	return Send("Braid", sessionName+" finished responding")
}

// MergeComplete sends a notification that a session's branch merged back.
func MergeComplete(sessionName string) error {
	return Send("Braid", sessionName+" merged successfully")
}
