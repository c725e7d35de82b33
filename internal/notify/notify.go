// Package notify sends desktop notifications for quiz lifecycle events.
//
// Notifications are best-effort. Delivery failures are logged at debug level
// and never interrupt the quiz flow.
package notify

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"
)

const appName = "Sesquiz"

// maxBodyLen caps the notification body so long transcripts do not overflow
// the desktop notification area.
const maxBodyLen = 100

// Notifier sends desktop notifications. The zero value is disabled; use
// [New]. Safe for concurrent use; SetEnabled may be called from a config
// reload while notifications are being sent.
type Notifier struct {
	enabled atomic.Bool

	// send delivers a single notification. Overridable in tests.
	send func(title, message string) error
}

// New creates a Notifier. When enabled is false every notification is a
// no-op.
func New(enabled bool) *Notifier {
	n := &Notifier{
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
	n.enabled.Store(enabled)
	return n
}

// SetEnabled toggles notification delivery at runtime.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// QuizStarted announces that a quiz run has begun.
func (n *Notifier) QuizStarted(title string, questions int) {
	n.notify("Quiz başladı", fmt.Sprintf("%s (%d soru)", title, questions))
}

// QuizFinished announces the final score.
func (n *Notifier) QuizFinished(correct, total int) {
	n.notify("Quiz bitti", fmt.Sprintf("Skor: %d/%d", correct, total))
}

// Error announces a failure that stopped the quiz.
func (n *Notifier) Error(msg string) {
	n.notify("Hata", msg)
}

func (n *Notifier) notify(title, message string) {
	if !n.enabled.Load() {
		return
	}
	if len(message) > maxBodyLen {
		message = message[:maxBodyLen] + "..."
	}
	if err := n.send(appName+": "+title, message); err != nil {
		slog.Debug("desktop notification failed", "error", err)
	}
}
