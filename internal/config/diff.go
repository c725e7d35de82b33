package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// FeedbackChanged is true when either feedback phrase changed. The new
	// phrases take effect from the next question.
	FeedbackChanged bool

	// QuizFileChanged is true when quiz.file points at a different path.
	// Picking up the new set requires returning to the start screen.
	QuizFileChanged bool

	// NotificationsChanged is true when notifications were toggled.
	NotificationsChanged bool
	NotificationsEnabled bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Quiz.Feedback != new.Quiz.Feedback {
		d.FeedbackChanged = true
	}

	if old.Quiz.File != new.Quiz.File {
		d.QuizFileChanged = true
	}

	if old.Notifications.Enabled != new.Notifications.Enabled {
		d.NotificationsChanged = true
		d.NotificationsEnabled = new.Notifications.Enabled
	}

	return d
}
