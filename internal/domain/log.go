package domain

import "time"

type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelSuccess LogLevel = "SUCCESS"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
)

// LogEntry is a user-facing progress record. Seq is assigned by the store and
// increases by one for every appended entry.
type LogEntry struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	JobID     JobID     `json:"jobId,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

func (e LogEntry) Clone() LogEntry {
	out := e
	out.Metadata = e.Metadata.Clone()
	return out
}
