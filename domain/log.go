package domain

import (
	"time"

	"github.com/google/uuid"
)

// LogRepository defines the interface for managing relay logs.
// It provides methods for persisting and retrieving log entries.
type LogRepository interface {
	// InsertLog saves a new log entry to the repository.
	InsertLog(log *Log) error
	// GetLogs retrieves all log entries from the repository, oldest first.
	GetLogs() ([]*Log, error)
}

// Log represents a single persisted log entry.
type Log struct {
	ID        uuid.UUID      `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"` // DEBUG, INFO, WARN, ERROR, FATAL
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	RequestID *uuid.UUID     `json:"requestId,omitempty"` // Optional ID of the associated exchange
}

// GetType identifies the item on the recorder channel.
func (log *Log) GetType() string {
	return "log"
}
