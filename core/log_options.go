// Package core provides the context helpers and log options shared by the relay packages.
package core

import (
	"github.com/apontamentos/relay/domain"
	"github.com/google/uuid"
)

// LogWithContext is an option to add a context map to a log entry.
func LogWithContext(context map[string]any) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.Context = context
		return nil
	}
}

// LogWithRequestID is an option to associate a log entry with a forwarded exchange.
func LogWithRequestID(id uuid.UUID) func(log *domain.Log) error {
	return func(log *domain.Log) error {
		log.RequestID = &id
		return nil
	}
}
