package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	// RequestIDKey is the context key for the exchange ID (uuid.UUID). The same ID is shared between the request and response
	RequestIDKey contextKey = "RequestID"
	// MetadataKey is the context key for the exchange metadata (map[string]any)
	MetadataKey contextKey = "Metadata"
	// RequestTimeKey is the context key for the time the request was forwarded (time.Time)
	RequestTimeKey contextKey = "RequestTime"
	// ResponseTimeKey is the context key for the time the upstream answered (time.Time)
	ResponseTimeKey contextKey = "ResponseTime"
)

// ContextWithRequestID returns a new request with a request ID in the context
func ContextWithRequestID(req *http.Request, requestID uuid.UUID) *http.Request {
	ctx := context.WithValue(req.Context(), RequestIDKey, requestID)
	return req.WithContext(ctx)
}

// RequestIDFromContext returns the request ID from the context if it exists
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey).(uuid.UUID)
	return id, ok
}

// ContextWithMetadata returns a new request with metadata in the context
func ContextWithMetadata(req *http.Request, metadata map[string]any) *http.Request {
	ctx := context.WithValue(req.Context(), MetadataKey, metadata)
	return req.WithContext(ctx)
}

// MetadataFromContext returns the metadata from the context if it exists
func MetadataFromContext(ctx context.Context) (map[string]any, bool) {
	metadata, ok := ctx.Value(MetadataKey).(map[string]any)
	return metadata, ok
}

// ContextWithRequestTime returns a new request with the request time in the context
func ContextWithRequestTime(req *http.Request, requestTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), RequestTimeKey, requestTime)
	return req.WithContext(ctx)
}

// RequestTimeFromContext returns the request time from the context if it exists
func RequestTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(RequestTimeKey).(time.Time)
	return timestamp, ok
}

// ContextWithResponseTime returns a new request with the response time in the context
func ContextWithResponseTime(req *http.Request, responseTime time.Time) *http.Request {
	ctx := context.WithValue(req.Context(), ResponseTimeKey, responseTime)
	return req.WithContext(ctx)
}

// ResponseTimeFromContext returns the response time from the context if it exists
func ResponseTimeFromContext(ctx context.Context) (time.Time, bool) {
	timestamp, ok := ctx.Value(ResponseTimeKey).(time.Time)
	return timestamp, ok
}
