package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RawField type is used for the request and response raw dumps.
//
// By default []byte MarshalJSON will encode the value to base64.
// MarshalJSON is implemented for RawField to marshal the bytes as a string.
type RawField []byte

// MarshalJSON implements the json.Marshaler interface. It marshals the raw bytes
// as a JSON string, bypassing the default base64 encoding for []byte.
func (r RawField) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	return json.Marshal(string(r))
}

// ErrExchangeNotFound is returned when no exchange exists for the given ID.
var ErrExchangeNotFound = errors.New("exchange not found")

// TrafficRepository holds the exchange related repository methods used by the relay recorder.
type TrafficRepository interface {
	// InsertRequest will insert the ForwardRequest in the DB
	InsertRequest(req *ForwardRequest) error

	// InsertResponse will update the row with the response data.
	// It uses res.ID to find the row and returns an error if the request ID was not found
	InsertResponse(res *ForwardResponse) error

	// GetExchange returns the full request / response pair for an ID.
	// When there is no response data for the row the response fields keep the DB defaults
	GetExchange(id uuid.UUID) (*Exchange, error)

	// GetSummaries returns the most recent exchanges without the raw dumps, newest first.
	// A limit <= 0 returns every row
	GetSummaries(limit int) ([]*ExchangeSummary, error)
}

// ForwardRequest is the outbound request the relay sent upstream.
type ForwardRequest struct {
	ID          uuid.UUID      `json:"id"`
	Method      string         `json:"method"`
	Upstream    string         `json:"upstream"`    // Upstream base URL at the time of the call
	Path        string         `json:"path"`        // Joined path including the query string
	Raw         RawField       `json:"raw"`         // Complete raw outbound request
	Metadata    map[string]any `json:"metadata"`    // Additional metadata, e.g. the prettified dump
	RequestedAt time.Time      `json:"requestedAt"` // Timestamp when the request was forwarded
}

// ForwardResponse is what the upstream answered, or how the call failed.
type ForwardResponse struct {
	ID          uuid.UUID      `json:"id"`          // Matches the ForwardRequest ID
	Status      string         `json:"status"`      // HTTP status text (e.g., "200 OK")
	StatusCode  int            `json:"statusCode"`  // Upstream status code, 0 when no response arrived
	ContentType string         `json:"contentType"` // Upstream content type
	Length      string         `json:"length"`      // Content length
	Outcome     string         `json:"outcome"`     // Result kind, e.g. "ok", "redirect", "network"
	Raw         RawField       `json:"raw"`         // Complete raw upstream response
	Metadata    map[string]any `json:"metadata"`
	RespondedAt time.Time      `json:"respondedAt"`
}

// Exchange is a complete request / response pair.
type Exchange struct {
	Request  ForwardRequest  `json:"request"`
	Response ForwardResponse `json:"response"`
}

// ExchangeSummary is an exchange without the raw dumps and metadata.
type ExchangeSummary struct {
	ID          uuid.UUID `json:"id"`
	Method      string    `json:"method"`
	Upstream    string    `json:"upstream"`
	Path        string    `json:"path"`
	Status      string    `json:"status"`
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	Length      string    `json:"length"`
	Outcome     string    `json:"outcome"`
	DurationMS  int64     `json:"durationMs"`
	RequestedAt time.Time `json:"requestedAt"`
	RespondedAt time.Time `json:"respondedAt"`
}

// GetType identifies the item on the recorder channel.
func (req *ForwardRequest) GetType() string {
	return "request"
}

// GetType identifies the item on the recorder channel.
func (res *ForwardResponse) GetType() string {
	return "response"
}
