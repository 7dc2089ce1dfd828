package relay

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
)

var (
	// ErrRedirect is returned when the upstream answered with a 3xx, which this backend uses to signal a missing session
	ErrRedirect = errors.New("upstream redirected the request")

	// ErrInvalidJSON is returned when the upstream declared a JSON body that does not parse
	ErrInvalidJSON = errors.New("upstream returned invalid JSON")

	// ErrUnsupportedMethod is returned for verbs other than GET, POST, PUT and DELETE
	ErrUnsupportedMethod = errors.New("method not supported by the relay")

	// ErrRecorderDisabled is returned by the traffic queries when no repository is configured
	ErrRecorderDisabled = errors.New("traffic recording is disabled")

	// ErrUpstreamTimeout is returned when the upstream did not answer before the deadline
	ErrUpstreamTimeout = errors.New("upstream request timed out")
)

// Kind discriminates the outcome of a forwarded request.
type Kind int

const (
	KindOK Kind = iota
	KindNoContent
	KindRedirect
	KindNetwork
	KindTimeout
	KindInvalidJSON
	KindBadRequest
)

// String returns the outcome name stored with recorded exchanges and used as a metric label.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNoContent:
		return "no_content"
	case KindRedirect:
		return "redirect"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindInvalidJSON:
		return "invalid_json"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Envelope is the JSON body written for every failure.
type Envelope struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	URL         string `json:"url,omitempty"`
	RawResponse string `json:"rawResponse,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Result is the outcome of Relay.Forward. Successful results carry the upstream
// status and body; failed ones carry an Envelope and the underlying error.
type Result struct {
	ID          uuid.UUID // Exchange ID, uuid.Nil when the request never left the relay
	Kind        Kind
	Status      int
	ContentType string
	Body        []byte
	Envelope    *Envelope
	Err         error
}

// Failed reports whether the result carries an error envelope.
func (r *Result) Failed() bool {
	return r.Envelope != nil
}

func failure(kind Kind, status int, err error, envelope Envelope) *Result {
	return &Result{
		Kind:     kind,
		Status:   status,
		Envelope: &envelope,
		Err:      err,
	}
}

func networkFailure(url string, err error) *Result {
	return failure(KindNetwork, http.StatusInternalServerError, err, Envelope{
		Error:   "Failed to connect to API",
		Message: err.Error(),
		URL:     url,
	})
}

func timeoutFailure(url string, err error) *Result {
	return failure(KindTimeout, http.StatusInternalServerError, errors.Join(ErrUpstreamTimeout, err), Envelope{
		Error:   "API request timed out",
		Message: err.Error(),
		URL:     url,
	})
}

func redirectFailure(location string) *Result {
	message := "The API redirected the request, the session is probably missing or expired"
	if location != "" {
		message = "The API redirected the request to " + location
	}
	return failure(KindRedirect, http.StatusUnauthorized, ErrRedirect, Envelope{
		Error:       "Authentication required",
		Message:     message,
		RedirectURL: location,
	})
}

func invalidJSONFailure(url string, parseErr error, raw []byte) *Result {
	return failure(KindInvalidJSON, http.StatusInternalServerError, errors.Join(ErrInvalidJSON, parseErr), Envelope{
		Error:       "Invalid JSON response from API",
		Message:     "The API declared a JSON body that could not be parsed",
		Details:     parseErr.Error(),
		URL:         url,
		RawResponse: string(raw),
	})
}

func badRequestFailure(status int, err error, message string) *Result {
	return failure(KindBadRequest, status, err, Envelope{
		Error:   message,
		Message: err.Error(),
	})
}
