package relay

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strconv"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/apontamentos/relay/core"
	"github.com/apontamentos/relay/domain"
	"github.com/apontamentos/relay/rawhttp"
	"github.com/google/uuid"
)

var (
	// ErrSkipPipeline is returned to stop the modifier pipeline for a request / response.
	// The request / response will still continue but won't be processed by any future modifiers
	ErrSkipPipeline = errors.New("stop processing item")

	// ErrMetadataNotFound is returned when metadata is invalid or missing
	ErrMetadataNotFound = errors.New("invalid or missing metadata")

	// ErrRequestIDNotFound is returned when requestID is not found
	ErrRequestIDNotFound = errors.New("invalid or missing requestID")

	// ErrForwardRequest is returned when the ForwardRequest record cannot be created
	ErrForwardRequest = errors.New("failed to create forward request record")

	// ErrForwardResponse is returned when the ForwardResponse record cannot be created
	ErrForwardResponse = errors.New("failed to create forward response record")

	// ErrReadBody is returned when there is an error with reading the response body
	ErrReadBody = errors.New("failed to read the body")
)

// RequestModifierFunc is a signature for HTTP request modifiers, it takes in the request and *Relay
type RequestModifierFunc func(relay *Relay, req *http.Request) error

// ResponseModifierFunc is a signature for HTTP response modifiers, it takes in the response and *Relay
type ResponseModifierFunc func(relay *Relay, res *http.Response) error

// reqAdapter adapts the `RequestModifierFunc` and implements the `martian.RequestModifier` interface.
type reqAdapter struct {
	relay    *Relay
	modifier RequestModifierFunc
}

// ModifyRequest implements the `martian.RequestModifier` interface and allows the modifier to access the *Relay
func (adapter *reqAdapter) ModifyRequest(req *http.Request) error {
	return adapter.modifier(adapter.relay, req)
}

// resAdapter adapts the `ResponseModifierFunc` and implements the `martian.ResponseModifier` interface.
type resAdapter struct {
	relay    *Relay
	modifier ResponseModifierFunc
}

// ModifyResponse implements the `martian.ResponseModifier` interface and allows the modifier to access the *Relay
func (adapter *resAdapter) ModifyResponse(res *http.Response) error {
	return adapter.modifier(adapter.relay, res)
}

// SetupRequestModifier initializes the request context. It generates the exchange ID,
// sets the request time and an empty metadata map.
func SetupRequestModifier(relay *Relay, req *http.Request) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating uuid for request : %w", err)
	}

	*req = *core.ContextWithRequestTime(req, time.Now())
	*req = *core.ContextWithRequestID(req, id)
	*req = *core.ContextWithMetadata(req, make(map[string]any))
	return nil
}

// JSONHeadersModifier replaces the outbound headers with the JSON negotiation pair.
// The empty User-Agent keeps net/http from sending its default one.
func JSONHeadersModifier(relay *Relay, req *http.Request) error {
	req.Header = http.Header{
		"Content-Type": {"application/json"},
		"Accept":       {"application/json"},
		"User-Agent":   {""},
	}
	return nil
}

// WriteRequestModifier is the final modifier in the default request pipeline.
// It creates a `ForwardRequest` record and queues it for database insertion.
// Nothing is recorded when the relay has no repository.
func WriteRequestModifier(relay *Relay, req *http.Request) error {
	if !relay.Recording() {
		return nil
	}

	reqID, ok := core.RequestIDFromContext(req.Context())
	if !ok {
		return ErrRequestIDNotFound
	}

	forwardRequest, err := NewForwardRequest(relay, req, reqID)
	if err != nil {
		return fmt.Errorf("%w : %w", ErrForwardRequest, err)
	}
	relay.enqueue(forwardRequest)
	return nil
}

// NewForwardRequest builds the record for an outbound request from its context and a raw dump.
// The request body stays readable afterwards.
func NewForwardRequest(relay *Relay, req *http.Request, requestID uuid.UUID) (*domain.ForwardRequest, error) {
	contextMetadata, ok := core.MetadataFromContext(req.Context())
	if !ok {
		return nil, ErrMetadataNotFound
	}
	// WriteToDB marshals the record concurrently with later modifiers
	metadata := maps.Clone(contextMetadata)
	if metadata == nil {
		metadata = make(map[string]any)
	}

	requestTime, ok := core.RequestTimeFromContext(req.Context())
	if !ok {
		return nil, fmt.Errorf("timestamp not found for this context")
	}

	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path = fmt.Sprintf("%s?%s", path, req.URL.RawQuery)
	}

	rawReq, prettified, err := rawhttp.DumpRequest(req)
	if err != nil {
		return nil, fmt.Errorf("dumping request %s : %w", requestID, err)
	}
	if prettified != "" {
		metadata["prettified-request"] = prettified
	}

	return &domain.ForwardRequest{
		ID:          requestID,
		Method:      req.Method,
		Upstream:    relay.Upstream,
		Path:        path,
		Raw:         domain.RawField(rawReq),
		Metadata:    metadata,
		RequestedAt: requestTime,
	}, nil
}

// ResponseTimeModifier adds the response time to the request context.
func ResponseTimeModifier(relay *Relay, res *http.Response) error {
	if res.Request == nil {
		return ErrSkipPipeline
	}
	res.Request = core.ContextWithResponseTime(res.Request, time.Now())
	return nil
}

// BufferBodyModifier reads the entire response body into memory and replaces `res.Body`
// with a new `io.NopCloser` on the full body. It removes the `Transfer-Encoding` and
// updates the `Content-Length` to reflect the new body.
func BufferBodyModifier(relay *Relay, res *http.Response) error {
	if res.Body == nil || res.Body == http.NoBody {
		return nil
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("%w : %w", ErrReadBody, err)
	}

	replaceBody(res, responseBody)
	res.TransferEncoding = nil
	return nil
}

// CompressedResponseModifier decompresses gzip and br response bodies and replaces `res.Body`
// with the decompressed data. It removes the "Content-Encoding" header and updates the "Content-Length".
// Other encodings are left untouched.
func CompressedResponseModifier(relay *Relay, res *http.Response) error {
	encoding := res.Header.Get("Content-Encoding")
	if encoding == "" || res.Body == nil || res.ContentLength <= 0 {
		return nil
	}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gzipReader, err := gzip.NewReader(res.Body)
		if err != nil {
			res.Body.Close()
			return fmt.Errorf("creating gzip reader : %w", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	case "br":
		reader = brotli.NewReader(res.Body)
	default:
		return nil
	}
	defer res.Body.Close()

	decompressedBody, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading %s content : %w", encoding, err)
	}

	replaceBody(res, decompressedBody)
	res.Header.Del("Content-Encoding")
	res.Uncompressed = true
	return nil
}

// WriteResponseModifier is the final modifier in the default response pipeline.
// It creates a `ForwardResponse` record and queues it for database insertion.
// Nothing is recorded when the relay has no repository.
func WriteResponseModifier(relay *Relay, res *http.Response) error {
	if !relay.Recording() {
		return nil
	}

	forwardResponse, err := NewForwardResponse(res)
	if err != nil {
		return fmt.Errorf("%w : %w", ErrForwardResponse, err)
	}
	relay.enqueue(forwardResponse)
	return nil
}

// NewForwardResponse builds the record for an upstream response, including the outcome the
// relay will report for it. The response body stays readable afterwards.
func NewForwardResponse(res *http.Response) (*domain.ForwardResponse, error) {
	if res.Request == nil {
		return nil, ErrRequestIDNotFound
	}

	requestID, ok := core.RequestIDFromContext(res.Request.Context())
	if !ok {
		return nil, ErrRequestIDNotFound
	}

	responseTime, ok := core.ResponseTimeFromContext(res.Request.Context())
	if !ok {
		return nil, fmt.Errorf("timestamp not found for this context")
	}

	rawRes, prettified, err := rawhttp.DumpResponse(res)
	if err != nil {
		return nil, fmt.Errorf("dumping response %s : %w", requestID, err)
	}

	body, err := peekBody(res)
	if err != nil {
		return nil, fmt.Errorf("%w : %w", ErrReadBody, err)
	}
	kind, _ := classify(res, body)

	metadata := make(map[string]any)
	if contextMetadata, ok := core.MetadataFromContext(res.Request.Context()); ok {
		metadata = maps.Clone(contextMetadata)
	}
	if prettified != "" {
		metadata["prettified-response"] = prettified
	}

	return &domain.ForwardResponse{
		ID:          requestID,
		Status:      res.Status,
		StatusCode:  res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		Length:      res.Header.Get("Content-Length"),
		Outcome:     kind.String(),
		Raw:         domain.RawField(rawRes),
		Metadata:    metadata,
		RespondedAt: responseTime,
	}, nil
}

// replaceBody swaps the response body for an in-memory copy and updates the length fields.
func replaceBody(res *http.Response, body []byte) {
	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))
	res.Header.Set("Content-Length", strconv.Itoa(len(body)))
}

// peekBody returns the response body and leaves a fresh reader in its place.
func peekBody(res *http.Response) ([]byte, error) {
	if res.Body == nil || res.Body == http.NoBody {
		return []byte{}, nil
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	res.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
