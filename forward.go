package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apontamentos/relay/core"
	"github.com/apontamentos/relay/domain"
	"github.com/google/uuid"
)

// Inbound is a request received under /proxy/*.
type Inbound struct {
	Method   string   // GET, POST, PUT or DELETE
	Segments []string // Path segments after the /proxy prefix, unescaped
	RawQuery string   // Query string without the leading "?"
	Body     []byte   // Forwarded for POST and PUT only
}

// Forward sends the inbound request to the upstream once and reports the outcome.
// It never returns an error: every failure is described by the Result envelope.
func (relay *Relay) Forward(ctx context.Context, in Inbound) *Result {
	start := time.Now()
	result := relay.forward(ctx, in)
	relay.Metrics.Observe(in.Method, result.Kind, time.Since(start))

	if result.Failed() {
		options := []func(*domain.Log) error{
			core.LogWithContext(map[string]any{
				"method":  in.Method,
				"path":    "/" + strings.Join(in.Segments, "/"),
				"outcome": result.Kind.String(),
				"status":  result.Status,
			}),
		}
		if result.ID != uuid.Nil {
			options = append(options, core.LogWithRequestID(result.ID))
		}
		level := "ERROR"
		if result.Kind == KindRedirect {
			level = "WARN"
		}
		if err := relay.WriteLog(level, result.Envelope.Error+" : "+result.Envelope.Message, options...); err != nil {
			relay.Logger.Error("writing relay log", "error", err)
		}
	}
	return result
}

func (relay *Relay) forward(ctx context.Context, in Inbound) *Result {
	if !SupportedMethod(in.Method) {
		return badRequestFailure(http.StatusMethodNotAllowed,
			fmt.Errorf("%w : %s", ErrUnsupportedMethod, in.Method), "Method not allowed")
	}

	target := BuildURL(relay.Upstream, in.Segments, in.RawQuery)

	if relay.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, relay.timeout)
		defer cancel()
	}

	var body io.Reader
	if in.Method == http.MethodPost || in.Method == http.MethodPut {
		body = bytes.NewReader(in.Body)
	}

	req, err := http.NewRequestWithContext(ctx, in.Method, target, body)
	if err != nil {
		return badRequestFailure(http.StatusInternalServerError,
			fmt.Errorf("building request for %s : %w", target, err), "Failed to build API request")
	}

	if err := relay.ModifyRequest(req); err != nil {
		return badRequestFailure(http.StatusInternalServerError,
			fmt.Errorf("modifying request for %s : %w", target, err), "Failed to prepare API request")
	}
	id, _ := core.RequestIDFromContext(req.Context())

	res, err := relay.Client.Do(req)
	if err != nil {
		result := relay.transportFailure(target, err)
		result.ID = id
		relay.recordFailure(req, result)
		return result
	}
	defer res.Body.Close()

	if err := relay.ModifyResponse(res); err != nil {
		result := relay.transportFailure(target, fmt.Errorf("modifying response : %w", err))
		result.ID = id
		relay.recordFailure(req, result)
		return result
	}

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		result := relay.transportFailure(target, fmt.Errorf("%w : %w", ErrReadBody, err))
		result.ID = id
		return result
	}

	result := relay.relayResponse(target, res, responseBody)
	result.ID = id
	return result
}

// relayResponse turns a complete upstream response into a Result.
func (relay *Relay) relayResponse(target string, res *http.Response, body []byte) *Result {
	kind, err := classify(res, body)
	switch kind {
	case KindRedirect:
		return redirectFailure(res.Header.Get("Location"))
	case KindNoContent:
		return &Result{Kind: KindNoContent, Status: http.StatusNoContent}
	case KindInvalidJSON:
		return invalidJSONFailure(target, err, body)
	}

	contentType := res.Header.Get("Content-Type")
	if isJSONContentType(contentType) {
		contentType = "application/json"
	} else if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}

	return &Result{
		Kind:        KindOK,
		Status:      res.StatusCode,
		ContentType: contentType,
		Body:        body,
	}
}

// transportFailure classifies an error from the outbound call as a timeout or a network failure.
func (relay *Relay) transportFailure(target string, err error) *Result {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return timeoutFailure(target, err)
	}
	return networkFailure(target, err)
}

// recordFailure queues a response record for an exchange that got no usable upstream answer.
func (relay *Relay) recordFailure(req *http.Request, result *Result) {
	if !relay.Recording() || result.ID == uuid.Nil {
		return
	}
	metadata := make(map[string]any)
	if contextMetadata, ok := core.MetadataFromContext(req.Context()); ok {
		metadata = maps.Clone(contextMetadata)
	}
	metadata["error"] = result.Err.Error()

	relay.enqueue(&domain.ForwardResponse{
		ID:          result.ID,
		Outcome:     result.Kind.String(),
		Metadata:    metadata,
		RespondedAt: time.Now(),
	})
}

// classify decides how an upstream response is relayed. For invalid JSON the parse error is returned.
func classify(res *http.Response, body []byte) (Kind, error) {
	switch {
	case res.StatusCode >= 300 && res.StatusCode < 400:
		return KindRedirect, ErrRedirect
	case res.StatusCode == http.StatusNoContent:
		return KindNoContent, nil
	}

	if isJSONContentType(res.Header.Get("Content-Type")) && len(bytes.TrimSpace(body)) > 0 {
		var raw json.RawMessage
		if err := json.Unmarshal(body, &raw); err != nil {
			return KindInvalidJSON, err
		}
	}
	return KindOK, nil
}

// isJSONContentType reports whether the media type is application/json or a +json type.
func isJSONContentType(header string) bool {
	if header == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		mediaType, _, _ = strings.Cut(header, ";")
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// SupportedMethod reports whether the verb is forwarded upstream.
func SupportedMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// BuildURL joins the base URL, the escaped path segments and the re-serialized query.
// A query that does not parse is forwarded as received.
func BuildURL(base string, segments []string, rawQuery string) string {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}

	target := strings.TrimRight(base, "/") + "/" + strings.Join(escaped, "/")

	query := encodeQuery(rawQuery)
	if query == "" {
		return target
	}
	return target + "?" + query
}

// encodeQuery re-escapes every key=value pair and keeps the caller's order, unlike url.Values.Encode.
// Empty pairs are dropped and a bare key becomes "key=". An unescapable query is returned unchanged.
func encodeQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	pairs := make([]string, 0, strings.Count(rawQuery, "&")+1)
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, keyErr := url.QueryUnescape(key)
		value, valueErr := url.QueryUnescape(value)
		if keyErr != nil || valueErr != nil {
			return rawQuery
		}
		pairs = append(pairs, url.QueryEscape(key)+"="+url.QueryEscape(value))
	}
	return strings.Join(pairs, "&")
}
