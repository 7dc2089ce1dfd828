// Package rawhttp dumps forwarded requests and upstream responses for the traffic recorder.
package rawhttp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/beevik/etree"
	"github.com/gabriel-vasile/mimetype"
	"github.com/yosssi/gohtml"
)

// Prettify attempts to indent a JSON, XML or HTML body.
// Anything else yields an empty slice.
func Prettify(bodyBytes []byte) ([]byte, error) {
	if len(bodyBytes) == 0 {
		return []byte{}, nil
	}

	trimmedBody := bytes.TrimSpace(bodyBytes)

	var jsonData any
	if err := json.Unmarshal(trimmedBody, &jsonData); err == nil {
		output, err := json.MarshalIndent(jsonData, "", "  ")
		if err != nil {
			return []byte{}, fmt.Errorf("remarshalling JSON : %w", err)
		}
		return output, nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(trimmedBody); err == nil && doc.Root() != nil {
		doc.Indent(1)
		var output bytes.Buffer
		if _, err := doc.WriteTo(&output); err != nil {
			return []byte{}, fmt.Errorf("writing indented XML : %w", err)
		}
		return output.Bytes(), nil
	}

	contentType := mimetype.Detect(trimmedBody).String()
	if strings.Contains(contentType, "text/html") ||
		(bytes.HasPrefix(trimmedBody, []byte("<")) && !bytes.HasPrefix(trimmedBody, []byte("<?xml"))) {
		output := gohtml.FormatBytes(trimmedBody)
		if !bytes.Equal(output, trimmedBody) && len(output) > 0 {
			return output, nil
		}
	}

	return []byte{}, nil
}

// Preview returns at most limit runes of the body, for log lines and the connection probe.
func Preview(body []byte, limit int) string {
	if limit <= 0 {
		return string(body)
	}

	runes := 0
	for i := range string(body) {
		if runes == limit {
			return string(body[:i])
		}
		runes++
	}
	return string(body)
}

// readBody drains body and returns its bytes together with a fresh reader over them.
// A nil body stays nil.
func readBody(body io.ReadCloser) ([]byte, io.ReadCloser, error) {
	if body == nil || body == http.NoBody {
		return []byte{}, body, nil
	}
	defer body.Close()

	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, err
	}
	return bodyBytes, io.NopCloser(bytes.NewReader(bodyBytes)), nil
}

// withPrettyBody joins the header dump and the prettified body.
// The headers are copied so that the raw dump is not overwritten.
func withPrettyBody(headers []byte, body []byte) string {
	prettified, err := Prettify(body)
	if err != nil || len(prettified) == 0 {
		return ""
	}

	prettyHeaders := make([]byte, len(headers), len(headers)+len(prettified))
	copy(prettyHeaders, headers)
	return string(append(prettyHeaders, prettified...))
}

// DumpResponse dumps the raw response and resets the body so it can still be consumed.
// Returns the full dump, the prettified dump (empty when the body cannot be prettified) and an error
func DumpResponse(res *http.Response) (rawDump []byte, prettyDump string, err error) {
	responseDump, err := httputil.DumpResponse(res, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping response : %w", err)
	}

	bodyBytes, body, err := readBody(res.Body)
	if err != nil {
		return []byte{}, "", fmt.Errorf("reading response body : %w", err)
	}
	res.Body = body

	fullDump := append(responseDump, bodyBytes...)
	return fullDump, withPrettyBody(responseDump, bodyBytes), nil
}

// DumpRequest dumps the raw request and resets the body so it can still be sent upstream.
// Returns the full dump, the prettified dump (empty when the body cannot be prettified) and an error
func DumpRequest(req *http.Request) (rawDump []byte, prettyDump string, err error) {
	requestDump, err := httputil.DumpRequest(req, false)
	if err != nil {
		return []byte{}, "", fmt.Errorf("dumping request : %w", err)
	}

	bodyBytes, body, err := readBody(req.Body)
	if err != nil {
		return []byte{}, "", fmt.Errorf("reading request body : %w", err)
	}
	req.Body = body

	fullDump := append(requestDump, bodyBytes...)
	return fullDump, withPrettyBody(requestDump, bodyBytes), nil
}
