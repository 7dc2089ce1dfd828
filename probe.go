package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apontamentos/relay/rawhttp"
)

const (
	probePath         = "/tasks"
	probeTimeout      = 10 * time.Second
	probePreviewLimit = 200
)

// ProbeReport is the answer of the upstream connection test.
type ProbeReport struct {
	Success         bool              `json:"success"`
	Environment     string            `json:"environment"`
	APIURL          string            `json:"apiUrl"`
	TestURL         string            `json:"testUrl,omitempty"`
	Status          int               `json:"status,omitempty"`
	ResponsePreview string            `json:"responsePreview,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorType       string            `json:"errorType,omitempty"`
}

// Probe performs a plain GET on {upstream}/tasks with a 10 second cap and reports what came back.
// Any answer, whatever its status, counts as a successful connection. The probe bypasses the
// modifier pipeline and is never recorded.
func (relay *Relay) Probe(ctx context.Context) *ProbeReport {
	report := &ProbeReport{
		Environment: relay.Config.Environment,
		APIURL:      relay.Upstream,
		TestURL:     relay.Upstream + probePath,
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	fail := func(err error) *ProbeReport {
		report.Success = false
		report.Error = err.Error()
		report.ErrorType = relay.transportFailure(report.TestURL, err).Kind.String()
		relay.Logger.Error("connection probe failed", "url", report.TestURL, "error", err)
		return report
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, report.TestURL, nil)
	if err != nil {
		return fail(fmt.Errorf("building probe request : %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := relay.Client.Do(req)
	if err != nil {
		return fail(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		return fail(fmt.Errorf("reading probe response : %w", err))
	}

	report.Success = true
	report.Status = res.StatusCode
	report.ResponsePreview = rawhttp.Preview(body, probePreviewLimit)
	report.Headers = make(map[string]string, len(res.Header))
	for key := range res.Header {
		report.Headers[http.CanonicalHeaderKey(key)] = res.Header.Get(key)
	}

	relay.Logger.Info("connection probe answered", "url", report.TestURL, "status", res.StatusCode)
	return report
}
