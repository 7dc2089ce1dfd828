package relay

import (
	"net"
	"net/http"
	"time"
)

// relayRoundTripper strips the headers the Go client would add on its own so that the
// upstream only sees the header set built by the pipeline.
type relayRoundTripper struct {
	base http.RoundTripper
}

// newRelayTransport creates the base transport for upstream calls.
// Compression is disabled so that no Accept-Encoding header is added, responses that
// arrive compressed anyway are handled by CompressedResponseModifier.
func newRelayTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}
}

// RoundTrip satisfies http.RoundTripper. An absent User-Agent is replaced by an empty
// value, which net/http treats as "do not send one".
func (rt *relayRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := req.Header["User-Agent"]; !ok {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", "")
	}
	return rt.base.RoundTrip(req)
}

// newRelayClient builds the client for upstream calls. Redirects are never followed, the
// 3xx response is returned as is and translated into an authentication error.
// The deadline comes from the request context, not from the client.
func newRelayClient(base http.RoundTripper) *http.Client {
	if base == nil {
		base = newRelayTransport()
	}
	return &http.Client{
		Transport: &relayRoundTripper{base: base},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
