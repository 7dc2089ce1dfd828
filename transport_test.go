package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type testBaseRoundTripper struct {
	req *http.Request
	res *http.Response
	err error
}

func (rt *testBaseRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.req = req
	if rt.err != nil {
		return nil, rt.err
	}
	if rt.res != nil {
		rt.res.Request = req
		return rt.res, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
		Request:    req,
	}, nil
}

func TestRelayRoundTripper(t *testing.T) {
	t.Run("should set an empty User-Agent when absent without touching the caller's request", func(t *testing.T) {
		base := &testBaseRoundTripper{}
		rt := &relayRoundTripper{base: base}
		req := httptest.NewRequest(http.MethodGet, "http://localhost:8081/clientes", nil)

		if _, err := rt.RoundTrip(req); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got, ok := base.req.Header["User-Agent"]; !ok || got[0] != "" {
			t.Fatalf("\nwanted:\nempty User-Agent\ngot:\n%v", got)
		}
		if _, ok := req.Header["User-Agent"]; ok {
			t.Fatalf("\nwanted:\noriginal request untouched\ngot:\n%v", req.Header)
		}
	})

	t.Run("should keep an explicit User-Agent", func(t *testing.T) {
		base := &testBaseRoundTripper{}
		rt := &relayRoundTripper{base: base}
		req := httptest.NewRequest(http.MethodGet, "http://localhost:8081/clientes", nil)
		req.Header.Set("User-Agent", "relay-probe")

		if _, err := rt.RoundTrip(req); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got := base.req.Header.Get("User-Agent"); got != "relay-probe" {
			t.Fatalf("\nwanted:\nrelay-probe\ngot:\n%s", got)
		}
	})

	t.Run("should return the base error", func(t *testing.T) {
		rt := &relayRoundTripper{base: &testBaseRoundTripper{err: errForced}}
		req := httptest.NewRequest(http.MethodGet, "http://localhost:8081/clientes", nil)

		if _, err := rt.RoundTrip(req); err != errForced {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", errForced, err)
		}
	})
}

func TestNewRelayTransport(t *testing.T) {
	transport := newRelayTransport()
	if !transport.DisableCompression {
		t.Fatalf("\nwanted:\ncompression disabled\ngot:\nenabled")
	}
	if transport.TLSClientConfig != nil && transport.TLSClientConfig.InsecureSkipVerify {
		t.Fatalf("\nwanted:\ncertificate verification\ngot:\nInsecureSkipVerify")
	}
}

func TestNewRelayClient(t *testing.T) {
	t.Run("should not follow redirects", func(t *testing.T) {
		res := &http.Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": {"http://localhost:8081/login"}},
			Body:       io.NopCloser(strings.NewReader("")),
		}
		base := &testBaseRoundTripper{res: res}
		client := newRelayClient(base)

		req, _ := http.NewRequest(http.MethodGet, "http://localhost:8081/clientes", nil)
		got, err := client.Do(req)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer got.Body.Close()

		if got.StatusCode != http.StatusFound {
			t.Fatalf("\nwanted:\n302\ngot:\n%d", got.StatusCode)
		}
		if base.req.URL.Path != "/clientes" {
			t.Fatalf("\nwanted:\nonly /clientes requested\ngot:\n%s", base.req.URL.Path)
		}
	})

	t.Run("should use the default transport when none is given", func(t *testing.T) {
		client := newRelayClient(nil)
		rt, ok := client.Transport.(*relayRoundTripper)
		if !ok {
			t.Fatalf("\nwanted:\n*relayRoundTripper\ngot:\n%T", client.Transport)
		}
		if _, ok := rt.base.(*http.Transport); !ok {
			t.Fatalf("\nwanted:\n*http.Transport\ngot:\n%T", rt.base)
		}
	})
}
