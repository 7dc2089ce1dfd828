package rawhttp

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"strings"
	"testing"
)

var forcedErr = errors.New("forced error")

// erroringReader will return an error on Reads
type erroringReader struct{}

func (er *erroringReader) Read(p []byte) (n int, err error) {
	return 0, forcedErr
}

func (er *erroringReader) Close() error {
	return nil
}

func TestPrettify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "should indent a JSON array",
			input: `[{"id":1,"nomeCliente":"ACME"}]`,
			want:  "[\n  {\n    \"id\": 1,\n    \"nomeCliente\": \"ACME\"\n  }\n]",
		},
		{
			name:  "should indent JSON surrounded by whitespace",
			input: "  {\"nomeProjeto\":\"Portal\",\"idCliente\":2}\n",
			want:  "{\n  \"idCliente\": 2,\n  \"nomeProjeto\": \"Portal\"\n}",
		},
		{
			name:  "should indent XML",
			input: `<?xml version="1.0" encoding="UTF-8"?><tasks><task>1</task></tasks>`,
			want:  "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<tasks>\n <task>1</task>\n</tasks>\n",
		},
		{
			name:  "should indent an HTML login page",
			input: `<html><body><p>Login</p></body></html>`,
			want:  "<html>\n <body>\n  <p>Login</p>\n </body>\n</html>\n",
		},
		{
			name:  "should not prettify invalid JSON",
			input: `{"id":1,}`,
			want:  "",
		},
		{
			name:  "should not prettify plaintext",
			input: `upstream unavailable`,
			want:  "",
		},
		{
			name:  "should not prettify an empty body",
			input: ``,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Prettify([]byte(tt.input))
			if err != nil {
				t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("\nwanted:\n%q\ngot:\n%q", tt.want, got)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	t.Run("should return short bodies untouched", func(t *testing.T) {
		got := Preview([]byte(`[]`), 200)
		if got != "[]" {
			t.Fatalf("\nwanted:\n[]\ngot:\n%q", got)
		}
	})

	t.Run("should cut long bodies at the limit", func(t *testing.T) {
		body := []byte(strings.Repeat("a", 250))
		got := Preview(body, 200)
		if len(got) != 200 {
			t.Fatalf("\nwanted:\n200\ngot:\n%d", len(got))
		}
	})

	t.Run("should count runes instead of bytes", func(t *testing.T) {
		got := Preview([]byte("ação"), 2)
		if got != "aç" {
			t.Fatalf("\nwanted:\naç\ngot:\n%q", got)
		}
	})

	t.Run("should return everything for a non-positive limit", func(t *testing.T) {
		got := Preview([]byte("tarefas"), 0)
		if got != "tarefas" {
			t.Fatalf("\nwanted:\ntarefas\ngot:\n%q", got)
		}
	})
}

func TestDumpRequest(t *testing.T) {
	t.Run("should dump a JSON body and keep it readable", func(t *testing.T) {
		inputBody := []byte(`{"nomeCliente":"ACME"}`)
		wantPrettyBody := "{\n  \"nomeCliente\": \"ACME\"\n}"

		req, err := http.NewRequest(http.MethodPost, "http://localhost:8081/clientes", bytes.NewReader(inputBody))
		if err != nil {
			t.Fatalf("creating new request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")

		rawDump, prettyDump, err := DumpRequest(req)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !bytes.HasPrefix(rawDump, []byte("POST /clientes HTTP/1.1\r\n")) {
			t.Fatalf("\nwanted:\nrequest line\ngot:\n%q", rawDump)
		}
		if !bytes.HasSuffix(rawDump, inputBody) {
			t.Fatalf("\nwanted:\nsuffix %s\ngot:\n%q", inputBody, rawDump)
		}
		if !strings.HasSuffix(prettyDump, wantPrettyBody) {
			t.Fatalf("\nwanted:\nsuffix %q\ngot:\n%q", wantPrettyBody, prettyDump)
		}

		body, err := io.ReadAll(req.Body)
		if err != nil {
			t.Fatalf("reading body after dump: %v", err)
		}
		if !bytes.Equal(body, inputBody) {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", inputBody, body)
		}
	})

	t.Run("should dump a request without a body", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "http://localhost:8081/tasks", nil)
		if err != nil {
			t.Fatalf("creating new request: %v", err)
		}

		headers, err := httputil.DumpRequest(req, false)
		if err != nil {
			t.Fatalf("dumping request (httputil): %v", err)
		}

		rawDump, prettyDump, err := DumpRequest(req)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if prettyDump != "" {
			t.Fatalf("\nwanted:\nempty pretty dump\ngot:\n%q", prettyDump)
		}
		if !bytes.Equal(rawDump, headers) {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", headers, rawDump)
		}
		if req.Body != nil {
			t.Fatalf("\nwanted:\nnil body\ngot:\n%v", req.Body)
		}
	})

	t.Run("should wrap body read errors", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, "http://localhost:8081/clientes/1", &erroringReader{})
		if err != nil {
			t.Fatalf("creating request: %v", err)
		}

		_, _, err = DumpRequest(req)
		if !errors.Is(err, forcedErr) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", forcedErr, err)
		}
		if !strings.Contains(err.Error(), "reading request body") {
			t.Fatalf("\nwanted:\nreading request body\ngot:\n%v", err)
		}
	})
}

func TestDumpResponse(t *testing.T) {
	t.Run("should dump a JSON body and keep it readable", func(t *testing.T) {
		responseBody := []byte(`[{"id":3,"nomeTask":"Deploy"}]`)

		res := &http.Response{
			StatusCode: http.StatusOK,
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(bytes.NewReader(responseBody)),
		}

		rawDump, prettyDump, err := DumpResponse(res)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if !bytes.HasSuffix(rawDump, responseBody) {
			t.Fatalf("\nwanted:\nsuffix %s\ngot:\n%q", responseBody, rawDump)
		}
		if !strings.Contains(prettyDump, "\"nomeTask\": \"Deploy\"") {
			t.Fatalf("\nwanted:\nindented body\ngot:\n%q", prettyDump)
		}

		body, err := io.ReadAll(res.Body)
		if err != nil {
			t.Fatalf("reading body after dump: %v", err)
		}
		if !bytes.Equal(body, responseBody) {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", responseBody, body)
		}
	})

	t.Run("should dump a 204 with a nil body", func(t *testing.T) {
		res := &http.Response{
			StatusCode: http.StatusNoContent,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Header:     make(http.Header),
			Body:       nil,
		}

		headers, err := httputil.DumpResponse(res, false)
		if err != nil {
			t.Fatalf("dumping response (httputil): %v", err)
		}

		rawDump, prettyDump, err := DumpResponse(res)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if prettyDump != "" {
			t.Fatalf("\nwanted:\nempty pretty dump\ngot:\n%q", prettyDump)
		}
		if !bytes.Equal(rawDump, headers) {
			t.Fatalf("\nwanted:\n%q\ngot:\n%q", headers, rawDump)
		}
	})

	t.Run("should wrap body read errors", func(t *testing.T) {
		res := &http.Response{
			Body: &erroringReader{},
		}

		_, _, err := DumpResponse(res)
		if !errors.Is(err, forcedErr) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", forcedErr, err)
		}
		if !strings.Contains(err.Error(), "reading response body") {
			t.Fatalf("\nwanted:\nreading response body\ngot:\n%v", err)
		}
	})
}
