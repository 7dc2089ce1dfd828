// Package backend is a typed client for the scheduling backend the relay forwards to.
// It talks to the backend directly, or through a relay when the base URL points at /proxy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyBaseURL is returned by New when no base URL is given
var ErrEmptyBaseURL = errors.New("base url is empty")

// APIError is returned for every non-2xx answer. Envelope holds the relay error body when
// the call went through a relay that answered with one.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Envelope   *Envelope
	Body       string
}

// Envelope mirrors the JSON error body written by the relay.
type Envelope struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Details     string `json:"details,omitempty"`
	URL         string `json:"url,omitempty"`
	RawResponse string `json:"rawResponse,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

func (e *APIError) Error() string {
	if e.Envelope != nil && e.Envelope.Error != "" {
		return fmt.Sprintf("%s %s : %d %s : %s", e.Method, e.URL, e.StatusCode, e.Envelope.Error, e.Envelope.Message)
	}
	return fmt.Sprintf("%s %s : %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// AuthenticationRequired reports whether the relay translated an upstream redirect.
func (e *APIError) AuthenticationRequired() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Client holds the services for every backend resource.
type Client struct {
	baseURL    string
	httpClient *http.Client

	Clientes *ClienteService
	Projetos *ProjetoService
	Tarefas  *TarefaService
}

// New creates a Client for baseURL, e.g. "http://localhost:8081" or "http://127.0.0.1:3000/proxy".
func New(baseURL string, options ...func(*Client) error) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parsing base url : %w", err)
	}

	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, option := range options {
		if err := option(client); err != nil {
			return nil, fmt.Errorf("applying option on client : %w", err)
		}
	}

	client.Clientes = &ClienteService{client: client}
	client.Projetos = &ProjetoService{client: client}
	client.Tarefas = &TarefaService{client: client}
	return client, nil
}

// WithHTTPClient replaces the default client with its 10 second timeout.
func WithHTTPClient(httpClient *http.Client) func(*Client) error {
	return func(client *Client) error {
		if httpClient == nil {
			return errors.New("http client is nil")
		}
		client.httpClient = httpClient
		return nil
	}
}

// BaseURL returns the base URL every path is joined to.
func (client *Client) BaseURL() string {
	return client.baseURL
}

// do sends one JSON request. in is encoded when non-nil, out is decoded when non-nil
// and the answer carries a body.
func (client *Client) do(ctx context.Context, method string, segments []string, in any, out any) error {
	escaped := make([]string, len(segments))
	for i, segment := range segments {
		escaped[i] = url.PathEscape(segment)
	}
	target := client.baseURL + "/" + strings.Join(escaped, "/")

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s %s body : %w", method, target, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("building %s %s : %w", method, target, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending %s %s : %w", method, target, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading %s %s : %w", method, target, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Method: method, URL: target, StatusCode: res.StatusCode, Body: string(data)}
		var envelope Envelope
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != "" {
			apiErr.Envelope = &envelope
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s : %w", method, target, err)
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
