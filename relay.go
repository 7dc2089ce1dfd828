// Package relay provides a same-origin forwarding proxy for a remote JSON REST backend.
// Requests received under /proxy/* are rebuilt against the configured upstream base URL,
// forwarded once, and the upstream answer (or a normalized JSON error envelope) is relayed
// back to the caller.
//
// The core functionality includes:
//   - Upstream resolution from the environment indicator
//   - A martian modifier pipeline applied to every outbound request and upstream response
//   - Optional SQLite recording of every exchange and of the relay's own log entries
//   - An admin surface with health, Prometheus metrics, a connection probe and recorded traffic
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/apontamentos/relay/domain"
	"github.com/google/martian/fifo"
	"github.com/google/uuid"
)

// Repository defines the methods consumed by the relay to record traffic and logs.
type Repository interface {
	domain.TrafficRepository
	domain.LogRepository
	domain.StatsRepository
	Close() error
}

// RecordItem is an item written to the database through the WriteChannel.
// It is implemented by *domain.ForwardRequest, *domain.ForwardResponse and *domain.Log.
type RecordItem interface {
	// GetType returns a string identifier for the type of the item.
	GetType() string
}

// Relay forwards inbound requests to the resolved upstream and relays the answer.
type Relay struct {
	Config       *Config          // Relay configuration
	Upstream     string           // Upstream base URL, resolved once from Config
	Client       *http.Client     // Client used for the outbound call, never follows redirects
	Repo         Repository       // Optional recorder repository
	Modifiers    *fifo.Group      // Modifier group pipeline
	WriteChannel chan RecordItem  // DB Write Channel
	Logger       *slog.Logger     // Structured logger
	Metrics      *Metrics         // Prometheus collectors on a private registry
	timeout      time.Duration    // Upstream deadline, 0 disables it
	transport    http.RoundTripper
	mu           sync.RWMutex
	closed       bool
	writerDone   chan struct{}
}

// New creates a Relay with the default configuration and pipelines and applies the provided options.
// The upstream base URL is resolved after the options ran and stays fixed afterwards.
// When a repository is configured, the writer goroutine draining WriteChannel is started.
func New(options ...func(*Relay) error) (*Relay, error) {
	cfg := DefaultConfig()
	relay := &Relay{
		Config:       cfg,
		Modifiers:    fifo.NewGroup(),
		WriteChannel: make(chan RecordItem, 64),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:      NewMetrics(),
		timeout:      cfg.UpstreamTimeout,
	}
	relay.installDefaultModifiers()

	if err := relay.WithOptions(options...); err != nil {
		return nil, err
	}

	relay.Upstream = relay.Config.Upstream()
	if relay.Client == nil {
		relay.Client = newRelayClient(relay.transport)
	}

	if relay.Repo != nil {
		relay.writerDone = make(chan struct{})
		go relay.WriteToDB()
	}

	relay.Logger.Info("relay configured",
		"environment", relay.Config.Environment,
		"upstream", relay.Upstream,
		"timeout", relay.timeout,
		"recording", relay.Repo != nil,
	)
	return relay, nil
}

// installDefaultModifiers sets up the default request and response pipelines.
func (relay *Relay) installDefaultModifiers() {
	relay.AddRequestModifier(SetupRequestModifier)
	relay.AddRequestModifier(JSONHeadersModifier)
	relay.AddRequestModifier(WriteRequestModifier)

	relay.AddResponseModifier(ResponseTimeModifier)
	relay.AddResponseModifier(BufferBodyModifier)
	relay.AddResponseModifier(CompressedResponseModifier)
	relay.AddResponseModifier(WriteResponseModifier)
}

// AddRequestModifier accepts RequestModifierFunc and wraps it in a reqAdapter
func (relay *Relay) AddRequestModifier(modifier RequestModifierFunc) {
	adapter := &reqAdapter{relay: relay, modifier: modifier}
	relay.Modifiers.AddRequestModifier(adapter)
}

// AddResponseModifier accepts ResponseModifierFunc and wraps it in a resAdapter
func (relay *Relay) AddResponseModifier(modifier ResponseModifierFunc) {
	adapter := &resAdapter{relay: relay, modifier: modifier}
	relay.Modifiers.AddResponseModifier(adapter)
}

// ModifyRequest runs the request pipeline. ErrSkipPipeline stops the pipeline without failing the request.
func (relay *Relay) ModifyRequest(req *http.Request) error {
	if err := relay.Modifiers.ModifyRequest(req); err != nil && !errors.Is(err, ErrSkipPipeline) {
		return err
	}
	return nil
}

// ModifyResponse runs the response pipeline. ErrSkipPipeline stops the pipeline without failing the response.
func (relay *Relay) ModifyResponse(res *http.Response) error {
	if err := relay.Modifiers.ModifyResponse(res); err != nil && !errors.Is(err, ErrSkipPipeline) {
		return err
	}
	return nil
}

// Timeout returns the upstream deadline, 0 when disabled.
func (relay *Relay) Timeout() time.Duration {
	return relay.timeout
}

// Recording reports whether exchanges are recorded.
func (relay *Relay) Recording() bool {
	return relay.Repo != nil
}

// enqueue queues an item for the writer. Items are dropped when recording is disabled or the relay is closed.
func (relay *Relay) enqueue(item RecordItem) {
	relay.mu.RLock()
	defer relay.mu.RUnlock()
	if relay.closed || relay.Repo == nil {
		return
	}
	relay.WriteChannel <- item
}

// WriteToDB drains the WriteChannel into the repository until the channel is closed.
// Insertion errors are logged and never reach the caller of the forwarded request.
func (relay *Relay) WriteToDB() {
	if relay.writerDone != nil {
		defer close(relay.writerDone)
	}
	for item := range relay.WriteChannel {
		var err error
		switch castItem := item.(type) {
		case *domain.ForwardRequest:
			err = relay.Repo.InsertRequest(castItem)
		case *domain.ForwardResponse:
			err = relay.Repo.InsertResponse(castItem)
		case *domain.Log:
			err = relay.Repo.InsertLog(castItem)
		default:
			err = fmt.Errorf("unknown record type %s", item.GetType())
		}
		if err != nil {
			relay.Logger.Error("writing record", "type", item.GetType(), "error", err)
		}
	}
}

// WriteLog logs the message through the Logger and, when recording, persists it as a domain.Log.
func (relay *Relay) WriteLog(level string, message string, options ...func(log *domain.Log) error) error {
	var slogLevel slog.Level
	switch level {
	case "DEBUG":
		slogLevel = slog.LevelDebug
	case "INFO":
		slogLevel = slog.LevelInfo
	case "WARN":
		slogLevel = slog.LevelWarn
	case "ERROR", "FATAL":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("level should be either: DEBUG, INFO, WARN, ERROR, FATAL")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating new uuid : %w", err)
	}
	log := &domain.Log{
		ID:        id,
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
	for _, option := range options {
		if err := option(log); err != nil {
			return fmt.Errorf("applying log option : %w", err)
		}
	}

	attrs := make([]any, 0, 2+2*len(log.Context))
	if log.RequestID != nil {
		attrs = append(attrs, "request_id", log.RequestID.String())
	}
	for key, value := range log.Context {
		attrs = append(attrs, key, value)
	}
	relay.Logger.Log(context.Background(), slogLevel, message, attrs...)

	relay.enqueue(log)
	return nil
}

// Close stops the writer after it drained the queued records and closes the repository.
func (relay *Relay) Close() error {
	relay.mu.Lock()
	if relay.closed {
		relay.mu.Unlock()
		return nil
	}
	relay.closed = true
	close(relay.WriteChannel)
	relay.mu.Unlock()

	if relay.writerDone != nil {
		<-relay.writerDone
	}
	if relay.Repo != nil {
		if err := relay.Repo.Close(); err != nil {
			return fmt.Errorf("closing repository : %w", err)
		}
	}
	return nil
}
