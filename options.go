package relay

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WithOptions applies a series of configuration functions to the relay instance.
// Each option function can modify the relay configuration and return an error if it fails.
func (relay *Relay) WithOptions(options ...func(*Relay) error) error {
	for _, option := range options {
		err := option(relay)
		if err != nil {
			return fmt.Errorf("applying option on relay : %w", err)
		}
	}
	return nil
}

// WithConfig sets the relay configuration. The upstream deadline is taken from the config,
// a later WithTimeout overrides it.
func WithConfig(cfg *Config) func(*Relay) error {
	return func(relay *Relay) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		if cfg.DefaultUpstream == "" {
			return errors.New("default upstream is empty")
		}
		if cfg.Environment == ProductionEnvironment && cfg.ProductionUpstream == "" {
			return errors.New("production upstream is empty")
		}
		relay.Config = cfg
		relay.timeout = cfg.UpstreamTimeout
		return nil
	}
}

// WithLogger sets the structured logger, a nil logger discards every record.
func WithLogger(logger *slog.Logger) func(*Relay) error {
	return func(relay *Relay) error {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		relay.Logger = logger
		return nil
	}
}

// WithRepo sets the recorder repository. A previously configured repository is closed.
func WithRepo(repo Repository) func(*Relay) error {
	return func(relay *Relay) error {
		if relay.Repo != nil {
			if err := relay.Repo.Close(); err != nil {
				return fmt.Errorf("closing previous repository : %w", err)
			}
			relay.Repo = nil
		}
		relay.Repo = repo
		return nil
	}
}

// WithTimeout sets the upstream deadline. 0 disables it.
func WithTimeout(timeout time.Duration) func(*Relay) error {
	return func(relay *Relay) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative : %s", timeout)
		}
		relay.timeout = timeout
		return nil
	}
}

// WithTransport sets the round tripper used for the outbound call. The client built
// around it still refuses to follow redirects.
func WithTransport(transport http.RoundTripper) func(*Relay) error {
	return func(relay *Relay) error {
		if transport == nil {
			return errors.New("transport is nil")
		}
		relay.transport = transport
		return nil
	}
}
