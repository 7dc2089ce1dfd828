package relay

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestWithLogger(t *testing.T) {
	t.Run("sets custom logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))

		relay, err := New(
			WithLogger(logger),
		)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		if relay.Logger != logger {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", logger, relay.Logger)
		}

		if !strings.Contains(buf.String(), "relay configured") {
			t.Fatalf("\nwanted:\nlog output containing 'relay configured'\ngot:\n%q", buf.String())
		}
	})

	t.Run("handles nil logger safely", func(t *testing.T) {
		relay, err := New(
			WithLogger(nil),
		)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		if relay.Logger == nil {
			t.Fatalf("\nwanted:\nnon-nil logger\ngot:\nnil")
		}

		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("\nwanted:\nno panic\ngot:\n%v", r)
			}
		}()

		relay.Logger.Info("safe check")
	})
}

func TestWithConfig(t *testing.T) {
	t.Run("should reject a nil config", func(t *testing.T) {
		if _, err := New(WithConfig(nil)); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should reject an empty default upstream", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.DefaultUpstream = ""
		if _, err := New(WithConfig(cfg)); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should reject an empty production upstream in production", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Environment = ProductionEnvironment
		cfg.ProductionUpstream = ""
		if _, err := New(WithConfig(cfg)); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should take the timeout from the config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.UpstreamTimeout = 3 * time.Second
		relay, err := New(WithConfig(cfg))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		if relay.Timeout() != 3*time.Second {
			t.Fatalf("\nwanted:\n3s\ngot:\n%v", relay.Timeout())
		}
	})

	t.Run("a later WithTimeout should override the config", func(t *testing.T) {
		relay, err := New(WithConfig(DefaultConfig()), WithTimeout(0))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		if relay.Timeout() != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%v", relay.Timeout())
		}
	})
}

func TestWithRepo(t *testing.T) {
	t.Run("should close the previous repository", func(t *testing.T) {
		first := &memoryRepo{}
		second := &memoryRepo{}

		relay, err := New(WithRepo(first), WithRepo(second))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		if !first.closed {
			t.Fatalf("\nwanted:\nfirst repository closed\ngot:\nopen")
		}
		if relay.Repo != second || !relay.Recording() {
			t.Fatalf("\nwanted:\nsecond repository\ngot:\n%v", relay.Repo)
		}
	})
}

func TestWithTransport(t *testing.T) {
	t.Run("should reject a nil transport", func(t *testing.T) {
		if _, err := New(WithTransport(nil)); err == nil {
			t.Fatalf("\nwanted:\nerror\ngot:\nnil")
		}
	})

	t.Run("should wrap the transport in the relay client", func(t *testing.T) {
		base := &testBaseRoundTripper{}
		relay, err := New(WithTransport(base))
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer relay.Close()

		rt, ok := relay.Client.Transport.(*relayRoundTripper)
		if !ok || rt.base != http.RoundTripper(base) {
			t.Fatalf("\nwanted:\nrelayRoundTripper around the transport\ngot:\n%T", relay.Client.Transport)
		}
	})
}
