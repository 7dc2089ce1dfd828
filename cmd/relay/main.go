// Command relay serves the /proxy forwarding endpoint together with its admin surface.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/apontamentos/relay"
	"github.com/apontamentos/relay/db"
	"github.com/apontamentos/relay/listener"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var openDatabase = db.New

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaultDir, err := os.UserConfigDir()
	if err != nil {
		defaultDir = "."
	}

	configDir := flag.String("config", filepath.Join(defaultDir, "relay"), "directory holding config.yaml and the traffic database")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: relay [flags]\n       relay [flags] set <key> <value>\n\nflags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	cfg, err := relay.LoadConfig(*configDir)
	if err != nil {
		return fmt.Errorf("loading config : %w", err)
	}

	if flag.NArg() > 0 {
		return runCommand(cfg, flag.Args())
	}

	r, err := newRelay(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			logger.Error("closing relay", "error", err)
		}
	}()

	var tlsConfig *tls.Config
	if cfg.TLSEnabled() {
		certificate, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("loading tls key pair : %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{certificate}, MinVersion: tls.VersionTLS12}
	}

	base, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s : %w", cfg.ListenAddress, err)
	}
	ln := listener.NewResilientListener(listener.NewProtocolMuxListener(base, tlsConfig), logger)

	server := &http.Server{
		Handler:           r.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("relay listening", "address", base.Addr().String(), "tls", tlsConfig != nil)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving : %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server : %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newRelay builds the relay from cfg, opening the traffic database when recording is on.
// The database is closed again if the relay cannot be created.
func newRelay(cfg *relay.Config, logger *slog.Logger) (*relay.Relay, error) {
	options := []func(*relay.Relay) error{
		relay.WithConfig(cfg),
		relay.WithLogger(logger),
	}

	var conn *sqlx.DB
	if cfg.RecordTraffic {
		var err error
		conn, err = openDatabase(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening traffic database %s : %w", cfg.DatabasePath, err)
		}
		options = append(options, relay.WithRepo(db.NewRelayRepo(conn)))
	}

	r, err := relay.New(options...)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("creating relay : %w", err)
	}
	return r, nil
}

// runCommand handles the subcommands that edit config.yaml instead of serving.
func runCommand(cfg *relay.Config, args []string) error {
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return errors.New("usage: relay set <key> <value>")
		}
		if err := cfg.Set(args[1], args[2]); err != nil {
			return fmt.Errorf("setting %s : %w", args[1], err)
		}
		fmt.Printf("%s = %s written to %s\n", args[1], args[2], filepath.Join(cfg.ConfigDir, "config.yaml"))
		return nil
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}
