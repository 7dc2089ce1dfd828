package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/apontamentos/relay/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	proxyPrefix         = "/proxy/"
	maxInboundBodyBytes = 10 << 20
	defaultTrafficLimit = 100

	// RequestIDHeader carries the exchange ID of a forwarded request back to the caller
	RequestIDHeader = "X-Relay-Request-Id"
)

// Router mounts the proxy and the admin surface on a chi router.
func (relay *Relay) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(relay.corsMiddleware)
	r.Use(relay.logMiddleware)
	r.Use(relay.recoverMiddleware)

	r.HandleFunc(proxyPrefix+"*", relay.handleProxy)

	r.Get("/healthz", relay.handleHealth)
	r.Method(http.MethodGet, "/metrics", relay.Metrics.Handler())

	r.Route("/relay", func(r chi.Router) {
		r.Get("/probe", relay.handleProbe)
		r.Get("/traffic", relay.handleTraffic)
		r.Get("/traffic/{id}", relay.handleExchange)
		r.Get("/logs", relay.handleLogs)
		r.Get("/stats", relay.handleStats)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Envelope{Error: "Not found", Message: r.URL.Path + " is not served by the relay"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Envelope{Error: "Method not allowed", Message: r.Method + " is not supported on " + r.URL.Path})
	})
	return r
}

// corsMiddleware adds the permissive cross-origin headers to every response and answers
// pre-flight requests with an empty 200.
func (relay *Relay) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logMiddleware logs every handled request once it completed.
func (relay *Relay) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			relay.Logger.Debug("handled request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

// recoverMiddleware converts a panic into the error envelope.
func (relay *Relay) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			relay.Logger.Error("recovered from panic",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeJSON(w, http.StatusInternalServerError, Envelope{
				Error:   "Internal proxy error",
				Message: fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// handleProxy forwards any verb received under /proxy/*.
func (relay *Relay) handleProxy(w http.ResponseWriter, r *http.Request) {
	in := Inbound{
		Method:   r.Method,
		Segments: proxySegments(r.URL),
		RawQuery: r.URL.RawQuery,
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInboundBodyBytes))
		if err != nil {
			status := http.StatusBadRequest
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				status = http.StatusRequestEntityTooLarge
			}
			relay.writeResult(w, badRequestFailure(status, fmt.Errorf("reading request body : %w", err), "Failed to read request body"))
			return
		}
		in.Body = body
	}

	relay.writeResult(w, relay.Forward(r.Context(), in))
}

// writeResult writes any Result the same way for every verb.
func (relay *Relay) writeResult(w http.ResponseWriter, result *Result) {
	if result.ID != uuid.Nil {
		w.Header().Set(RequestIDHeader, result.ID.String())
	}

	if result.Failed() {
		writeJSON(w, result.Status, result.Envelope)
		return
	}

	if result.Kind == KindNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Body)))
	w.WriteHeader(result.Status)
	if _, err := w.Write(result.Body); err != nil {
		relay.Logger.Debug("writing relayed body", "error", err)
	}
}

// proxySegments splits the escaped path after /proxy/ and unescapes every segment,
// so that an encoded "/" stays inside its segment.
func proxySegments(u *url.URL) []string {
	rest := strings.TrimPrefix(u.EscapedPath(), proxyPrefix)
	parts := strings.Split(rest, "/")
	for i, part := range parts {
		if unescaped, err := url.PathUnescape(part); err == nil {
			parts[i] = unescaped
		}
	}
	return parts
}

func (relay *Relay) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"environment": relay.Config.Environment,
		"upstream":    relay.Upstream,
		"recording":   relay.Recording(),
	})
}

func (relay *Relay) handleProbe(w http.ResponseWriter, r *http.Request) {
	report := relay.Probe(r.Context())
	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (relay *Relay) handleTraffic(w http.ResponseWriter, r *http.Request) {
	if !relay.requireRecorder(w) {
		return
	}

	limit := defaultTrafficLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Envelope{Error: "Invalid limit", Message: err.Error()})
			return
		}
		limit = parsed
	}

	summaries, err := relay.Repo.GetSummaries(limit)
	if err != nil {
		relay.writeRepoError(w, "Failed to read recorded traffic", err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (relay *Relay) handleExchange(w http.ResponseWriter, r *http.Request) {
	if !relay.requireRecorder(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Envelope{Error: "Invalid exchange ID", Message: err.Error()})
		return
	}

	exchange, err := relay.Repo.GetExchange(id)
	if err != nil {
		if errors.Is(err, domain.ErrExchangeNotFound) {
			writeJSON(w, http.StatusNotFound, Envelope{Error: "Exchange not found", Message: err.Error()})
			return
		}
		relay.writeRepoError(w, "Failed to read recorded exchange", err)
		return
	}
	writeJSON(w, http.StatusOK, exchange)
}

func (relay *Relay) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !relay.requireRecorder(w) {
		return
	}

	logs, err := relay.Repo.GetLogs()
	if err != nil {
		relay.writeRepoError(w, "Failed to read relay logs", err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (relay *Relay) handleStats(w http.ResponseWriter, r *http.Request) {
	if !relay.requireRecorder(w) {
		return
	}

	stats, err := relay.Repo.GetStats()
	if err != nil {
		relay.writeRepoError(w, "Failed to read recorder statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// requireRecorder answers 404 when recording is disabled.
func (relay *Relay) requireRecorder(w http.ResponseWriter) bool {
	if relay.Recording() {
		return true
	}
	writeJSON(w, http.StatusNotFound, Envelope{Error: "Recording disabled", Message: ErrRecorderDisabled.Error()})
	return false
}

func (relay *Relay) writeRepoError(w http.ResponseWriter, message string, err error) {
	relay.Logger.Error(message, "error", err)
	writeJSON(w, http.StatusInternalServerError, Envelope{Error: message, Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
