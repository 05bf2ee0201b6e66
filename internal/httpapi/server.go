package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relayd/internal/relay"
	"relayd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels(ctx context.Context) (json.RawMessage, error)
	DeleteModel(ctx context.Context, name string) error
	// OpenChat returns an open stream only after the upstream accepted the request.
	OpenChat(ctx context.Context, req types.ChatRequest) (*relay.ChatStream, error)
	Ready(ctx context.Context) bool
}

// NewMux builds the relay router.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: correlation id, request id, real ip, recoverer
	r.Use(correlationID)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints; NDJSON is not in chi's compressible set
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			ExposedHeaders: []string{middleware.RequestIDHeader},
		}))
	}

	// @Summary  List models
	// @Description Returns the upstream daemon's /api/tags body unchanged.
	// @Produce  json
	// @Success  200 {object} map[string]any
	// @Failure  500 {object} types.ErrorResponse
	// @Router   /api/models [get]
	r.Get("/api/models", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		raw, err := svc.ListModels(r.Context())
		if err != nil {
			status := syncErrorStatus(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, "models", status, start, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
		logEnd(r, "models", http.StatusOK, start, nil)
	})

	// @Summary  Delete a model
	// @Accept   json
	// @Produce  json
	// @Param    body body types.DeleteRequest true "Model to delete"
	// @Success  200 {object} types.DeleteResponse
	// @Failure  400 {object} types.ErrorResponse
	// @Failure  415 {object} types.ErrorResponse
	// @Failure  500 {object} types.ErrorResponse
	// @Router   /api/delete [post]
	r.Post("/api/delete", func(w http.ResponseWriter, r *http.Request) {
		var req types.DeleteRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		start := time.Now()
		if err := svc.DeleteModel(r.Context(), req.Name); err != nil {
			status := syncErrorStatus(err)
			writeJSONError(w, status, err.Error())
			logEnd(r, "delete", status, start, err)
			return
		}
		writeJSON(w, http.StatusOK, types.DeleteResponse{
			Status:  "success",
			Message: fmt.Sprintf("Model %s deleted.", req.Name),
		})
		logEnd(r, "delete", http.StatusOK, start, nil)
	})

	// @Summary  Chat-generate (streaming)
	// @Description Streams the upstream /api/generate NDJSON body verbatim.
	// @Accept   json
	// @Produce  application/x-ndjson
	// @Param    body body types.ChatRequest true "Generation request"
	// @Success  200 {string} string "NDJSON stream"
	// @Failure  400 {object} types.ErrorResponse
	// @Failure  415 {object} types.ErrorResponse
	// @Failure  503 {object} types.ErrorResponse
	// @Router   /api/chat [post]
	r.Post("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req types.ChatRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		handleChat(svc, w, r, req)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready(r.Context()) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream unavailable"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	if staticDir != "" {
		fs := staticHandler(staticDir)
		r.Get("/*", fs.ServeHTTP)
		r.Head("/*", fs.ServeHTTP)
	}
	return r
}

// handleChat runs the chat state machine: it either writes one JSON error (before any
// stream byte) or commits to 200 NDJSON and relays until the upstream ends.
func handleChat(svc Service, w http.ResponseWriter, r *http.Request, req types.ChatRequest) {
	lvl := requestLogLevel(r)
	log := reqLog(r)
	start := time.Now()
	if lvl >= LevelInfo {
		log.Info().Str("path", r.URL.Path).Str("model", req.Model).Int("images", len(req.Images)).Msg("chat start")
	}

	// Shutdown cancels the upstream call too; request values (request id) are kept.
	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()

	st, err := svc.OpenChat(ctx, req)
	if err != nil {
		if r.Context().Err() != nil {
			if lvl >= LevelInfo {
				log.Info().Dur("dur", time.Since(start)).Msg("chat canceled by caller before streaming")
			}
			return
		}
		status := chatErrorStatus(err)
		writeJSONError(w, status, err.Error())
		logEnd(r, "chat", status, start, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	var flush func()
	if f, ok := w.(http.Flusher); ok {
		flush = f.Flush
		flush()
	}
	writer := io.Writer(w)
	if lvl >= LevelDebug {
		writer = io.MultiWriter(w, &loggingLineWriter{log: log})
	}

	n, err := st.Relay(writer, flush)
	switch {
	case err == nil:
		if lvl >= LevelInfo {
			log.Info().Int("status", http.StatusOK).Int64("bytes", n).Dur("dur", time.Since(start)).Msg("chat end")
		}
	case errors.Is(err, relay.ErrCallerGone) || r.Context().Err() != nil:
		if lvl >= LevelInfo {
			log.Info().Int64("bytes", n).Dur("dur", time.Since(start)).Msg("chat caller disconnected")
		}
	default:
		// Headers are out; the only honest signal left is a truncated response.
		log.Error().Err(err).Str("model", req.Model).Int64("bytes", n).Dur("dur", time.Since(start)).
			Bool("shutdown", serverBaseCtx.Err() != nil).Msg("chat stream aborted")
		panic(http.ErrAbortHandler)
	}
}

// decodeJSON enforces a JSON content type and a bounded body, writing the error
// response itself when it returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		// Oversized bodies also land here; keep 400 to avoid leaking size details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// logEnd writes the per-request summary line honoring the request's log level.
func logEnd(r *http.Request, op string, status int, start time.Time, err error) {
	lvl := requestLogLevel(r)
	log := reqLog(r)
	switch {
	case err != nil && lvl >= LevelError:
		log.Warn().Str("op", op).Int("status", status).Dur("dur", time.Since(start)).Err(err).Msg("request failed")
	case err == nil && lvl >= LevelInfo:
		log.Info().Str("op", op).Int("status", status).Dur("dur", time.Since(start)).Msg("request done")
	}
}
