package relay

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"relayd/internal/ollama"
	"relayd/pkg/types"
)

// Defaults applied when the corresponding Options fields are unset.
const (
	DefaultChunkSize    = 8 << 10
	defaultReadyTimeout = 2 * time.Second
)

// Upstream is the subset of the daemon client the relay needs.
type Upstream interface {
	Tags(ctx context.Context) (json.RawMessage, error)
	Delete(ctx context.Context, name string) error
	Generate(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error)
}

// Options tunes a Service.
type Options struct {
	// ChunkSize is the largest unit written to the caller per upstream read.
	ChunkSize int
	// ReadyTimeout bounds the readiness probe.
	ReadyTimeout time.Duration
}

// Service relays model listing, deletion and chat generation to the upstream daemon.
type Service struct {
	up           Upstream
	chunkSize    int
	readyTimeout time.Duration
	log          zerolog.Logger
}

// New constructs a Service. The logger is used for every request path.
func New(up Upstream, opts Options, log zerolog.Logger) *Service {
	s := &Service{up: up, chunkSize: opts.ChunkSize, readyTimeout: opts.ReadyTimeout, log: log}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.readyTimeout <= 0 {
		s.readyTimeout = defaultReadyTimeout
	}
	return s
}

// ListModels returns the upstream tag listing verbatim.
func (s *Service) ListModels(ctx context.Context) (json.RawMessage, error) {
	start := time.Now()
	raw, err := s.up.Tags(ctx)
	if err != nil {
		s.logFor(ctx).Error().Err(err).Str("op", "list_models").Dur("dur", time.Since(start)).
			Msg("upstream call failed")
		return nil, err
	}
	return raw, nil
}

// DeleteModel removes name from the upstream daemon.
func (s *Service) DeleteModel(ctx context.Context, name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidRequest("name is required")
	}
	start := time.Now()
	if err := s.up.Delete(ctx, name); err != nil {
		s.logFor(ctx).Error().Err(err).Str("op", "delete_model").Str("model", name).
			Int("upstream_status", ollama.StatusCode(err)).Dur("dur", time.Since(start)).
			Msg("upstream call failed")
		return err
	}
	s.logFor(ctx).Info().Str("model", name).Msg("model deleted")
	return nil
}

// OpenChat validates req and opens the upstream generation stream. On success the
// caller must Relay or Close the returned stream.
func (s *Service) OpenChat(ctx context.Context, req types.ChatRequest) (*ChatStream, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, ErrInvalidRequest("model is required")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrInvalidRequest("prompt is required")
	}
	payload := ollama.GenerateRequest{Model: req.Model, Prompt: req.Prompt, Stream: true}
	if len(req.Images) > 0 {
		payload.Images = req.Images
	}
	l := s.logFor(ctx)
	l.Debug().Str("model", req.Model).Int("prompt_len", len(req.Prompt)).Int("images", len(payload.Images)).
		Msg("connecting upstream")
	start := time.Now()
	body, err := s.up.Generate(ctx, payload)
	if err != nil {
		l.Error().Err(err).Str("op", "chat").Str("model", req.Model).
			Int("upstream_status", ollama.StatusCode(err)).Dur("dur", time.Since(start)).
			Msg("upstream call failed")
		return nil, err
	}
	l.Debug().Str("model", req.Model).Dur("connect", time.Since(start)).Msg("upstream streaming")
	return NewChatStream(body, s.chunkSize), nil
}

// Ready reports whether the upstream daemon answers a tag listing.
func (s *Service) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()
	_, err := s.up.Tags(ctx)
	return err == nil
}

func (s *Service) logFor(ctx context.Context) *zerolog.Logger {
	l := s.log
	if rid := middleware.GetReqID(ctx); rid != "" {
		l = l.With().Str("request_id", rid).Logger()
	}
	return &l
}
