package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relayd/internal/ollama"
	"relayd/pkg/types"
)

type fakeUpstream struct {
	tags      json.RawMessage
	tagsErr   error
	deleted   []string
	deleteErr error
	generated []ollama.GenerateRequest
	genBody   string
	genErr    error
}

func (f *fakeUpstream) Tags(ctx context.Context) (json.RawMessage, error) {
	return f.tags, f.tagsErr
}

func (f *fakeUpstream) Delete(ctx context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func (f *fakeUpstream) Generate(ctx context.Context, req ollama.GenerateRequest) (io.ReadCloser, error) {
	f.generated = append(f.generated, req)
	if f.genErr != nil {
		return nil, f.genErr
	}
	return io.NopCloser(strings.NewReader(f.genBody)), nil
}

func newService(up Upstream) *Service {
	return New(up, Options{}, zerolog.Nop())
}

func TestListModels_PassesBodyThrough(t *testing.T) {
	up := &fakeUpstream{tags: json.RawMessage(`{"models":[]}`)}
	raw, err := newService(up).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"models":[]}`, string(raw))
}

func TestListModels_UpstreamError(t *testing.T) {
	up := &fakeUpstream{tagsErr: &ollama.UnavailableError{Op: "tags", URL: "http://x/api/tags", Err: errors.New("connection refused")}}
	_, err := newService(up).ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, ollama.IsUnavailable(err))
}

func TestDeleteModel(t *testing.T) {
	up := &fakeUpstream{}
	require.NoError(t, newService(up).DeleteModel(context.Background(), "llama3"))
	assert.Equal(t, []string{"llama3"}, up.deleted)
}

func TestDeleteModel_EmptyNameNeverReachesUpstream(t *testing.T) {
	up := &fakeUpstream{}
	for _, name := range []string{"", "   "} {
		err := newService(up).DeleteModel(context.Background(), name)
		require.Error(t, err)
		assert.True(t, IsInvalidRequest(err))
	}
	assert.Empty(t, up.deleted)
}

func TestOpenChat_Validation(t *testing.T) {
	cases := []struct {
		name string
		req  types.ChatRequest
		msg  string
	}{
		{"missing model", types.ChatRequest{Prompt: "hi"}, "model is required"},
		{"blank prompt", types.ChatRequest{Model: "m", Prompt: "  "}, "prompt is required"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			up := &fakeUpstream{}
			_, err := newService(up).OpenChat(context.Background(), c.req)
			require.Error(t, err)
			assert.True(t, IsInvalidRequest(err))
			assert.EqualError(t, err, c.msg)
			assert.Empty(t, up.generated)
		})
	}
}

func TestOpenChat_Images(t *testing.T) {
	cases := []struct {
		name   string
		images []string
		want   []string
	}{
		{"omitted", nil, nil},
		{"empty list", []string{}, nil},
		{"ordered", []string{"b64-1", "b64-2", "b64-3"}, []string{"b64-1", "b64-2", "b64-3"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			up := &fakeUpstream{genBody: "{}\n"}
			st, err := newService(up).OpenChat(context.Background(), types.ChatRequest{Model: "m", Prompt: "p", Images: c.images})
			require.NoError(t, err)
			require.NoError(t, st.Close())
			require.Len(t, up.generated, 1)
			got := up.generated[0]
			assert.True(t, got.Stream)
			assert.Equal(t, c.want, got.Images)
			b, err := json.Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, c.want != nil, bytes.Contains(b, []byte(`"images"`)))
		})
	}
}

func TestOpenChat_UpstreamFailure(t *testing.T) {
	up := &fakeUpstream{genErr: &ollama.StatusError{Op: "generate", StatusCode: 500, Status: "500 Internal Server Error"}}
	st, err := newService(up).OpenChat(context.Background(), types.ChatRequest{Model: "m", Prompt: "p"})
	assert.Nil(t, st)
	require.Error(t, err)
	assert.True(t, ollama.IsUnavailable(err))
	assert.False(t, IsInvalidRequest(err))
}

func TestOpenChat_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	up := &fakeUpstream{genErr: &ollama.UnavailableError{Op: "generate", URL: "u", Err: errors.New("refused")}}
	s := New(up, Options{}, zerolog.New(&buf))
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "rid-42")
	_, err := s.OpenChat(ctx, types.ChatRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"request_id":"rid-42"`)
	assert.Contains(t, buf.String(), `"op":"chat"`)
}

func TestReady(t *testing.T) {
	assert.True(t, newService(&fakeUpstream{tags: json.RawMessage(`{}`)}).Ready(context.Background()))
	assert.False(t, newService(&fakeUpstream{tagsErr: errors.New("down")}).Ready(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	s := newService(&fakeUpstream{})
	assert.Equal(t, DefaultChunkSize, s.chunkSize)
	assert.Equal(t, defaultReadyTimeout, s.readyTimeout)
}
