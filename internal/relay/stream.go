package relay

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrCallerGone wraps failures to write to the caller (client disconnected).
var ErrCallerGone = errors.New("caller went away")

// ChatStream copies an open upstream generation body to a caller in bounded chunks.
type ChatStream struct {
	body      io.ReadCloser
	chunkSize int
	closeOnce sync.Once
	closeErr  error
}

// NewChatStream wraps an upstream body. chunkSize <= 0 selects DefaultChunkSize.
func NewChatStream(body io.ReadCloser, chunkSize int) *ChatStream {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChatStream{body: body, chunkSize: chunkSize}
}

// Relay writes every upstream read to w as soon as it arrives, calling flush (if
// non-nil) after each write, until the upstream ends the body. It always closes the
// stream before returning. A nil error means the upstream finished cleanly; errors
// wrapping ErrCallerGone mean w failed; any other error is an upstream read failure
// (including cancellation of the request context).
func (s *ChatStream) Relay(w io.Writer, flush func()) (int64, error) {
	defer s.Close()
	streamsInflight.Inc()
	defer streamsInflight.Dec()

	buf := make([]byte, s.chunkSize)
	var total int64
	for {
		n, rerr := s.body.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			total += int64(wn)
			streamBytes.Add(float64(wn))
			if werr != nil {
				streamEnds.WithLabelValues(endCallerGone).Inc()
				return total, fmt.Errorf("%w: %w", ErrCallerGone, werr)
			}
			streamChunks.Inc()
			if flush != nil {
				flush()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				streamEnds.WithLabelValues(endEOF).Inc()
				return total, nil
			}
			streamEnds.WithLabelValues(endUpstreamError).Inc()
			return total, fmt.Errorf("read upstream stream: %w", rerr)
		}
	}
}

// Close releases the upstream connection. Safe to call more than once.
func (s *ChatStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.body.Close() })
	return s.closeErr
}
