package deepgram

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
)

// TranscriptionClient streams audio to Deepgram's live transcription API.
// It holds at most one stream at a time; each Transcribe opens a fresh
// connection.
type TranscriptionClient struct {
	apiKey   string
	endpoint string
	model    string

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time
	readDone  chan struct{}
	cancel    context.CancelFunc
	closing   atomic.Bool

	// Only touched by the reader goroutine.
	accumulatedTranscript string
	unendedSegment        bool
}

type ClientOption func(*TranscriptionClient)

func WithModel(model string) ClientOption {
	return func(c *TranscriptionClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithEndpoint overrides the websocket URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *TranscriptionClient) {
		c.endpoint = endpoint
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	client := &TranscriptionClient{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Close asks Deepgram to flush the stream, waits for the reader to finish
// and drops the connection. It is safe to call when nothing is streaming.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	s.connMu.Lock()
	conn, readDone, cancel := s.conn, s.readDone, s.cancel
	s.connMu.Unlock()
	if conn == nil {
		return nil
	}

	s.closing.Store(true)
	var err error
	if err = s.StopStream(); err == nil {
		select {
		case <-readDone:
		case <-ctx.Done():
		case <-time.After(closeGracePeriod):
		}
	}

	if cancel != nil {
		cancel()
	}
	_ = conn.Close()
	<-readDone

	s.connMu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.connMu.Unlock()
	return err
}

const closeGracePeriod = 2 * time.Second

// StopStream tells Deepgram no more audio is coming.
func (s *TranscriptionClient) StopStream() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn != nil {
		if err := s.conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram stream through websocket: %w", err)
		}
	}
	return nil
}
