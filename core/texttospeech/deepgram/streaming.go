package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
)

var (
	errGeneratorClosed    = errors.New("speech generator closed")
	errGeneratorCancelled = errors.New("speech generator cancelled")
	errTextCompleted      = errors.New("speech generator text already completed")
)

// streamingRequest feeds text to Deepgram one marked segment at a time.
// The first segment is the one Deepgram is currently working on; later
// segments wait for its Flushed confirmation.
type streamingRequest struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	segments     []string
	textComplete bool
	cancelled    bool
	closed       bool
	ended        bool
	report       texttospeech.SpeechEndedReport

	options texttospeech.TextToSpeechOptions
}

func (c *TextToSpeechClient) NewSpeechGeneratorV0(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGeneratorV0, error) {
	ctx, span := tracer.Start(ctx, "open deepgram speech generator")
	defer span.End()

	req := &streamingRequest{
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback:   func([]byte) {},
			SpeechMarkCallback:    func(string) {},
			SpeechEndedCallbackV0: func(texttospeech.SpeechEndedReport) {},
			ErrorCallback:         func(error) {},
			EncodingInfo:          audio.GetDefaultEncodingInfo(),
		},
	}
	for _, opt := range opts {
		opt(&req.options)
	}

	var err error
	if req.ws, err = c.connectWebsocket(ctx, req.options.EncodingInfo); err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	go req.processIncomingMessages()

	return req, nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not set")
	}

	speakUrl, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid deepgram endpoint: %w", err)
	}
	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	speakUrl.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakUrl.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (r *streamingRequest) processIncomingMessages() {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.mu.Lock()
			expected := r.closed || r.ended
			r.mu.Unlock()
			if !expected && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("deepgram speak websocket read failed", "error", err)
				r.options.ErrorCallback(fmt.Errorf("deepgram speak stream ended: %w", err))
			}
			_ = r.ws.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) == 0 {
				continue
			}
			r.mu.Lock()
			dropped := r.cancelled || r.closed
			r.report.AudioBytes += len(msg)
			r.mu.Unlock()
			if !dropped {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Warn("failed to unmarshal deepgram speak message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.onFlushed()
			case "Warning", "Error":
				logger.Warn("deepgram speak reported a problem", "message", string(msg))
			}
		}
	}
}

func (r *streamingRequest) onFlushed() {
	r.mu.Lock()
	if len(r.segments) == 0 || r.cancelled || r.closed {
		r.mu.Unlock()
		return
	}
	reached := r.segments[0]
	r.segments = r.segments[1:]
	r.report.Marks++

	var sendErr error
	if len(r.segments) > 0 && r.segments[0] != "" {
		sendErr = r.sendWebsocketMessage(sendTextMsg(r.segments[0]))
	}
	if sendErr == nil && len(r.segments) > 1 {
		sendErr = r.sendWebsocketMessage(flushMsg)
	}
	ended := r.finishIfDoneLocked()
	report := r.report
	r.mu.Unlock()

	if sendErr != nil {
		logger.Warn("failed to continue deepgram speech", "error", sendErr)
	}
	r.options.SpeechMarkCallback(reached)
	if ended {
		r.options.SpeechEndedCallbackV0(report)
		_ = r.Close()
	}
}

// finishIfDoneLocked reports whether all text has been generated.
func (r *streamingRequest) finishIfDoneLocked() bool {
	if r.ended || !r.textComplete {
		return false
	}
	if len(r.segments) == 0 || (len(r.segments) == 1 && r.segments[0] == "") {
		r.segments = nil
		r.ended = true
		return true
	}
	return false
}

func (r *streamingRequest) usableLocked() error {
	if r.closed {
		return errGeneratorClosed
	} else if r.cancelled {
		return errGeneratorCancelled
	} else if r.textComplete {
		return errTextCompleted
	}
	return nil
}

func (r *streamingRequest) SendText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked(); err != nil {
		return err
	}

	if len(r.segments) == 0 {
		r.segments = append(r.segments, "")
	}
	if len(r.segments) == 1 {
		if err := r.sendWebsocketMessage(sendTextMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket send text message: %w", err)
		}
	}
	r.segments[len(r.segments)-1] += text
	return nil
}

func (r *streamingRequest) Mark() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.usableLocked(); err != nil {
		return err
	}
	return r.markLocked()
}

func (r *streamingRequest) markLocked() error {
	if len(r.segments) == 1 {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	// NOTE: Deepgram sometimes drops text that is sent right after a flush,
	// so the next segment is held back until the flush is confirmed.
	r.segments = append(r.segments, "")
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errGeneratorClosed
	} else if r.cancelled {
		r.mu.Unlock()
		return errGeneratorCancelled
	} else if r.textComplete {
		r.mu.Unlock()
		return nil
	}

	r.textComplete = true
	var err error
	if last := len(r.segments) - 1; last >= 0 && r.segments[last] != "" {
		err = r.markLocked()
	}
	ended := r.finishIfDoneLocked()
	report := r.report
	r.mu.Unlock()

	if ended {
		r.options.SpeechEndedCallbackV0(report)
		_ = r.Close()
	}
	return err
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	if r.closed || r.cancelled {
		r.mu.Unlock()
		return nil
	}
	r.cancelled = true
	r.segments = nil
	err := r.sendWebsocketMessage(clearMsg)
	r.mu.Unlock()

	closeErr := r.Close()
	if err != nil {
		return fmt.Errorf("failed to send websocket clear message: %w", err)
	}
	return closeErr
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	err := r.sendWebsocketMessage(closeMsg)
	r.closed = true
	r.mu.Unlock()

	if err != nil {
		if aggressiveCloseErr := r.ws.Close(); aggressiveCloseErr != nil {
			return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
		}
	}
	return nil
}

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func sendTextMsg(text string) websocketMessage {
	return websocketMessage{Type: "Speak", Text: text}
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

// sendWebsocketMessage must be called with mu held.
func (r *streamingRequest) sendWebsocketMessage(msg websocketMessage) error {
	if r.closed || r.ws == nil {
		return errGeneratorClosed
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
