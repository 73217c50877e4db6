package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

func TestNewCallbackConfigDefaultsToNoopCallbacks(t *testing.T) {
	callbacks, wsConfig := newCallbackConfig(speechtotext.TranscriptionOptions{})

	callbacks.interimTranscriptionCallback("interim")
	callbacks.partialTranscriptionCallback("final")
	callbacks.transcriptionCallback("full")
	callbacks.startSpeechCallback()
	callbacks.endSpeechCallback()
	callbacks.errorCallback(nil)

	if wsConfig.shouldDetectSpeechStart {
		t.Fatalf("expected speech-start detection disabled when callback is unset")
	}
	if wsConfig.shouldEnhanceSpeechEndingDetection {
		t.Fatalf("expected speech-end enhancement disabled when callbacks are unset")
	}
	if wsConfig.shouldRequestInterimResults {
		t.Fatalf("expected interim-results disabled when callbacks are unset")
	}
}

func TestNewCallbackConfigKeepsConfiguredCallbacksAndFlags(t *testing.T) {
	interimCalls := atomic.Int32{}
	transcriptionCalls := atomic.Int32{}
	startCalls := atomic.Int32{}

	callbacks, wsConfig := newCallbackConfig(speechtotext.NewTranscriptionOptions(
		speechtotext.WithInterimTranscriptionCallback(func(string) { interimCalls.Add(1) }),
		speechtotext.WithTranscriptionCallback(func(string) { transcriptionCalls.Add(1) }),
		speechtotext.WithSpeechStartedCallback(func() { startCalls.Add(1) }),
	))

	callbacks.interimTranscriptionCallback("hello")
	callbacks.transcriptionCallback("hello world")
	callbacks.startSpeechCallback()

	if !wsConfig.shouldDetectSpeechStart || !wsConfig.shouldEnhanceSpeechEndingDetection || !wsConfig.shouldRequestInterimResults {
		t.Fatalf("expected all optional features enabled, got %+v", wsConfig)
	}
	if interimCalls.Load() != 1 || transcriptionCalls.Load() != 1 || startCalls.Load() != 1 {
		t.Fatalf("expected each callback once, got interim=%d transcription=%d start=%d",
			interimCalls.Load(), transcriptionCalls.Load(), startCalls.Load())
	}
}

func TestProcessMessageBuildsSnapshotsAndFinal(t *testing.T) {
	var interim []string
	var final []string
	cb, _ := newCallbackConfig(speechtotext.NewTranscriptionOptions(
		speechtotext.WithInterimTranscriptionCallback(func(text string) { interim = append(interim, text) }),
		speechtotext.WithTranscriptionCallback(func(text string) { final = append(final, text) }),
	))

	client := NewTranscriptionClient("key")
	messages := []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"What time"}]}}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"is it"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"is it?"}]}}`,
	}
	for _, msg := range messages {
		if err := client.processMessage([]byte(msg), cb); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	expectedInterim := []string{"what", "What time", "What time is it", "What time is it?"}
	if strings.Join(interim, "|") != strings.Join(expectedInterim, "|") {
		t.Fatalf("expected interim %v, got %v", expectedInterim, interim)
	}
	if len(final) != 1 || final[0] != "What time is it?" {
		t.Fatalf("expected single final transcript, got %v", final)
	}
}

func TestProcessMessageUtteranceEndFlushesPendingSegment(t *testing.T) {
	var final []string
	cb, _ := newCallbackConfig(speechtotext.NewTranscriptionOptions(
		speechtotext.WithTranscriptionCallback(func(text string) { final = append(final, text) }),
	))

	client := NewTranscriptionClient("key")
	_ = client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`), cb)
	_ = client.processMessage([]byte(`{"type":"UtteranceEnd"}`), cb)
	_ = client.processMessage([]byte(`{"type":"UtteranceEnd"}`), cb)

	if len(final) != 1 || final[0] != "hello" {
		t.Fatalf("expected one final transcript, got %v", final)
	}
}

func TestProcessMessageRejectsMalformedPayload(t *testing.T) {
	cb, _ := newCallbackConfig(speechtotext.TranscriptionOptions{})
	client := NewTranscriptionClient("key")

	if err := client.processMessage([]byte(`not json`), cb); err == nil {
		t.Fatalf("expected malformed payload to fail")
	}
	if err := client.processMessage([]byte(`{}`), cb); err == nil {
		t.Fatalf("expected payload without type to fail")
	}
}

func TestTranscribeStreamsResultsFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	var query string
	var received atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		query = r.URL.RawQuery
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msgType, _, err := conn.ReadMessage()
		if err != nil || msgType != websocket.BinaryMessage {
			return
		}
		received.Add(1)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hi"}]}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"hi there"}]}}`))

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(msg), "CloseStream") {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	defer server.Close()

	var events []string
	finalReceived := make(chan struct{})
	client := NewTranscriptionClient("key",
		WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")+"/v1/listen"))

	err := client.Transcribe(context.Background(),
		speechtotext.WithInterimTranscriptionCallback(func(text string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "interim:"+text)
		}),
		speechtotext.WithTranscriptionCallback(func(text string) {
			mu.Lock()
			events = append(events, "final:"+text)
			mu.Unlock()
			close(finalReceived)
		}),
		speechtotext.WithErrorCallback(func(err error) {
			t.Errorf("unexpected stream error: %v", err)
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.Transcribe(context.Background()); err != speechtotext.ErrTranscriptionInProgress {
		t.Fatalf("expected ErrTranscriptionInProgress, got %v", err)
	}
	if err := client.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("unexpected error sending audio: %v", err)
	}

	select {
	case <-finalReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for final transcript")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := client.SendAudio([]byte{0}); err != speechtotext.ErrNotTranscribing {
		t.Fatalf("expected ErrNotTranscribing after close, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{"interim:hi", "interim:hi there", "final:hi there"}
	if strings.Join(events, "|") != strings.Join(expected, "|") {
		t.Fatalf("expected %v, got %v", expected, events)
	}
	if received.Load() != 1 {
		t.Fatalf("expected server to receive audio")
	}
	if !strings.Contains(query, "language=en-US") || !strings.Contains(query, "model=nova-3") {
		t.Fatalf("expected default language and model in query, got %q", query)
	}
}
