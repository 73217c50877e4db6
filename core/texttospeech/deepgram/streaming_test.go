package deepgram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-voice/core/texttospeech"
)

// newSpeakServer answers every Speak with a chunk of audio and every
// Flush with a Flushed confirmation.
func newSpeakServer(t *testing.T) (*httptest.Server, *[]string, *sync.Mutex) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	var received []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var parsed websocketMessage
			if err := json.Unmarshal(msg, &parsed); err != nil {
				return
			}
			mu.Lock()
			received = append(received, parsed.Type)
			mu.Unlock()

			switch parsed.Type {
			case "Speak":
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte(parsed.Text))
			case "Flush":
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Flushed"}`))
			case "Close":
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, &received, &mu
}

func TestSpeechGeneratorProducesAudioMarksAndEnd(t *testing.T) {
	server, received, mu := newSpeakServer(t)
	client, err := NewTextToSpeechClient("key", WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var audioMu sync.Mutex
	var audio, marks []string
	ended := make(chan texttospeech.SpeechEndedReport, 1)
	generator, err := client.NewSpeechGeneratorV0(context.Background(),
		texttospeech.WithSpeechAudioCallback(func(chunk []byte) {
			audioMu.Lock()
			defer audioMu.Unlock()
			audio = append(audio, string(chunk))
		}),
		texttospeech.WithSpeechMarkCallback(func(mark string) {
			audioMu.Lock()
			defer audioMu.Unlock()
			marks = append(marks, mark)
		}),
		texttospeech.WithSpeechEndedCallbackV0(func(report texttospeech.SpeechEndedReport) { ended <- report }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := generator.SendText("Hello."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := generator.Mark(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := generator.SendText(" Bye."); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := generator.EndOfText(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case report := <-ended:
		if report.Marks != 2 {
			t.Fatalf("expected 2 marks in report, got %d", report.Marks)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech to end")
	}

	audioMu.Lock()
	defer audioMu.Unlock()
	if strings.Join(audio, "") != "Hello. Bye." {
		t.Fatalf("expected audio for both segments in order, got %v", audio)
	}
	if strings.Join(marks, "|") != "Hello.| Bye." {
		t.Fatalf("expected marks per segment, got %v", marks)
	}
	if err := generator.SendText("more"); err == nil {
		t.Fatalf("expected SendText after end to fail")
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		got := strings.Join(*received, ",")
		mu.Unlock()
		if strings.HasSuffix(got, "Close") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected generator to close the websocket, got %v", *received)
}

func TestSpeechGeneratorEndOfTextWithoutTextEndsImmediately(t *testing.T) {
	server, _, _ := newSpeakServer(t)
	client, _ := NewTextToSpeechClient("key", WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")))

	ended := make(chan struct{}, 1)
	generator, err := client.NewSpeechGeneratorV0(context.Background(),
		texttospeech.WithSpeechEndedCallbackV0(func(texttospeech.SpeechEndedReport) { ended <- struct{}{} }))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = generator.EndOfText()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatalf("expected immediate end")
	}
}

func TestSpeechGeneratorCancelIsIdempotent(t *testing.T) {
	server, _, _ := newSpeakServer(t)
	client, _ := NewTextToSpeechClient("key", WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")))

	generator, err := client.NewSpeechGeneratorV0(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = generator.SendText("Hello")
	if err := generator.Cancel(); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if err := generator.Cancel(); err != nil {
		t.Fatalf("expected repeated cancel to be ignored, got %v", err)
	}
	if err := generator.SendText("more"); err == nil {
		t.Fatalf("expected SendText after cancel to fail")
	}
}

func TestNewTextToSpeechClientRejectsUnknownVoice(t *testing.T) {
	if _, err := NewTextToSpeechClient("key", WithVoice("not-a-voice")); err == nil {
		t.Fatalf("expected unknown voice to be rejected")
	}
	client, err := NewTextToSpeechClient("key", WithVoice("aura-luna-en"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Voice() != "aura-luna-en" {
		t.Fatalf("expected selected voice, got %q", client.Voice())
	}
}
