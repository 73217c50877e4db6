package google

import (
	"errors"
	"strings"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func result(transcript string, final bool) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: transcript}},
		IsFinal:      final,
	}
}

func TestResultStateEmitsSnapshotsThenFinalOnActivityEnd(t *testing.T) {
	var interim, final []string
	state := newResultState(speechtotext.NewTranscriptionOptions(
		speechtotext.WithInterimTranscriptionCallback(func(text string) { interim = append(interim, text) }),
		speechtotext.WithTranscriptionCallback(func(text string) { final = append(final, text) }),
	))

	state.apply(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{result("what", false)}})
	state.apply(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{result("what time", true)}})
	state.apply(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{result("is it", false)}})
	state.apply(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{result("is it", true)}})
	state.apply(&speechpb.StreamingRecognizeResponse{SpeechEventType: speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_END})

	expected := "what|what time|what time is it|what time is it"
	if got := strings.Join(interim, "|"); got != expected {
		t.Fatalf("expected interim %q, got %q", expected, got)
	}
	if len(final) != 1 || final[0] != "what time is it" {
		t.Fatalf("expected one final transcript, got %v", final)
	}
}

func TestResultStateFlushWithoutFinalizedTextIsSilent(t *testing.T) {
	called := false
	state := newResultState(speechtotext.NewTranscriptionOptions(
		speechtotext.WithTranscriptionCallback(func(string) { called = true }),
	))
	state.apply(&speechpb.StreamingRecognizeResponse{Results: []*speechpb.StreamingRecognitionResult{result("hm", false)}})
	state.flush()

	if called {
		t.Fatalf("expected no final transcript without finalized results")
	}
}

func TestConvertEncodingRejectsUnknownFormat(t *testing.T) {
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000}); err == nil {
		t.Fatalf("expected unknown format to be rejected")
	}
	config, err := convertEncoding(audio.GetDefaultEncodingInfo())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.ExplicitDecodingConfig.GetEncoding() != speechpb.ExplicitDecodingConfig_LINEAR16 {
		t.Fatalf("expected LINEAR16, got %v", config.ExplicitDecodingConfig.GetEncoding())
	}
}

func TestIsCancelled(t *testing.T) {
	if !isCancelled(status.Error(codes.Canceled, "context canceled")) {
		t.Fatalf("expected canceled status to be recognized")
	}
	if isCancelled(errors.New("other")) {
		t.Fatalf("expected plain error not to count as cancelled")
	}
}

func TestNewTranscriptionClientDefaults(t *testing.T) {
	client := NewTranscriptionClient(Config{ProjectID: "p"})
	if client.location != defaultLocation || client.model != defaultModel {
		t.Fatalf("expected defaults, got location=%q model=%q", client.location, client.model)
	}
}
