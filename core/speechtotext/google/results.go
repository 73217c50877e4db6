package google

import (
	"strings"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

// resultState folds Cloud Speech responses into the snapshot callbacks.
// Finalized results accumulate; the end of voice activity emits the full
// transcript.
type resultState struct {
	callbacks   speechtotext.TranscriptionOptions
	accumulated string
}

func newResultState(options speechtotext.TranscriptionOptions) *resultState {
	noop := func(string) {}
	if options.InterimTranscriptionCallback == nil {
		options.InterimTranscriptionCallback = noop
	}
	if options.PartialTranscriptionCallback == nil {
		options.PartialTranscriptionCallback = noop
	}
	if options.TranscriptionCallback == nil {
		options.TranscriptionCallback = noop
	}
	if options.SpeechStartedCallback == nil {
		options.SpeechStartedCallback = func() {}
	}
	if options.SpeechEndedCallback == nil {
		options.SpeechEndedCallback = func() {}
	}
	if options.ErrorCallback == nil {
		options.ErrorCallback = func(error) {}
	}
	return &resultState{callbacks: options}
}

func (s *resultState) apply(resp *speechpb.StreamingRecognizeResponse) {
	switch resp.GetSpeechEventType() {
	case speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_BEGIN:
		s.callbacks.SpeechStartedCallback()
	case speechpb.StreamingRecognizeResponse_SPEECH_ACTIVITY_END:
		s.flush()
		s.callbacks.SpeechEndedCallback()
		return
	}

	pending := ""
	for _, result := range resp.GetResults() {
		if len(result.GetAlternatives()) == 0 {
			continue
		}
		transcript := strings.TrimSpace(result.GetAlternatives()[0].GetTranscript())
		if transcript == "" {
			continue
		}
		if result.GetIsFinal() {
			s.accumulated = join(s.accumulated, transcript)
			s.callbacks.PartialTranscriptionCallback(transcript)
		} else {
			pending = join(pending, transcript)
		}
	}

	if snapshot := join(s.accumulated, pending); snapshot != "" {
		s.callbacks.InterimTranscriptionCallback(snapshot)
	}
}

// flush emits whatever has been finalized so far.
func (s *resultState) flush() {
	if s.accumulated == "" {
		return
	}
	full := s.accumulated
	s.accumulated = ""
	s.callbacks.TranscriptionCallback(full)
}

func join(a, b string) string {
	return strings.TrimSpace(a + " " + b)
}
