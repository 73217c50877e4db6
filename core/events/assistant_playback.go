package events

const (
	// KindAssistantPlaybackStarted identifies playback start for a reply.
	KindAssistantPlaybackStarted Kind = "assistant_playback.started"
	// KindAssistantPlaybackEnded identifies the playback completion milestone.
	KindAssistantPlaybackEnded Kind = "assistant_playback.ended"
	// KindAssistantPlaybackInterrupted identifies playback that never finished.
	KindAssistantPlaybackInterrupted Kind = "assistant_playback.interrupted"
)

// AssistantPlaybackStarted marks the start of assistant playback.
type AssistantPlaybackStarted struct {
	Base
	Sequence   int64
	Transcript string
}

// NewAssistantPlaybackStarted creates an assistant playback started event.
func NewAssistantPlaybackStarted(sequence int64, transcript string) AssistantPlaybackStarted {
	return AssistantPlaybackStarted{Base: NewBase(KindAssistantPlaybackStarted), Sequence: sequence, Transcript: transcript}
}

// AssistantPlaybackEnded marks the end of assistant playback.
type AssistantPlaybackEnded struct {
	Base
	Sequence   int64
	Transcript string
}

// NewAssistantPlaybackEnded creates an assistant playback ended event.
func NewAssistantPlaybackEnded(sequence int64, transcript string) AssistantPlaybackEnded {
	return AssistantPlaybackEnded{Base: NewBase(KindAssistantPlaybackEnded), Sequence: sequence, Transcript: transcript}
}

// AssistantPlaybackInterrupted marks playback that was stopped or dropped.
type AssistantPlaybackInterrupted struct {
	Base
	Sequence   int64
	Transcript string
}

// NewAssistantPlaybackInterrupted creates an assistant playback interrupted event.
func NewAssistantPlaybackInterrupted(sequence int64, transcript string) AssistantPlaybackInterrupted {
	return AssistantPlaybackInterrupted{Base: NewBase(KindAssistantPlaybackInterrupted), Sequence: sequence, Transcript: transcript}
}
