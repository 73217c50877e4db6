package orchestration

import "github.com/koscakluka/ema-voice/core/events"

// State is the turn controller's position in the turn cycle. Exactly one
// state holds at a time.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateFinalizing
	StateAwaitingCompletion
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateFinalizing:
		return "finalizing"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// StateChanged is published on every transition.
type StateChanged struct {
	events.Base
	TurnID string
	From   State
	To     State
}

func newStateChanged(turnID string, from, to State) StateChanged {
	return StateChanged{
		Base:   events.NewBase(events.KindTurnStateChanged),
		TurnID: turnID,
		From:   from,
		To:     to,
	}
}
