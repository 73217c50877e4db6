package events

import "github.com/koscakluka/ema-voice/core/conversations"

const (
	// KindConversationTurnAppended identifies a new conversation log entry.
	KindConversationTurnAppended Kind = "conversation.turn_appended"
	// KindConversationReset identifies the conversation log being cleared.
	KindConversationReset Kind = "conversation.reset"
)

// ConversationTurnAppended carries the entry that was added to the log.
type ConversationTurnAppended struct {
	Base
	Turn conversations.Turn
}

// NewConversationTurnAppended creates a conversation turn appended event.
func NewConversationTurnAppended(turn conversations.Turn) ConversationTurnAppended {
	return ConversationTurnAppended{Base: NewBase(KindConversationTurnAppended), Turn: turn}
}

// ConversationReset carries how many entries were cleared.
type ConversationReset struct {
	Base
	Cleared int
}

// NewConversationReset creates a conversation reset event.
func NewConversationReset(cleared int) ConversationReset {
	return ConversationReset{Base: NewBase(KindConversationReset), Cleared: cleared}
}
