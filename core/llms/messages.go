package llms

import "github.com/koscakluka/ema-voice/core/conversations"

// Response is a single reply from an LLM
type Response struct {
	Content string
	// Refused is set when the model declined to answer; Content then holds
	// the refusal text.
	Refused bool
	Usage   *Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// MessageRole describes who is the message from
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one line of conversation history sent along with a prompt.
type Message struct {
	Role    MessageRole
	Content string
}

// MessagesFromTurns maps logged conversation turns to history messages,
// oldest first.
func MessagesFromTurns(turns []conversations.Turn) []Message {
	messages := make([]Message, 0, len(turns))
	for _, turn := range turns {
		role := MessageRoleUser
		if turn.Speaker == conversations.SpeakerAssistant {
			role = MessageRoleAssistant
		}
		messages = append(messages, Message{Role: role, Content: turn.Text})
	}
	return messages
}
