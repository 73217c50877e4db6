package llms

type CompletionOptions struct {
	// Instructions is the system prompt.
	Instructions string
	// History holds earlier messages, oldest first. The prompt itself is
	// never part of it.
	History []Message
}

type CompletionOption func(*CompletionOptions)

func WithInstructions(instructions string) CompletionOption {
	return func(o *CompletionOptions) {
		o.Instructions = instructions
	}
}

func WithHistory(history []Message) CompletionOption {
	return func(o *CompletionOptions) {
		o.History = history
	}
}

func NewCompletionOptions(opts ...CompletionOption) CompletionOptions {
	options := CompletionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
