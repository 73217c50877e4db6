package turnend

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"github.com/koscakluka/ema-voice/core/llms/groq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed classifier.tmpl
var classifierSystemPrompt string

//go:embed classifier_structured.tmpl
var classifierStructuredSystemPrompt string

type Completeness struct {
	Complete bool `json:"complete" jsonschema:"title=Complete,description=Whether the speaker finished their turn"`
}

// LLM is any completion service. Groq clients are prompted for structured
// output, everything else is asked for plain JSON.
type LLM interface {
	Complete(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error)
}

// LLMClassifier asks a language model whether a transcript is a finished
// turn.
type LLMClassifier struct {
	llm     LLM
	history func() []llms.Message
}

type ClassifierOption func(*LLMClassifier)

// WithHistory supplies earlier conversation turns as context for the
// decision.
func WithHistory(history func() []llms.Message) ClassifierOption {
	return func(c *LLMClassifier) {
		c.history = history
	}
}

func NewLLMClassifier(llm LLM, opts ...ClassifierOption) *LLMClassifier {
	classifier := &LLMClassifier{llm: llm}
	for _, opt := range opts {
		opt(classifier)
	}
	return classifier
}

func (c *LLMClassifier) IsComplete(ctx context.Context, transcript string) (bool, error) {
	ctx, span := tracer.Start(ctx, "classify turn end")
	defer span.End()

	var history []llms.Message
	if c.history != nil {
		history = c.history()
	}

	complete, err := classify(ctx, transcript, c.llm, history)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}
	span.SetAttributes(attribute.Bool("turn_end.complete", complete))
	return complete, nil
}

func classify(ctx context.Context, transcript string, llm LLM, history []llms.Message) (bool, error) {
	switch llm := llm.(type) {
	case *groq.Client:
		resp, err := groq.PromptJSONSchema[Completeness](ctx, llm, transcript,
			llms.WithInstructions(classifierStructuredSystemPrompt),
			llms.WithHistory(history),
		)
		if err != nil {
			return false, fmt.Errorf("failed to prompt turn end classifier: %w", err)
		}
		return resp.Complete, nil

	case LLM:
		response, err := llm.Complete(ctx, transcript,
			llms.WithInstructions(classifierSystemPrompt),
			llms.WithHistory(history),
		)
		if err != nil {
			return false, fmt.Errorf("failed to prompt turn end classifier: %w", err)
		}
		if response == nil || len(response.Content) == 0 {
			return false, fmt.Errorf("no response from turn end classifier")
		}
		return parseCompleteness(response.Content)
	}

	return false, fmt.Errorf("unknown llm type")
}

// parseCompleteness accepts the JSON object optionally wrapped in a
// markdown code fence.
func parseCompleteness(content string) (bool, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var completeness Completeness
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &completeness); err != nil {
		return false, fmt.Errorf("failed to unmarshal turn end classification: %w", err)
	}
	return completeness.Complete, nil
}
