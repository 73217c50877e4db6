package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type completionInvoker struct {
	client       Completer
	systemPrompt string
}

type completionResult struct {
	reply string
	err   error
}

// Complete asks the completion service for a reply to text. It returns as
// soon as ctx is cancelled; a reply that arrives afterwards is dropped.
// Failures come back as *ServiceError and are never retried here.
func (c *completionInvoker) Complete(ctx context.Context, text string, history []conversations.Turn) (reply string, err error) {
	ctx, span := tracer.Start(ctx, "complete")
	defer span.End()
	defer func() {
		if err != nil && ctx.Err() == nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if c.client == nil {
		return "", newServiceError(fmt.Errorf("no completion service configured"))
	}

	opts := []llms.CompletionOption{llms.WithHistory(llms.MessagesFromTurns(history))}
	if c.systemPrompt != "" {
		opts = append(opts, llms.WithInstructions(c.systemPrompt))
	}

	results := make(chan completionResult, 1)
	go func() {
		run := panicSafeNamedWorker("completion", func(ctx context.Context) error {
			response, err := c.client.Complete(ctx, text, opts...)
			switch {
			case err != nil:
				results <- completionResult{err: err}
			case response == nil:
				results <- completionResult{err: fmt.Errorf("no response")}
			default:
				results <- completionResult{reply: response.Content}
			}
			return nil
		})
		if err := run(ctx); err != nil {
			results <- completionResult{err: err}
		}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		if result.err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", newServiceError(result.err)
		}
		reply := strings.TrimSpace(result.reply)
		if reply == "" {
			return "", newServiceError(fmt.Errorf("empty reply"))
		}
		span.SetAttributes(attribute.Int("completion.reply_length", len(reply)))
		return reply, nil
	}
}
