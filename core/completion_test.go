package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-voice/core/conversations"
	"github.com/koscakluka/ema-voice/core/llms"
)

func TestCompletionPassesHistoryAndInstructions(t *testing.T) {
	completer := replyWith("  Sure.  ")
	invoker := &completionInvoker{client: completer, systemPrompt: "Be brief."}
	history := []conversations.Turn{
		{Speaker: conversations.SpeakerUser, Text: "hi", Sequence: 1},
		{Speaker: conversations.SpeakerAssistant, Text: "hello", Sequence: 2},
	}

	reply, err := invoker.Complete(context.Background(), "help me", history)
	if err != nil {
		t.Fatalf("expected reply, got %v", err)
	}
	if reply != "Sure." {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}

	options := completer.options[0]
	if options.Instructions != "Be brief." {
		t.Fatalf("expected instructions to be passed, got %q", options.Instructions)
	}
	if len(options.History) != 2 || options.History[1].Role != llms.MessageRoleAssistant {
		t.Fatalf("expected history with assistant reply, got %+v", options.History)
	}
}

func TestCompletionFailureIsServiceError(t *testing.T) {
	invoker := &completionInvoker{client: completerFunc(func(context.Context, string, ...llms.CompletionOption) (*llms.Response, error) {
		return nil, errors.New("timeout")
	})}

	_, err := invoker.Complete(context.Background(), "hi", nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %v", err)
	}
	if serviceErr.Message != "timeout" {
		t.Fatalf("expected message %q, got %q", "timeout", serviceErr.Message)
	}
	if !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected error to match ErrServiceError")
	}
}

func TestCompletionEmptyReplyIsServiceError(t *testing.T) {
	invoker := &completionInvoker{client: replyWith("   ")}

	if _, err := invoker.Complete(context.Background(), "hi", nil); !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
}

func TestCompletionPanicIsServiceError(t *testing.T) {
	invoker := &completionInvoker{client: completerFunc(func(context.Context, string, ...llms.CompletionOption) (*llms.Response, error) {
		panic("bad client")
	})}

	if _, err := invoker.Complete(context.Background(), "hi", nil); !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
}

func TestCompletionCancellationAbandonsRequest(t *testing.T) {
	release := make(chan struct{})
	invoker := &completionInvoker{client: completerFunc(func(context.Context, string, ...llms.CompletionOption) (*llms.Response, error) {
		<-release
		return &llms.Response{Content: "too late"}, nil
	})}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := invoker.Complete(ctx, "hi", nil)
		result <- err
	}()

	cancel()
	select {
	case err := <-result:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("expected cancelled completion to return without waiting for the service")
	}
	close(release)
}

func TestCompletionWithoutClientFails(t *testing.T) {
	invoker := &completionInvoker{}
	if _, err := invoker.Complete(context.Background(), "hi", nil); !errors.Is(err, ErrServiceError) {
		t.Fatalf("expected ErrServiceError, got %v", err)
	}
}
