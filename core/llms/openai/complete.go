package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func (c *Client) Complete(ctx context.Context, prompt string, opts ...llms.CompletionOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "complete prompt")
	defer span.End()
	fail := func(err error) (*llms.Response, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	options := llms.NewCompletionOptions(opts...)
	messages := toOpenAIMessages(options.Instructions, options.History)
	messages = append(messages, openAIMessage{
		Type:    messageTypeMessage,
		Role:    messageRoleUser,
		Content: prompt,
	})

	requestBodyBytes, err := json.Marshal(requestBody{
		Model:  c.model,
		Input:  messages,
		Stream: false,
	})
	if err != nil {
		return fail(fmt.Errorf("error marshalling JSON: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return fail(fmt.Errorf("error creating HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.String("request.model", c.model))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("error sending request: %w", err))
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("error reading response body: %w", err))
	}
	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		var errorBody struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &errorBody) == nil && errorBody.Error.Message != "" {
			return fail(fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, errorBody.Error.Message))
		}
		return fail(fmt.Errorf("non-OK HTTP status: %s", resp.Status))
	}

	var responseBody generalResponseBody
	if err := json.Unmarshal(bodyBytes, &responseBody); err != nil {
		return fail(fmt.Errorf("error unmarshalling response body: %w", err))
	}

	response, err := parseOutput(responseBody)
	if err != nil {
		return fail(err)
	}
	if usage := responseBody.Usage; usage != nil {
		response.Usage = &llms.Usage{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.TotalTokens,
		}
	}
	return response, nil
}

func parseOutput(body generalResponseBody) (*llms.Response, error) {
	response := &llms.Response{}
	var text strings.Builder
	for _, output := range body.Output {
		var outputType generalResponseBodyOutputType
		if err := json.Unmarshal(output, &outputType); err != nil {
			return nil, fmt.Errorf("error unmarshalling output type: %w", err)
		}
		if outputType.Type != generalResponseBodyOutputTypeMessage {
			continue
		}

		var outputMessage generalResponseBodyOutputMessage
		if err := json.Unmarshal(output, &outputMessage); err != nil {
			return nil, fmt.Errorf("error unmarshalling output message: %w", err)
		}
		for _, content := range outputMessage.Content {
			var part generalResponseBodyOutputMessageContent
			if err := json.Unmarshal(content, &part); err != nil {
				return nil, fmt.Errorf("error unmarshalling output message content: %w", err)
			}
			switch part.Type {
			case "output_text":
				text.WriteString(part.Text)
			case "refusal":
				response.Refused = true
				text.WriteString(part.Refusal)
			}
		}
	}
	response.Content = strings.TrimSpace(text.String())
	return response, nil
}

type requestBody struct {
	Model  string          `json:"model"`
	Input  []openAIMessage `json:"input"`
	Stream bool            `json:"stream"`
}

type generalResponseBody struct {
	Output []json.RawMessage   `json:"output"`
	Usage  *responseBodyUsage `json:"usage,omitempty"`
}

type generalResponseBodyOutputType struct {
	// Type is the type of the output item.
	Type generalResponseBodyOutputTypeType `json:"type"`
}

type generalResponseBodyOutputMessage struct {
	ID string `json:"id"`
	// Content is the content of the output message.
	Content []json.RawMessage `json:"content,omitempty"`
}

// generalResponseBodyOutputMessageContent is either text output from the
// model or a refusal.
type generalResponseBodyOutputMessageContent struct {
	// Type is 'output_text' or 'refusal'.
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

type generalResponseBodyOutputTypeType string

const (
	generalResponseBodyOutputTypeMessage   generalResponseBodyOutputTypeType = "message"
	generalResponseBodyOutputTypeReasoning generalResponseBodyOutputTypeType = "reasoning"
)

type responseBodyUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
