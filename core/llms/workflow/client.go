// Package workflow calls a hosted assistant workflow service that keeps the
// conversation state on its side.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-voice/core/llms"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrEmptyResult = errors.New("workflow returned an empty result")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

type inputUser struct {
	Input string `json:"input"`
}

type workflowResponse struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// Complete runs the workflow on prompt. The service tracks history itself,
// so history and instructions in opts are ignored.
func (c *Client) Complete(ctx context.Context, prompt string, _ ...llms.CompletionOption) (*llms.Response, error) {
	ctx, span := tracer.Start(ctx, "execute workflow")
	defer span.End()

	body, err := json.Marshal(inputUser{Input: prompt})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	var response workflowResponse
	if err := c.post(ctx, "/workflow", body, &response); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("workflow failed: %w", err)
	}
	span.SetAttributes(attribute.String("response.status", response.Status))

	result := strings.TrimSpace(response.Result)
	if result == "" {
		span.RecordError(ErrEmptyResult)
		span.SetStatus(codes.Error, ErrEmptyResult.Error())
		return nil, ErrEmptyResult
	}
	return &llms.Response{Content: result}, nil
}

// Reset clears the conversation state held by the service.
func (c *Client) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "reset workflow")
	defer span.End()

	if err := c.post(ctx, "/reset", nil, nil); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("reset failed: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("non-2xx HTTP status: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response: %w", err)
	}
	return nil
}
