package deepgram

import (
	"fmt"
	"slices"
	"strings"
)

const defaultEndpoint = "wss://api.deepgram.com/v1/speak"

// TextToSpeechClient opens one Deepgram speak websocket per generator.
type TextToSpeechClient struct {
	apiKey   string
	endpoint string
	voice    deepgramVoice
}

type ClientOption func(*TextToSpeechClient) error

func WithVoice(voice string) ClientOption {
	return func(c *TextToSpeechClient) error {
		if voice == "" {
			return nil
		}
		if !slices.Contains(availableVoices, deepgramVoice(voice)) {
			return fmt.Errorf("invalid voice %q", voice)
		}
		c.voice = deepgramVoice(voice)
		return nil
	}
}

// WithEndpoint overrides the websocket URL.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *TextToSpeechClient) error {
		if !strings.HasPrefix(endpoint, "ws://") && !strings.HasPrefix(endpoint, "wss://") {
			return fmt.Errorf("invalid endpoint %q", endpoint)
		}
		c.endpoint = endpoint
		return nil
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{apiKey: apiKey, endpoint: defaultEndpoint, voice: defaultVoice}
	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}
	return client, nil
}

func (c *TextToSpeechClient) Voice() string {
	return string(c.voice)
}
