package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	defaultLocation       = "global"
	defaultModel          = "latest_short"
)

type Config struct {
	ProjectID       string
	CredentialsJSON string
	Location        string
	Model           string
}

// TranscriptionClient streams audio to Cloud Speech-to-Text v2. Like the
// Deepgram client it serves one stream at a time.
type TranscriptionClient struct {
	projectID       string
	credentialsJSON string
	location        string
	model           string

	mu       sync.Mutex
	client   *speech.Client
	stream   speechpb.Speech_StreamingRecognizeClient
	recvDone chan struct{}
	closing  bool
}

func NewTranscriptionClient(cfg Config) *TranscriptionClient {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = defaultLocation
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	return &TranscriptionClient{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		location:        location,
		model:           model,
	}
}

func (t *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "start google transcription")
	defer span.End()

	options := speechtotext.NewTranscriptionOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream != nil {
		return speechtotext.ErrTranscriptionInProgress
	}

	logger.Info("starting cloud speech streaming", "location", t.location, "language", options.Language, "model", t.model)
	client, err := t.newClient(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// The stream outlives Transcribe; it is torn down by Close.
	streamCtx := context.WithoutCancel(ctx)
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to open recognition stream: %w", err)
	}

	recognizer := fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		Recognizer: recognizer,
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:          t.model,
					LanguageCodes:  []string{options.Language},
					DecodingConfig: encoding,
					Features:       &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{
					InterimResults:            true,
					EnableVoiceActivityEvents: true,
				},
			},
		},
	}); err != nil {
		_ = stream.CloseSend()
		_ = client.Close()
		return fmt.Errorf("failed to send recognition config: %w", err)
	}

	t.client = client
	t.stream = stream
	t.closing = false
	t.recvDone = make(chan struct{})
	go t.receive(stream, t.recvDone, newResultState(options))

	return nil
}

func (t *TranscriptionClient) newClient(ctx context.Context) (*speech.Client, error) {
	detectOptions := &credentials.DetectOptions{
		Scopes: []string{"https://www.googleapis.com/auth/cloud-platform"},
	}
	if t.credentialsJSON != "" {
		detectOptions.CredentialsJSON = []byte(t.credentialsJSON)
	}
	creds, err := credentials.DetectDefault(detectOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to detect credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithAuthCredentials(creds),
	}
	if t.location != defaultLocation {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return client, nil
}

func (t *TranscriptionClient) SendAudio(pcm []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stream == nil || t.closing {
		return speechtotext.ErrNotTranscribing
	}

	if err := t.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	}); err != nil {
		return fmt.Errorf("failed to send audio to cloud speech: %w", err)
	}
	return nil
}

// Close half-closes the stream so pending results arrive, then releases
// the client.
func (t *TranscriptionClient) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.stream == nil || t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	stream, client, recvDone := t.stream, t.client, t.recvDone
	t.mu.Unlock()

	sendErr := stream.CloseSend()
	select {
	case <-recvDone:
	case <-ctx.Done():
	}
	closeErr := client.Close()
	<-recvDone

	t.mu.Lock()
	t.stream, t.client = nil, nil
	t.mu.Unlock()

	if err := errors.Join(sendErr, closeErr); err != nil {
		return fmt.Errorf("failed to close cloud speech stream: %w", err)
	}
	return nil
}

func (t *TranscriptionClient) receive(stream speechpb.Speech_StreamingRecognizeClient, done chan struct{}, state *resultState) {
	defer close(done)
	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || isCancelled(err) {
				state.flush()
				return
			}
			logger.Error("cloud speech receive loop failed", "error", err)
			state.callbacks.ErrorCallback(fmt.Errorf("cloud speech stream ended: %w", err))
			return
		}
		state.apply(resp)
	}
}

func isCancelled(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.Canceled
}

func convertEncoding(info audio.EncodingInfo) (*speechpb.RecognitionConfig_ExplicitDecodingConfig, error) {
	var encoding speechpb.ExplicitDecodingConfig_AudioEncoding
	switch info.Format {
	case audio.EncodingLinear16:
		encoding = speechpb.ExplicitDecodingConfig_LINEAR16
	case audio.EncodingMulaw:
		encoding = speechpb.ExplicitDecodingConfig_MULAW
	case audio.EncodingALaw:
		encoding = speechpb.ExplicitDecodingConfig_ALAW
	default:
		return nil, fmt.Errorf("unsupported encoding %q", info.Format.Name())
	}
	channels := info.Channels
	if channels <= 0 {
		channels = audio.DefaultChannels
	}

	return &speechpb.RecognitionConfig_ExplicitDecodingConfig{
		ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
			Encoding:          encoding,
			SampleRateHertz:   int32(info.SampleRate),
			AudioChannelCount: int32(channels),
		},
	}, nil
}
