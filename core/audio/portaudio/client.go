package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-voice/core/audio"
)

// Client drives a full-duplex PortAudio stream. Capture reads run on their
// own goroutine between StartCapture and StopCapture.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	captureMu     sync.Mutex
	captureCancel context.CancelFunc
	captureDone   chan struct{}
	onInterrupted func(err error)

	playbackMu sync.Mutex
	pending    []byte
	marks      []playbackMark
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open PortAudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start PortAudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

// Authorize reports whether a default input device is available.
func (c *Client) Authorize(_ context.Context) (bool, error) {
	device, err := portaudio.DefaultInputDevice()
	if err != nil {
		return false, fmt.Errorf("failed to query default input device: %w", err)
	}
	return device != nil && device.MaxInputChannels > 0, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return errors.New("capture already started")
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done
	onInterrupted := c.onInterrupted

	go func() {
		defer close(done)
		for ctx.Err() == nil {
			if err := c.stream.Read(); err != nil {
				if errors.Is(err, portaudio.InputOverflowed) {
					continue
				}
				logger.Error("failed to read from PortAudio stream", "error", err)
				if onInterrupted != nil {
					onInterrupted(err)
				}
				return
			}

			frame := bytes.Buffer{}
			_ = binary.Write(&frame, binary.LittleEndian, c.in)
			onAudio(frame.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.captureCancel, c.captureDone
	c.captureCancel, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) OnCaptureInterrupted(callback func(err error)) {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	c.onInterrupted = callback
}

// SendAudio writes whole device buffers and keeps the remainder for the
// next call.
func (c *Client) SendAudio(audio []byte) error {
	bufferSize := c.bufferSize * 2

	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	c.pending = append(c.pending, audio...)
	for len(c.pending) >= bufferSize {
		if err := binary.Read(bytes.NewReader(c.pending[:bufferSize]), binary.LittleEndian, c.out); err != nil {
			return fmt.Errorf("failed to decode audio: %w", err)
		}
		if err := c.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			return fmt.Errorf("failed to write to PortAudio stream: %w", err)
		}
		c.pending = c.pending[bufferSize:]
		c.fireMarks(bufferSize)
	}
	return nil
}

func (c *Client) ClearBuffer() {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	c.pending = nil
	c.marks = nil
}

// Mark flushes the partial buffer padded with silence and calls callback
// once the audio queued before it has been written.
func (c *Client) Mark(mark string, callback func(string)) error {
	c.playbackMu.Lock()
	if rest := len(c.pending) % (c.bufferSize * 2); rest != 0 {
		c.pending = append(c.pending, make([]byte, c.bufferSize*2-rest)...)
	}
	c.marks = append(c.marks, playbackMark{name: mark, position: len(c.pending), callback: callback})
	c.playbackMu.Unlock()
	return c.SendAudio(nil)
}

// fireMarks must be called with playbackMu held.
func (c *Client) fireMarks(written int) {
	passed := 0
	for i := range c.marks {
		c.marks[i].position -= written
		if c.marks[i].position <= 0 {
			passed++
		}
	}
	reached := c.marks[:passed:passed]
	c.marks = c.marks[passed:]
	for _, mark := range reached {
		go mark.callback(mark.name)
	}
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
		Channels:   audio.DefaultChannels,
	}
}

func (c *Client) CaptureEncodingInfo() audio.EncodingInfo {
	return c.EncodingInfo()
}

func (c *Client) Close() {
	_ = c.StopCapture()
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}
