package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-voice/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CaptureHandle is exclusive ownership of the microphone for one turn. Frames
// captured while it is live are buffered until the transcriber reads them.
type CaptureHandle struct {
	id       string
	frames   *audio.FrameBuffer
	encoding audio.EncodingInfo
	released atomic.Bool
}

func (h *CaptureHandle) ID() string {
	return h.id
}

func (h *CaptureHandle) EncodingInfo() audio.EncodingInfo {
	return h.encoding
}

// Next blocks for the next captured frame. It returns io.EOF once the handle
// is stopped and drained, or the error that ended the capture.
func (h *CaptureHandle) Next(ctx context.Context) ([]byte, error) {
	return h.frames.Next(ctx)
}

// Dropped reports how many frames were overwritten before being read.
func (h *CaptureHandle) Dropped() int {
	return h.frames.Dropped()
}

func (h *CaptureHandle) Released() bool {
	return h.released.Load()
}

type captureSession struct {
	device         AudioInput
	authorizer     Authorizer
	bufferCapacity int
	// routeActive reports whether the output route is busy. Capture is
	// refused while it is.
	routeActive func() bool

	mu   sync.Mutex
	live *CaptureHandle
}

func (s *captureSession) init() {
	if notifier, ok := s.device.(CaptureInterruptNotifier); ok {
		notifier.OnCaptureInterrupted(s.interrupted)
	}
}

func (s *captureSession) authorize(ctx context.Context) (bool, error) {
	if s.authorizer != nil {
		return s.authorizer.Authorize(ctx)
	}
	if authorizer, ok := s.device.(Authorizer); ok {
		return authorizer.Authorize(ctx)
	}
	return true, nil
}

// Start acquires the microphone. Authorization is confirmed first and a
// denial fails fast with ErrPermissionDenied.
func (s *captureSession) Start(ctx context.Context) (handle *CaptureHandle, err error) {
	ctx, span := tracer.Start(ctx, "capture")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if s.device == nil {
		return nil, fmt.Errorf("%w: no audio input configured", ErrDeviceUnavailable)
	}

	granted, err := s.authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	if !granted {
		return nil, ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.live != nil {
		return nil, fmt.Errorf("%w: microphone already held by capture %s", ErrDeviceUnavailable, s.live.id)
	}
	if s.routeActive != nil && s.routeActive() {
		return nil, ErrRoutingConflict
	}

	handle = &CaptureHandle{
		id:       uuid.NewString(),
		frames:   audio.NewFrameBuffer(s.bufferCapacity),
		encoding: s.device.CaptureEncodingInfo(),
	}
	span.SetAttributes(attribute.String("capture.id", handle.id))

	if err := s.device.StartCapture(ctx, func(frame []byte) { handle.frames.Push(frame) }); err != nil {
		handle.released.Store(true)
		handle.frames.CloseWithError(ErrDeviceUnavailable)
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s.live = handle
	return handle, nil
}

// Stop releases the device held by handle. Calling it again, or with a handle
// that was never live, is a no-op.
func (s *captureSession) Stop(handle *CaptureHandle) error {
	if handle == nil || !handle.released.CompareAndSwap(false, true) {
		return nil
	}
	handle.frames.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != handle {
		return nil
	}
	s.live = nil

	if err := s.device.StopCapture(); err != nil {
		logger.Warn("failed to stop audio capture", "capture_id", handle.id, "error", err)
		return fmt.Errorf("failed to stop audio capture: %w", err)
	}
	return nil
}

func (s *captureSession) liveHandle() *CaptureHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *captureSession) interrupted(err error) {
	handle := s.liveHandle()
	if handle == nil {
		return
	}
	logger.Warn("audio capture interrupted", "capture_id", handle.id, "error", err)
	if err == nil {
		handle.frames.CloseWithError(ErrAudioDropped)
		return
	}
	handle.frames.CloseWithError(fmt.Errorf("%w: %w", ErrAudioDropped, err))
}
