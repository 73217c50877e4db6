package orchestration

import (
	"errors"
	"fmt"
)

var (
	ErrPermissionDenied       = errors.New("microphone permission denied")
	ErrDeviceUnavailable      = errors.New("audio device unavailable")
	ErrRoutingConflict        = errors.New("audio route is busy with playback")
	ErrRecognitionUnavailable = errors.New("speech recognition unavailable")
	ErrAudioDropped           = errors.New("audio capture interrupted")
	ErrTurnInProgress         = errors.New("turn already in progress")
	ErrServiceError           = errors.New("completion service error")
	ErrNoActiveCapture        = errors.New("no active capture")
	ErrControllerClosed       = errors.New("controller closed")
)

// ServiceError carries the completion service's failure message. It
// matches ErrServiceError with errors.Is.
type ServiceError struct {
	Message string
	Err     error
}

func newServiceError(err error) *ServiceError {
	if err == nil {
		return &ServiceError{Message: "unknown failure"}
	}
	return &ServiceError{Message: err.Error(), Err: err}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("completion service error: %s", e.Message)
}

func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceError
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}
