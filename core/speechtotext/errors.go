package speechtotext

import "errors"

var (
	ErrTranscriptionInProgress = errors.New("transcription already in progress")
	ErrNotTranscribing         = errors.New("no transcription in progress")
)
