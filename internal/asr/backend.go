package asr

import (
	"context"
	"errors"
)

// Transcriber turns a canonical WAV file into text. Implementations block
// until inference completes; the language hint may be "auto" or empty.
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath, modelName, language string) (string, error)
}

// Diarizer splits a canonical WAV file into time-ordered speaker segments.
type Diarizer interface {
	Diarize(ctx context.Context, wavPath string) ([]DiarizationSegment, error)
}

// ErrMissingToken is returned when a remote backend requires an auth token
// that is not configured. Detected before any audio is uploaded.
var ErrMissingToken = errors.New("HF_TOKEN is missing: set HF_TOKEN in environment variables")
