package repositories

import (
	"context"
	"errors"
)

// ErrCapabilityUnavailable is returned when speech recognition cannot be used at all
var ErrCapabilityUnavailable = errors.New("speech recognition unavailable")

// SpeechRecognizer abstracts continuous speech recognition services
type SpeechRecognizer interface {
	// Start opens a recognition stream. Language and sample rate are fixed per stream.
	Start(ctx context.Context, config AudioConfig) (RecognitionStream, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// RecognitionResult is one hypothesis emitted by the recognizer.
// Partial results replace each other; final results are stable.
type RecognitionResult struct {
	Text    string
	IsFinal bool
}

// RecognitionStream is an open recognition session.
// Results is closed once the stream has ended, after which Err reports why.
type RecognitionStream interface {
	SendAudio(data []byte) error
	Results() <-chan RecognitionResult
	// Stop half-closes the stream; pending results are still delivered.
	Stop() error
	Err() error
}
