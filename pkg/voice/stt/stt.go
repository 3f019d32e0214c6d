// Package stt streams caller audio to a speech-to-text provider.
package stt

import "context"

// Result is one transcription update. Final results are complete utterances;
// the rest are interim hypotheses.
type Result struct {
	Text  string
	Final bool
}

// Stream is one live transcription session.
type Stream interface {
	// SendAudio forwards raw μ-law 8 kHz audio.
	SendAudio(audio []byte) error
	// Results is closed when the stream ends.
	Results() <-chan Result
	Close() error
}

type Transcriber interface {
	Open(ctx context.Context) (Stream, error)
}
