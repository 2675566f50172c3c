// Package transcribe defines the Provider interface for speech-to-text
// backends.
//
// Transcription is an optional enrichment step: when the analysis backend
// does not return a transcript, a transcribe.Provider can fill it in so
// that phonetic comparison against the target text still works. Analysis
// never depends on transcription succeeding.
//
// Implementors must be safe for concurrent use.
package transcribe

import (
	"context"

	"github.com/vocably/cadenza/pkg/provider/analysis"
)

// Request carries a single audio clip to transcribe.
type Request struct {
	// Audio is the raw audio payload.
	Audio []byte

	// Format identifies the audio container of Audio.
	Format analysis.Format

	// Language is an optional ISO-639-1 hint (e.g. "en"). Empty lets the
	// backend auto-detect.
	Language string

	// Prompt is optional context text that biases recognition, typically
	// the exercise's target text.
	Prompt string
}

// Result is a completed transcription.
type Result struct {
	// Text is the recognised transcript.
	Text string
}

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts the audio in req to text. Returns an error when
	// the backend is unreachable or rejects the audio.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
