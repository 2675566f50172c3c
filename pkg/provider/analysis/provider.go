// Package analysis defines the Provider interface for speech-analysis
// backends.
//
// An analysis provider accepts one recorded clip (opaque encoded bytes plus a
// format tag) and returns objective speech-quality metrics for it. The
// production implementation wraps the remote analysis service over HTTP; the
// sim subpackage generates plausible metrics locally and backs the
// orchestrator's fallback path.
//
// Implementations must be safe for concurrent use and must respect context
// cancellation on every call.
package analysis

import (
	"context"

	"github.com/vocably/cadenza/pkg/speech"
)

// Format tags the encoding of a recorded clip.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatM4A  Format = "m4a"
	FormatWebM Format = "webm"
)

// IsValid reports whether f is a recognised audio format.
func (f Format) IsValid() bool {
	return f == FormatWAV || f == FormatM4A || f == FormatWebM
}

// Request carries one recording to analyse.
type Request struct {
	// Audio is the encoded clip. Providers treat it as opaque bytes.
	Audio []byte

	// Format tags the clip's encoding.
	Format Format

	// TargetText is the text the speaker was asked to read, if any. Providers
	// that support it use the target for pronunciation comparison.
	TargetText string

	// TargetPhonemes narrows analysis to a drill's phoneme set, if any.
	TargetPhonemes []string
}

// Result is a provider's answer for one recording.
type Result struct {
	// Metrics holds the scored analysis. Providers fill the four sub-scores,
	// phoneme findings, and optionally suggestions; the orchestrator owns the
	// overall score and the source tag.
	Metrics speech.Metrics

	// Transcript is the recognised text, when the backend produces one.
	Transcript string
}

// Provider is a speech-analysis backend.
type Provider interface {
	// Analyze scores one recording. Implementations return an error for any
	// failure, including structurally invalid backend responses — partial
	// results are never returned.
	Analyze(ctx context.Context, req Request) (*Result, error)

	// Ping probes backend reachability. It should be cheap and respect the
	// context deadline.
	Ping(ctx context.Context) error
}
