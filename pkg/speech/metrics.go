// Package speech defines the core value types of the Cadenza practice engine:
// per-recording quality metrics, practice sessions, and cumulative user
// progress. All types are plain data with JSON encodings that round-trip
// losslessly; optional fields are pointers so absence is encoded explicitly.
//
// The only behaviour in this package is derived arithmetic: severity
// bucketing, the overall-score composite, and range clamping. Everything else
// (orchestration, persistence, progression rules) lives in internal packages.
package speech

import "time"

// Severity is the three-tier qualitative bucket derived from a numeric score.
type Severity string

const (
	SeverityGood      Severity = "good"
	SeverityModerate  Severity = "moderate"
	SeverityNeedsWork Severity = "needsWork"
)

// SeverityOf buckets a [0,100] score. Boundaries are inclusive on the lower
// edge of each bucket: 80 is good, 60 is moderate, anything below 60 needs work.
func SeverityOf(score float64) Severity {
	switch {
	case score >= 80:
		return SeverityGood
	case score >= 60:
		return SeverityModerate
	default:
		return SeverityNeedsWork
	}
}

// Source identifies where an analysis result came from.
type Source string

const (
	// SourceRemote marks metrics produced by the remote analysis service.
	SourceRemote Source = "remote"

	// SourceSimulated marks metrics produced by the local fallback simulator.
	SourceSimulated Source = "simulated"
)

// PhonemeError records a single phoneme substitution detected in a recording.
type PhonemeError struct {
	// Phoneme is the phoneme that was mispronounced (e.g. "s").
	Phoneme string `json:"phoneme"`

	// Expected is what should have been produced.
	Expected string `json:"expected"`

	// Actual is what was produced instead.
	Actual string `json:"actual"`

	// Position is the character offset of the error into the target text.
	Position int `json:"position"`

	// Confidence is the detector's confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// PhonemeSegment is a timed phoneme annotation for playback alignment.
// End is always strictly greater than Start; segments are emitted in
// non-decreasing Start order and gaps between segments are permitted.
type PhonemeSegment struct {
	Phoneme string `json:"phoneme"`

	// Start and End are offsets into the recording, in seconds.
	Start float64 `json:"start"`
	End   float64 `json:"end"`

	Confidence float64 `json:"confidence"`
}

// Metrics is one analysis result for one recording. All bounded scores are in
// [0,100]. OverallScore is always a deterministic function of the four
// sub-scores (see [OverallScore]) and is never set independently.
type Metrics struct {
	// ClarityScore rates articulation clarity, [0,100].
	ClarityScore float64 `json:"clarityScore"`

	// NasalityScore rates nasal resonance, [0,100]. Higher is more nasal.
	NasalityScore float64 `json:"nasalityScore"`

	// PacingScore is the speaking rate in syllables per second. Unbounded,
	// practically 1–6.
	PacingScore float64 `json:"pacingScore"`

	// BreathControlScore rates breath support, [0,100].
	BreathControlScore float64 `json:"breathControlScore"`

	// OverallScore is the weighted composite of the four sub-scores.
	OverallScore float64 `json:"overallScore"`

	PhonemeErrors   []PhonemeError   `json:"phonemeErrors,omitempty"`
	PhonemeSegments []PhonemeSegment `json:"phonemeSegments,omitempty"`

	// Suggestions are human-readable, priority-ordered practice tips.
	Suggestions []string `json:"suggestions,omitempty"`

	// Source records whether this result came from the remote service or the
	// local simulator.
	Source Source `json:"source"`

	Timestamp time.Time `json:"timestamp"`
}

// Composite weights for the overall score.
const (
	weightClarity = 0.35
	weightNasal   = 0.25
	weightPacing  = 0.20
	weightBreath  = 0.20
)

// OverallScore computes the weighted composite score from the four sub-scores:
//
//	clarity*0.35 + (100-nasality)*0.25 + pacingFit*0.20 + breath*0.20
//
// where pacingFit is 90 when pacing is strictly inside (3,4) syllables/second
// and 70 otherwise. The band reward is a deliberate step function: being "in
// range" is rewarded flatly rather than on a curve, so scores do not creep as
// pacing approaches the band edges.
func OverallScore(clarity, nasality, pacing, breath float64) float64 {
	return clarity*weightClarity +
		(100-nasality)*weightNasal +
		PacingFit(pacing)*weightPacing +
		breath*weightBreath
}

// PacingFit maps a pacing score onto the flat band reward: 90 inside the open
// interval (3,4), 70 everywhere else.
func PacingFit(pacing float64) float64 {
	if pacing > 3 && pacing < 4 {
		return 90
	}
	return 70
}

// Recompute derives OverallScore from the current sub-scores.
func (m *Metrics) Recompute() {
	m.OverallScore = OverallScore(m.ClarityScore, m.NasalityScore, m.PacingScore, m.BreathControlScore)
}

// Clamp bounds all [0,100] scores and confidences so that a misbehaving
// producer can never leak out-of-range values into the data model. Pacing is
// unbounded by contract and only floored at zero.
func (m *Metrics) Clamp() {
	m.ClarityScore = ClampScore(m.ClarityScore)
	m.NasalityScore = ClampScore(m.NasalityScore)
	m.BreathControlScore = ClampScore(m.BreathControlScore)
	if m.PacingScore < 0 {
		m.PacingScore = 0
	}
	for i := range m.PhonemeErrors {
		m.PhonemeErrors[i].Confidence = clampUnit(m.PhonemeErrors[i].Confidence)
	}
	for i := range m.PhonemeSegments {
		m.PhonemeSegments[i].Confidence = clampUnit(m.PhonemeSegments[i].Confidence)
	}
}

// ClampScore bounds v to the canonical score range [0,100].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
