// Package sim implements analysis.Provider with locally generated, plausible
// speech metrics. It backs the orchestrator's fallback path when the remote
// analysis service is unreachable, and doubles as a development backend.
//
// Generated values are drawn from ranges observed in real therapy sessions:
// clarity 60–95, nasality 20–60, pacing 2.5–4.5 syllables/second, breath
// 55–95. Phoneme errors come from a fixed substitution table of common
// articulation slips, and segments form a strictly increasing timeline with
// small silence gaps.
//
// The random source is seedable so tests can assert exact outputs.
package sim

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/speech"
)

// Compile-time interface assertion.
var _ analysis.Provider = (*Simulator)(nil)

// substitutions maps a target phoneme to the slip most commonly produced in
// its place.
var substitutions = map[string]string{
	"s":  "th",
	"r":  "w",
	"l":  "w",
	"th": "s",
	"ch": "sh",
	"sh": "s",
	"z":  "s",
	"v":  "b",
	"f":  "p",
}

// defaultAlphabet is the candidate phoneme set used when a request carries no
// target phonemes.
var defaultAlphabet = []string{"s", "r", "l", "th", "ch", "sh", "z", "v", "f", "b", "p", "m", "n", "k", "g", "t", "d"}

// Option is a functional option for configuring a Simulator.
type Option func(*Simulator)

// WithSeed fixes the random source so generated metrics are deterministic.
func WithSeed(seed uint64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithAlphabet replaces the default candidate phoneme set.
func WithAlphabet(phonemes []string) Option {
	return func(s *Simulator) {
		s.alphabet = phonemes
	}
}

// Simulator generates plausible analysis results locally. Safe for concurrent
// use; draws from the random source are serialised.
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	alphabet []string
	now      func() time.Time
}

// New creates a Simulator. Without [WithSeed] the source is seeded from the
// system entropy pool.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		alphabet: defaultAlphabet,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Analyze implements analysis.Provider. It never fails.
func (s *Simulator) Analyze(_ context.Context, req analysis.Request) (*analysis.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := speech.Metrics{
		ClarityScore:       s.between(60, 95),
		NasalityScore:      s.between(20, 60),
		PacingScore:        s.between(2.5, 4.5),
		BreathControlScore: s.between(55, 95),
		Timestamp:          s.now().UTC(),
	}
	m.PhonemeErrors = s.phonemeErrors(req)
	m.PhonemeSegments = s.phonemeSegments()

	return &analysis.Result{Metrics: m}, nil
}

// Ping implements analysis.Provider. The simulator is always reachable.
func (s *Simulator) Ping(context.Context) error { return nil }

// between draws a uniform value from [lo, hi).
func (s *Simulator) between(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

// phonemeErrors draws 0–2 substitution errors from the request's phoneme set
// (or the default alphabet), restricted to phonemes with a known slip.
func (s *Simulator) phonemeErrors(req analysis.Request) []speech.PhonemeError {
	candidates := req.TargetPhonemes
	if len(candidates) == 0 {
		candidates = s.alphabet
	}

	// Requests may repeat a phoneme; the draw loop below needs distinct
	// entries or it can never satisfy its count.
	var eligible []string
	taken := map[string]bool{}
	for _, p := range candidates {
		if _, ok := substitutions[p]; ok && !taken[p] {
			taken[p] = true
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil
	}

	n := s.rng.IntN(3) // 0, 1, or 2
	if n > len(eligible) {
		n = len(eligible)
	}

	var errs []speech.PhonemeError
	seen := map[string]bool{}
	for len(errs) < n {
		p := eligible[s.rng.IntN(len(eligible))]
		if seen[p] {
			continue
		}
		seen[p] = true
		errs = append(errs, speech.PhonemeError{
			Phoneme:    p,
			Expected:   p,
			Actual:     substitutions[p],
			Position:   s.errorPosition(req.TargetText, p),
			Confidence: s.between(0.7, 0.95),
		})
	}
	return errs
}

// errorPosition anchors the error to the target text when the phoneme appears
// in it, otherwise picks a plausible small offset.
func (s *Simulator) errorPosition(targetText, phoneme string) int {
	if targetText != "" {
		if idx := strings.Index(strings.ToLower(targetText), phoneme); idx >= 0 {
			return idx
		}
	}
	return s.rng.IntN(24)
}

// phonemeSegments builds 3–7 segments with 0.4–1.3 s durations separated by
// 0.05–0.25 s gaps, so start times are strictly increasing.
func (s *Simulator) phonemeSegments() []speech.PhonemeSegment {
	n := 3 + s.rng.IntN(5) // 3–7
	segments := make([]speech.PhonemeSegment, 0, n)

	cursor := s.between(0.05, 0.25)
	for i := 0; i < n; i++ {
		dur := s.between(0.4, 1.3)
		segments = append(segments, speech.PhonemeSegment{
			Phoneme:    s.alphabet[s.rng.IntN(len(s.alphabet))],
			Start:      cursor,
			End:        cursor + dur,
			Confidence: s.between(0.6, 0.98),
		})
		cursor += dur + s.between(0.05, 0.25)
	}
	return segments
}
