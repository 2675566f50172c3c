// Package feedback turns raw speech metrics into actionable, prioritised
// practice suggestions. Everything here is pure: same metrics in, same
// suggestions out.
package feedback

import (
	"fmt"
	"strings"

	"github.com/vocably/cadenza/pkg/speech"
)

// Thresholds that trigger a suggestion on each axis.
const (
	clarityFloor = 70
	nasalityCeil = 60
	pacingFloor  = 2.5
	pacingCeil   = 4.5
	breathFloor  = 70
)

// maxFocusPhonemes caps how many distinct error phonemes are named in the
// phoneme-focus suggestion.
const maxFocusPhonemes = 3

// Suggestions maps metrics to an ordered list of tips. Each of the four score
// axes contributes at most one tip, plus one phoneme-focus tip when errors
// are present. When nothing triggers, the list is exactly one positive
// reinforcement message — positive and corrective tips never mix.
func Suggestions(m speech.Metrics) []string {
	var out []string

	if m.ClarityScore < clarityFloor {
		out = append(out, "Focus on articulating each sound clearly. Try slowing down slightly and exaggerating mouth movements.")
	}
	if m.NasalityScore > nasalityCeil {
		out = append(out, "Your speech sounds nasal. Practice directing airflow through your mouth with breath-control exercises.")
	}
	if m.PacingScore < pacingFloor {
		out = append(out, "You're speaking quite fast. Add short pauses between phrases to give each sound room.")
	} else if m.PacingScore > pacingCeil {
		out = append(out, "Try picking up the pace a little for a more natural flow.")
	}
	if m.BreathControlScore < breathFloor {
		out = append(out, "Work on diaphragmatic breathing: breathe low into your belly before each phrase.")
	}
	if len(m.PhonemeErrors) > 0 {
		out = append(out, focusSuggestion(m.PhonemeErrors))
	}

	if len(out) == 0 {
		return []string{"Great work! Your speech is clear and well controlled. Keep practicing to maintain it."}
	}
	return out
}

// focusSuggestion names up to three distinct error phonemes, comma-joined,
// preserving first-occurrence order.
func focusSuggestion(errs []speech.PhonemeError) string {
	var distinct []string
	seen := map[string]bool{}
	for _, e := range errs {
		if seen[e.Phoneme] {
			continue
		}
		seen[e.Phoneme] = true
		distinct = append(distinct, e.Phoneme)
		if len(distinct) == maxFocusPhonemes {
			break
		}
	}
	return fmt.Sprintf("Pay special attention to the %q sound(s) — try minimal-pair drills for each.", strings.Join(distinct, ", "))
}
