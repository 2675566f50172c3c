// Package phonetic derives phoneme-level substitution errors by aligning a
// recognised transcript against the target text the speaker was asked to
// read.
//
// The comparison is word-by-word:
//
//  1. Words that match exactly, or that share a Double Metaphone code, are
//     treated as correct — the recogniser heard the same sounds even if the
//     spelling differs.
//  2. Remaining pairs are scored with Jaro-Winkler similarity. Pairs above
//     the similarity floor are substitutions (the speaker attempted the word
//     but slipped on a sound); pairs below it are recogniser noise such as
//     dropped or inserted words, and are skipped.
//
// For each substitution, the offending phoneme is taken from the first
// divergent position of the expected word, honouring the common English
// digraphs (th, ch, sh, ph, wh).
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/vocably/cadenza/pkg/speech"
)

const (
	defaultSimilarityFloor = 0.55

	// maxErrors caps the number of reported substitutions per comparison.
	maxErrors = 5
)

// digraphs are two-letter clusters treated as a single phoneme.
var digraphs = []string{"th", "ch", "sh", "ph", "wh"}

// Option is a functional option for configuring a [Comparer].
type Option func(*Comparer)

// WithSimilarityFloor sets the minimum Jaro-Winkler score for a word pair to
// count as an attempted substitution rather than recogniser noise.
// Default: 0.55.
func WithSimilarityFloor(floor float64) Option {
	return func(c *Comparer) {
		c.similarityFloor = floor
	}
}

// Comparer aligns transcripts against target texts. Read-only after
// construction and safe for concurrent use.
type Comparer struct {
	similarityFloor float64
}

// New returns a Comparer with the supplied options applied.
func New(opts ...Option) *Comparer {
	c := &Comparer{similarityFloor: defaultSimilarityFloor}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compare returns the substitution errors detected between targetText and
// transcript. An empty slice means the transcript matched the target within
// recognition tolerance. Positions are character offsets of the expected word
// in targetText.
func (c *Comparer) Compare(targetText, transcript string) []speech.PhonemeError {
	if targetText == "" || transcript == "" {
		return nil
	}

	targetWords := tokenize(targetText)
	actualWords := tokenize(transcript)
	lowerTarget := strings.ToLower(targetText)

	n := min(len(targetWords), len(actualWords))
	var errs []speech.PhonemeError
	searchFrom := 0

	for i := 0; i < n && len(errs) < maxErrors; i++ {
		expected, actual := targetWords[i], actualWords[i]

		// Track the expected word's offset in the original text so repeated
		// words report distinct positions.
		pos := strings.Index(lowerTarget[searchFrom:], expected)
		if pos >= 0 {
			pos += searchFrom
			searchFrom = pos + len(expected)
		} else {
			pos = 0
		}

		if expected == actual {
			continue
		}
		if samePhonetics(expected, actual) {
			continue
		}

		score := matchr.JaroWinkler(expected, actual, false)
		if score < c.similarityFloor {
			continue
		}

		errs = append(errs, speech.PhonemeError{
			Phoneme:    divergentPhoneme(expected, actual),
			Expected:   expected,
			Actual:     actual,
			Position:   pos,
			Confidence: score,
		})
	}
	return errs
}

// samePhonetics reports whether two words share a Double Metaphone code.
func samePhonetics(a, b string) bool {
	p1, s1 := matchr.DoubleMetaphone(a)
	p2, s2 := matchr.DoubleMetaphone(b)
	if p1 != "" && (p1 == p2 || p1 == s2) {
		return true
	}
	return s1 != "" && (s1 == p2 || s1 == s2)
}

// divergentPhoneme extracts the phoneme at the first position where expected
// and actual differ, preferring digraph clusters of the expected word.
func divergentPhoneme(expected, actual string) string {
	er, ar := []rune(expected), []rune(actual)
	i := 0
	for i < len(er) && i < len(ar) && er[i] == ar[i] {
		i++
	}
	if i >= len(er) {
		i = len(er) - 1
	}
	for _, d := range digraphs {
		if strings.HasPrefix(expected[byteIndex(er, i):], d) {
			return d
		}
	}
	return string(er[i])
}

// byteIndex converts a rune index into a byte offset.
func byteIndex(runes []rune, i int) int {
	return len(string(runes[:i]))
}

// tokenize lowercases s and splits it into words, stripping anything that is
// not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
