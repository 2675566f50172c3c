// Package coach turns the deterministic feedback suggestions into a short,
// encouraging coaching note via a language model.
//
// The [Coach] sends the measured metrics and the rule-generated suggestions
// to an [llm.Provider] and asks for a two-to-three sentence note in the
// voice of a supportive speech therapist. The note is purely cosmetic: when
// the model is unreachable, times out, or returns something unusable, the
// coach degrades to an empty note and the caller falls back to the plain
// suggestions. Coaching therefore never blocks or fails an analysis.
package coach

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/pkg/provider/llm"
	"github.com/vocably/cadenza/pkg/speech"
)

const (
	defaultTemperature = 0.4
	defaultTimeout     = 10 * time.Second
	defaultMaxTokens   = 200

	// maxNoteLength caps runaway model output before it reaches a client.
	maxNoteLength = 600
)

const systemPrompt = `You are a warm, supportive speech therapist writing a short note for a client who just finished a practice session.

You receive the session's measured speech metrics and a list of rule-generated suggestions.

Rules:
- Write 2-3 sentences, addressed directly to the client ("you").
- Lead with something that went well before mentioning anything to work on.
- Ground every statement in the provided metrics and suggestions; never invent numbers or advice.
- Plain text only: no markdown, no lists, no emoji.`

// Option is a functional option for configuring a [Coach].
type Option func(*Coach)

// WithTemperature sets the sampling temperature. Default: 0.4.
func WithTemperature(temp float64) Option {
	return func(c *Coach) { c.temperature = temp }
}

// WithTimeout bounds a single note generation. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *Coach) { c.timeout = d }
}

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coach) { c.metrics = m }
}

// Coach rephrases rule-generated suggestions into a personal note using an
// [llm.Provider]. It is safe for concurrent use.
//
// Model selection follows the one-provider-per-model pattern: construct the
// [llm.Provider] with the desired model rather than overriding per-request.
type Coach struct {
	llm         llm.Provider
	temperature float64
	timeout     time.Duration
	metrics     *observe.Metrics
}

// New returns a [Coach] backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Coach {
	c := &Coach{
		llm:         provider,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
		metrics:     observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Note generates a coaching note for the given analysis result. An empty
// string with a nil error means the coach declined gracefully; the caller
// should present the plain suggestions instead.
//
// Only cancellation of the parent context is surfaced as an error; provider
// failures and per-call timeouts degrade to an empty note.
func (c *Coach) Note(ctx context.Context, m speech.Metrics) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Temperature:  c.temperature,
		MaxTokens:    defaultMaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: buildUserMessage(m)},
		},
	})
	c.metrics.CoachDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("coach: complete: %w", err)
		}
		// Provider failure: degrade to no note.
		return "", nil
	}
	if resp == nil {
		return "", nil
	}

	note := strings.TrimSpace(resp.Content)
	if len(note) > maxNoteLength {
		note = note[:maxNoteLength]
	}
	return note, nil
}

// buildUserMessage renders the metrics and suggestions into the prompt body.
func buildUserMessage(m speech.Metrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Clarity: %.0f/100\n", m.ClarityScore)
	fmt.Fprintf(&sb, "Nasality: %.0f/100 (lower is better)\n", m.NasalityScore)
	fmt.Fprintf(&sb, "Pacing: %.1f syllables/second (target 3-4)\n", m.PacingScore)
	fmt.Fprintf(&sb, "Breath support: %.0f/100\n", m.BreathControlScore)
	fmt.Fprintf(&sb, "Overall: %.0f/100\n", m.OverallScore)

	if len(m.PhonemeErrors) > 0 {
		sb.WriteString("Phonemes to work on:")
		for _, pe := range m.PhonemeErrors {
			fmt.Fprintf(&sb, " %s", pe.Phoneme)
		}
		sb.WriteByte('\n')
	}

	if len(m.Suggestions) > 0 {
		sb.WriteString("Suggestions:\n")
		for _, s := range m.Suggestions {
			sb.WriteString("- ")
			sb.WriteString(s)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
