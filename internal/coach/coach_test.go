package coach

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vocably/cadenza/internal/observe"
	"github.com/vocably/cadenza/pkg/provider/llm"
	"github.com/vocably/cadenza/pkg/provider/llm/mock"
	"github.com/vocably/cadenza/pkg/speech"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func sampleMetrics() speech.Metrics {
	m := speech.Metrics{
		ClarityScore:       72,
		NasalityScore:      45,
		PacingScore:        4.6,
		BreathControlScore: 80,
		PhonemeErrors:      []speech.PhonemeError{{Phoneme: "s"}},
		Suggestions:        []string{"Try slowing down slightly."},
	}
	m.Recompute()
	return m
}

func TestNote_ReturnsTrimmedContent(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: "  Nice work on your breath support today. Try easing your pace a little.  ",
	}}
	c := New(p, WithMetrics(testMetrics(t)))

	note, err := c.Note(context.Background(), sampleMetrics())
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if want := "Nice work on your breath support today. Try easing your pace a little."; note != want {
		t.Errorf("note = %q, want %q", note, want)
	}
}

func TestNote_PromptCarriesMetricsAndSuggestions(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	c := New(p, WithMetrics(testMetrics(t)), WithTemperature(0.2))

	if _, err := c.Note(context.Background(), sampleMetrics()); err != nil {
		t.Fatalf("Note: %v", err)
	}

	calls := p.CompleteCalls
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt == "" {
		t.Error("system prompt not set")
	}
	if req.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", req.Temperature)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("messages = %+v, want one user message", req.Messages)
	}
	body := req.Messages[0].Content
	for _, want := range []string{"Clarity: 72/100", "Pacing: 4.6", "Phonemes to work on: s", "Try slowing down slightly."} {
		if !strings.Contains(body, want) {
			t.Errorf("user message missing %q:\n%s", want, body)
		}
	}
}

func TestNote_ProviderErrorDegradesToEmpty(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteErr: errors.New("model overloaded")}
	c := New(p, WithMetrics(testMetrics(t)))

	note, err := c.Note(context.Background(), sampleMetrics())
	if err != nil {
		t.Fatalf("Note: %v, want graceful degradation", err)
	}
	if note != "" {
		t.Errorf("note = %q, want empty", note)
	}
}

func TestNote_ParentCancellationSurfaces(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteFn: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := New(p, WithMetrics(testMetrics(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Note(ctx, sampleMetrics()); err == nil {
		t.Error("expected an error when the parent context is cancelled")
	}
}

func TestNote_CapsRunawayOutput(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: strings.Repeat("encouragement ", 200),
	}}
	c := New(p, WithMetrics(testMetrics(t)))

	note, err := c.Note(context.Background(), sampleMetrics())
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if len(note) > maxNoteLength {
		t.Errorf("note length = %d, want <= %d", len(note), maxNoteLength)
	}
}
