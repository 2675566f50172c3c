// Package remote implements analysis.Provider against the hosted analysis
// service's REST API.
//
// The service exposes two endpoints used here:
//
//   - POST /v1/analyze — accepts a JSON body with base64 audio, a format tag,
//     and optional target text; returns scored metrics, phoneme findings, and
//     suggestions.
//   - GET /health — cheap reachability probe.
//
// Responses are validated strictly: a missing metrics block, a non-2xx
// status, or a body that fails to decode is an error, never a partial result.
// The orchestrator treats any error from this package as a signal to fall
// back to local simulation.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/vocably/cadenza/pkg/provider/analysis"
	"github.com/vocably/cadenza/pkg/speech"
)

const (
	analyzeEndpoint = "/v1/analyze"
	healthEndpoint  = "/health"

	defaultTimeout = 60 * time.Second

	// maxResponseBytes caps how much of a response body is read, guarding
	// against a misbehaving server streaming unbounded data.
	maxResponseBytes = 4 << 20
)

// Compile-time interface assertion.
var _ analysis.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for analysis calls.
// Defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely. Useful in
// tests and for callers that need custom transports.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// Provider implements analysis.Provider over the analysis service's REST API.
// Safe for concurrent use.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Provider targeting baseURL (e.g. "https://api.example.com").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("remote: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// analyzeRequest is the wire shape of POST /v1/analyze.
type analyzeRequest struct {
	Audio      string `json:"audio"` // base64
	Format     string `json:"format"`
	TargetText string `json:"targetText,omitempty"`
}

// analyzeResponse is the wire shape of a successful analysis.
type analyzeResponse struct {
	Metrics *struct {
		ClarityScore       float64 `json:"clarityScore"`
		NasalityScore      float64 `json:"nasalityScore"`
		PacingScore        float64 `json:"pacingScore"`
		BreathControlScore float64 `json:"breathControlScore"`
		OverallScore       float64 `json:"overallScore"`
	} `json:"metrics"`
	PhonemeErrors []struct {
		Phoneme    string  `json:"phoneme"`
		Expected   string  `json:"expected"`
		Actual     string  `json:"actual"`
		Position   int     `json:"position"`
		Confidence float64 `json:"confidence"`
	} `json:"phonemeErrors"`
	PhonemeSegments []struct {
		Phoneme    string  `json:"phoneme"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"phonemeSegments"`
	Suggestions []string `json:"suggestions"`
	Transcript  string   `json:"transcript"`
}

// Analyze implements analysis.Provider. The remote overallScore is decoded
// but deliberately discarded downstream — the orchestrator recomputes it.
func (p *Provider) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("remote: empty audio")
	}
	if !req.Format.IsValid() {
		return nil, fmt.Errorf("remote: invalid audio format %q", req.Format)
	}

	body, err := json.Marshal(analyzeRequest{
		Audio:      base64.StdEncoding.EncodeToString(req.Audio),
		Format:     string(req.Format),
		TargetText: req.TargetText,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+analyzeEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("remote: analyze call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote: analyze returned status %d", resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	if decoded.Metrics == nil {
		return nil, fmt.Errorf("remote: response missing metrics block")
	}

	m := speech.Metrics{
		ClarityScore:       decoded.Metrics.ClarityScore,
		NasalityScore:      decoded.Metrics.NasalityScore,
		PacingScore:        decoded.Metrics.PacingScore,
		BreathControlScore: decoded.Metrics.BreathControlScore,
		Suggestions:        decoded.Suggestions,
	}
	for _, e := range decoded.PhonemeErrors {
		m.PhonemeErrors = append(m.PhonemeErrors, speech.PhonemeError{
			Phoneme:    e.Phoneme,
			Expected:   e.Expected,
			Actual:     e.Actual,
			Position:   e.Position,
			Confidence: e.Confidence,
		})
	}
	prevStart := math.Inf(-1)
	for _, s := range decoded.PhonemeSegments {
		if s.End <= s.Start {
			return nil, fmt.Errorf("remote: malformed segment (start %v, end %v)", s.Start, s.End)
		}
		if s.Start < prevStart {
			return nil, fmt.Errorf("remote: segments out of order (start %v after %v)", s.Start, prevStart)
		}
		prevStart = s.Start
		m.PhonemeSegments = append(m.PhonemeSegments, speech.PhonemeSegment{
			Phoneme:    s.Phoneme,
			Start:      s.Start,
			End:        s.End,
			Confidence: s.Confidence,
		})
	}

	return &analysis.Result{Metrics: m, Transcript: decoded.Transcript}, nil
}

// Ping implements analysis.Provider via GET /health.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("remote: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote: health call: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("remote: health returned status %d", resp.StatusCode)
	}
	return nil
}
