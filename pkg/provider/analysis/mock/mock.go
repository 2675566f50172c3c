// Package mock provides a test double for the analysis package interfaces.
//
// Use Provider to script analysis results and failures, and to inspect the
// requests the caller made:
//
//	p := &mock.Provider{Result: &analysis.Result{Metrics: m}}
//	res, err := orch.Analyze(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/vocably/cadenza/pkg/provider/analysis"
)

// Provider is a mock implementation of analysis.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned from Analyze when AnalyzeErr is nil.
	Result *analysis.Result

	// AnalyzeErr, if non-nil, is returned as the error from Analyze.
	AnalyzeErr error

	// PingErr is returned from Ping.
	PingErr error

	// AnalyzeFn, if set, overrides Result/AnalyzeErr entirely.
	AnalyzeFn func(ctx context.Context, req analysis.Request) (*analysis.Result, error)

	// AnalyzeCalls records every request passed to Analyze.
	AnalyzeCalls []analysis.Request

	// PingCalls counts invocations of Ping.
	PingCalls int
}

// Analyze records the call and returns the scripted result.
func (p *Provider) Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	p.mu.Lock()
	p.AnalyzeCalls = append(p.AnalyzeCalls, req)
	fn := p.AnalyzeFn
	res, err := p.Result, p.AnalyzeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &analysis.Result{}, nil
	}
	// Copy so callers mutating the result don't corrupt the script.
	cp := *res
	return &cp, nil
}

// Ping returns the scripted PingErr.
func (p *Provider) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PingCalls++
	return p.PingErr
}

// Reset clears recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyzeCalls = nil
	p.PingCalls = 0
}
