// Package mock provides a test double for the transcribe.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/vocably/cadenza/pkg/provider/transcribe"
)

// Provider is a scripted transcribe.Provider for tests.
// Zero values cause Transcribe to return an empty Result and nil error.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when TranscribeFn is unset.
	Result transcribe.Result

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFn, if set, overrides the scripted response entirely.
	TranscribeFn func(ctx context.Context, req transcribe.Request) (*transcribe.Result, error)

	// TranscribeCalls records every request passed to Transcribe in order.
	TranscribeCalls []transcribe.Request
}

// Transcribe records the call and returns the scripted result.
func (p *Provider) Transcribe(ctx context.Context, req transcribe.Request) (*transcribe.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, req)
	fn := p.TranscribeFn
	res, err := p.Result, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	out := res
	return &out, nil
}

// Calls returns the number of recorded Transcribe invocations. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements transcribe.Provider at compile time.
var _ transcribe.Provider = (*Provider)(nil)
