// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/claimledger/internal/llm"
)

// Fake answers requests from canned responses keyed by Request.Purpose.
// Handler, when set, takes precedence over the maps.
type Fake struct {
	ProviderName string
	Responses    map[string]string
	Errors       map[string]error
	Handler      func(req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

// New returns a Fake with empty response maps
func New() *Fake {
	return &Fake{
		ProviderName: "fake",
		Responses:    make(map[string]string),
		Errors:       make(map[string]error),
	}
}

func (f *Fake) Name() string { return f.ProviderName }

func (f *Fake) IsAvailable(ctx context.Context) bool { return true }

func (f *Fake) Generate(ctx context.Context, req llm.Request, out any) error {
	req.JSON = true
	resp, err := f.GenerateText(ctx, req)
	if err != nil {
		return err
	}
	return llm.DecodeJSON(resp.Text, out)
}

func (f *Fake) GenerateText(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Handler != nil {
		text, err := f.Handler(req)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Text: text, Model: "fake"}, nil
	}
	if err := f.Errors[req.Purpose]; err != nil {
		return nil, err
	}
	text, ok := f.Responses[req.Purpose]
	if !ok {
		return nil, fmt.Errorf("llmtest: no response scripted for purpose %q", req.Purpose)
	}
	return &llm.Response{Text: text, Model: "fake"}, nil
}

// Requests returns a copy of every request received so far
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// Count returns how many requests had the given purpose
func (f *Fake) Count(purpose string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Purpose == purpose {
			n++
		}
	}
	return n
}
