package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/claimledger/internal/cache"
	"github.com/ppiankov/claimledger/internal/metrics"
	"github.com/ppiankov/claimledger/internal/worker"
)

func TestCached_ReusesCacheableResponses(t *testing.T) {
	stub := &stubProvider{name: "stub", text: `{"files": ["a.md"]}`}
	p := Cached(stub, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, "m1")

	req := Request{SystemPrompt: "s", UserPrompt: "u", Cacheable: true}
	for range 3 {
		var out fileList
		if err := p.Generate(context.Background(), req, &out); err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if len(out.Files) != 1 || out.Files[0] != "a.md" {
			t.Fatalf("Unexpected files: %v", out.Files)
		}
	}

	if len(stub.requests) != 1 {
		t.Errorf("Expected 1 upstream call, got %d", len(stub.requests))
	}
}

func TestCached_SkipsNonCacheable(t *testing.T) {
	stub := &stubProvider{name: "stub", text: "answer"}
	p := Cached(stub, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, "m1")

	for range 2 {
		if _, err := p.GenerateText(context.Background(), Request{UserPrompt: "u"}); err != nil {
			t.Fatal(err)
		}
	}
	if len(stub.requests) != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", len(stub.requests))
	}
}

func TestCached_DistinguishesPrompts(t *testing.T) {
	stub := &stubProvider{name: "stub", text: "answer"}
	p := Cached(stub, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, "m1")

	_, _ = p.GenerateText(context.Background(), Request{UserPrompt: "one", Cacheable: true})
	_, _ = p.GenerateText(context.Background(), Request{UserPrompt: "two", Cacheable: true})
	if len(stub.requests) != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", len(stub.requests))
	}
}

func TestCached_KeysOnConfiguredModel(t *testing.T) {
	shared := cache.NewMemoryCache(time.Minute, time.Minute)
	first := &stubProvider{name: "openai", text: `{"files": ["from-model-a.md"]}`}
	second := &stubProvider{name: "openai", text: `{"files": ["from-model-b.md"]}`}

	req := Request{SystemPrompt: "s", UserPrompt: "u", Cacheable: true}

	var out fileList
	if err := Cached(first, shared, time.Minute, "model-a").Generate(context.Background(), req, &out); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if err := Cached(second, shared, time.Minute, "model-b").Generate(context.Background(), req, &out); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(out.Files) != 1 || out.Files[0] != "from-model-b.md" {
		t.Errorf("Expected answer from model-b, got %v", out.Files)
	}
	if len(second.requests) != 1 {
		t.Errorf("Expected 1 upstream call for model-b, got %d", len(second.requests))
	}

	// an explicit request model wins over the configured one
	if err := Cached(second, shared, time.Minute, "model-b").Generate(context.Background(), Request{
		SystemPrompt: "s", UserPrompt: "u", Cacheable: true, Model: "model-a",
	}, &out); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if out.Files[0] != "from-model-a.md" || len(second.requests) != 1 {
		t.Errorf("Expected cached model-a answer, got %v after %d calls", out.Files, len(second.requests))
	}
}

func TestCached_DoesNotStoreErrors(t *testing.T) {
	stub := &stubProvider{name: "stub", err: errors.New("down")}
	p := Cached(stub, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, "m1")

	req := Request{UserPrompt: "u", Cacheable: true}
	if _, err := p.GenerateText(context.Background(), req); err == nil {
		t.Fatal("Expected error")
	}
	stub.err = nil
	stub.text = "recovered"
	resp, err := p.GenerateText(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "recovered" {
		t.Errorf("Expected fresh response, got %q", resp.Text)
	}
}

func TestRateLimited_HonorsContext(t *testing.T) {
	stub := &stubProvider{name: "stub", text: "ok"}
	limiter := worker.NewLimiter(0.001, 1)
	p := RateLimited(stub, limiter)

	if _, err := p.GenerateText(context.Background(), Request{}); err != nil {
		t.Fatalf("First call should pass the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.GenerateText(ctx, Request{}); err == nil {
		t.Fatal("Expected rate limit wait to fail on context deadline")
	}
	if len(stub.requests) != 1 {
		t.Errorf("Expected 1 upstream call, got %d", len(stub.requests))
	}
}

func TestObserved_RecordsOutcomes(t *testing.T) {
	rec := metrics.New()
	stub := &stubProvider{name: "stub", text: "ok"}
	p := Observed(stub, rec, nil)

	if _, err := p.GenerateText(context.Background(), Request{Purpose: PurposeAnswer}); err != nil {
		t.Fatal(err)
	}
	stub.err = errors.New("fail")
	if _, err := p.GenerateText(context.Background(), Request{Purpose: PurposeAnswer}); err == nil {
		t.Fatal("Expected error")
	}

	if got := testutil.CollectAndCount(rec.Registry(), "claimledger_llm_requests_total"); got != 2 {
		t.Errorf("Expected 2 series (ok and error), got %d", got)
	}
}

func TestObserved_NilRecorder(t *testing.T) {
	p := Observed(&stubProvider{name: "stub", text: "ok"}, nil, nil)
	if _, err := p.GenerateText(context.Background(), Request{}); err != nil {
		t.Fatal(err)
	}
}

// fileList is a structured response used by the middleware tests
type fileList struct {
	Files []string `json:"files"`
}
