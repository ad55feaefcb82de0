package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

func TestInstrumentedProvider_Complete_RecordsUsage(t *testing.T) {
	inner := &fakeProvider{name: "openai", model: "gpt", completeF: func(context.Context, domain.CompletionRequest) (domain.CompletionResponse, error) {
		return domain.CompletionResponse{Content: "ok", Usage: &domain.Usage{TotalTokens: 40}}, nil
	}}
	bt := NewBudgetTracker("openai", 1000, 0, BudgetActionReject, nil)
	p := NewInstrumentedProvider(inner, bt, nil)

	resp, err := p.Complete(context.Background(), domain.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if bt.DailyUsed() != 40 {
		t.Errorf("expected 40 tokens recorded, got %d", bt.DailyUsed())
	}
	if p.Name() != "openai" || p.Model() != "gpt" {
		t.Errorf("identity not forwarded: %s/%s", p.Name(), p.Model())
	}
}

func TestInstrumentedProvider_Complete_BudgetRejection(t *testing.T) {
	inner := &fakeProvider{name: "openai"}
	bt := NewBudgetTracker("openai", 10, 0, BudgetActionReject, nil)
	bt.Record(10)
	p := NewInstrumentedProvider(inner, bt, nil)

	_, err := p.Complete(context.Background(), domain.CompletionRequest{})
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if inner.callCount() != 0 {
		t.Errorf("inner provider must not be called over budget")
	}
}

func TestInstrumentedProvider_Complete_Error(t *testing.T) {
	inner := failingProvider("gemini", domain.ErrRateLimited)
	p := NewInstrumentedProvider(inner, nil, nil)

	_, err := p.Complete(context.Background(), domain.CompletionRequest{})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestInstrumentedProvider_Stream_EstimatesTokens(t *testing.T) {
	inner := &fakeProvider{name: "ollama", streamF: func(_ context.Context, _ domain.CompletionRequest, onChunk func(domain.StreamChunk)) error {
		onChunk(domain.StreamChunk{Content: strings.Repeat("a", 40)})
		onChunk(domain.StreamChunk{Done: true})
		return nil
	}}
	bt := NewBudgetTracker("ollama", 0, 0, BudgetActionWarn, nil)
	p := NewInstrumentedProvider(inner, bt, nil)

	var chunks []domain.StreamChunk
	err := p.StreamComplete(context.Background(), domain.CompletionRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: strings.Repeat("b", 20)}},
	}, func(c domain.StreamChunk) { chunks = append(chunks, c) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 || !chunks[1].Done {
		t.Errorf("chunks not forwarded: %+v", chunks)
	}
	// 20 prompt chars + 40 completion chars at 4 chars per token
	if bt.DailyUsed() != 15 {
		t.Errorf("expected 15 estimated tokens, got %d", bt.DailyUsed())
	}
}

func TestInstrumentedProvider_Stream_BudgetRejectionTerminates(t *testing.T) {
	inner := &fakeProvider{name: "openai"}
	bt := NewBudgetTracker("openai", 1, 0, BudgetActionReject, nil)
	bt.Record(1)
	p := NewInstrumentedProvider(inner, bt, nil)

	var chunks []domain.StreamChunk
	err := p.StreamComplete(context.Background(), domain.CompletionRequest{},
		func(c domain.StreamChunk) { chunks = append(chunks, c) })
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if len(chunks) != 1 || !chunks[0].Done {
		t.Errorf("expected a single terminal chunk, got %+v", chunks)
	}
	if inner.callCount() != 0 {
		t.Errorf("inner provider must not be called over budget")
	}
}

func TestInstrumentedProvider_QuotaTriggersFallback(t *testing.T) {
	bt := NewBudgetTracker("a", 1, 0, BudgetActionReject, nil)
	bt.Record(1)
	m := NewManager(nil)
	m.Register(NewInstrumentedProvider(&fakeProvider{name: "a"}, bt, nil))
	m.Register(&fakeProvider{name: "b"})
	m.SetFallbackOrder([]string{"a", "b"})

	got, err := complete(context.Background(), m, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "answer from b" {
		t.Errorf("got %q", got)
	}
}

func TestInstrumentedProvider_Reconfigure(t *testing.T) {
	inner := &fakeProvider{name: "a", model: "old"}
	p := NewInstrumentedProvider(inner, nil, nil)

	if err := p.Reconfigure(domain.ProviderConfig{Model: "new"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "new" {
		t.Errorf("model = %s", p.Model())
	}
}
