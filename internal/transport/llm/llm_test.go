package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

func TestSanitizeMessages(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stamped := now.Add(-time.Hour)
	in := []domain.Message{
		{Role: domain.RoleSystem, Content: "  be precise \n"},
		{Role: domain.RoleUser, Content: "   "},
		{Role: domain.RoleUser, Content: "question", Timestamp: stamped},
		{Role: domain.RoleAssistant, Content: ""},
	}

	got := SanitizeMessages(in, now)

	require.Len(t, got, 2)
	assert.Equal(t, "be precise", got[0].Content)
	assert.Equal(t, now, got[0].Timestamp)
	assert.Equal(t, stamped, got[1].Timestamp)
	assert.Equal(t, "  be precise \n", in[0].Content, "input must not be modified")
}

func TestCharsPerToken(t *testing.T) {
	assert.Equal(t, 4.0, CharsPerToken("The minimum ceiling height is 2.7 metres."))
	assert.Equal(t, 2.5, CharsPerToken("Chiều cao tối thiểu của tầng một là 3,6 mét."))
	assert.Equal(t, 4.0, CharsPerToken(""))
	assert.Equal(t, 4.0, CharsPerToken("12345 !!!"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 3, EstimateTokens(strings.Repeat("a", 12)))
	assert.Equal(t, 4, EstimateTokens(strings.Repeat("a", 13)))
	assert.Equal(t, 4, EstimateTokens("đường"+"đường"))
}

func TestTruncateContext(t *testing.T) {
	short := "fits easily"
	assert.Equal(t, short, TruncateContext(short, 100))
	assert.Equal(t, short, TruncateContext(short, 0))

	long := strings.Repeat("abcd", 100) // 400 chars, 100 tokens
	got := TruncateContext(long, 10)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))
	assert.Equal(t, long[:40], strings.TrimSuffix(got, TruncationMarker))

	vi := strings.Repeat("Khoảng lùi tối thiểu ", 50)
	got = TruncateContext(vi, 20)
	require.True(t, utf8.ValidString(got))
	body := strings.TrimSuffix(got, TruncationMarker)
	assert.Equal(t, 50, utf8.RuneCountInString(body))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  domain.ProviderConfig
		ok   bool
	}{
		{"openai ok", domain.ProviderConfig{Name: "o", Kind: domain.KindOpenAI, Model: "m", APIKey: "k"}, true},
		{"openai no key", domain.ProviderConfig{Name: "o", Kind: domain.KindOpenAI, Model: "m"}, false},
		{"gemini no key", domain.ProviderConfig{Name: "g", Kind: domain.KindGemini, Model: "m"}, false},
		{"ollama ok", domain.ProviderConfig{Name: "l", Kind: domain.KindOllama, Model: "m", BaseURL: "http://x"}, true},
		{"ollama no url", domain.ProviderConfig{Name: "l", Kind: domain.KindOllama, Model: "m"}, false},
		{"no model", domain.ProviderConfig{Name: "l", Kind: domain.KindOllama, BaseURL: "http://x"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.cfg)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
			}
		})
	}
}

func TestSettings_Replace(t *testing.T) {
	s, err := NewSettings(domain.ProviderConfig{Name: "o", Kind: domain.KindOpenAI, Model: "a", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, s.Get().Timeout)

	cfg, err := s.Replace(domain.ProviderConfig{Name: "renamed", Kind: domain.KindOllama, Model: "b", APIKey: "k2"})
	require.NoError(t, err)
	assert.Equal(t, "o", cfg.Name)
	assert.Equal(t, domain.KindOpenAI, cfg.Kind)
	assert.Equal(t, "b", s.Get().Model)

	_, err = s.Replace(domain.ProviderConfig{Model: "c"})
	assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
	assert.Equal(t, "b", s.Get().Model, "invalid config must not be applied")
}

func TestResolve(t *testing.T) {
	cfg := WithDefaults(domain.ProviderConfig{Name: "o", Model: "base", MaxTokens: 500, Temperature: 0.3})
	temp := 0.9

	r, err := Resolve(cfg, domain.CompletionRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: " hi "}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "base", r.Model)
	assert.Equal(t, 500, r.MaxTokens)
	assert.Equal(t, 0.9, r.Temperature)
	assert.Equal(t, "hi", r.Messages[0].Content)

	_, err = Resolve(cfg, domain.CompletionRequest{Messages: []domain.Message{{Content: " "}}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProbe(t *testing.T) {
	cfg := domain.ProviderConfig{Name: "ollama", Model: "llama3.2"}
	state := NewState()

	st := Probe(context.Background(), cfg, state, time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})
	assert.False(t, st.Available)
	assert.Equal(t, "connection refused", st.Error)
	assert.Equal(t, "llama3.2", st.Model)
	s, lastErr := state.Current()
	assert.Equal(t, domain.StateDegraded, s)
	assert.Equal(t, "connection refused", lastErr)

	st = Probe(context.Background(), cfg, state, time.Second, func(context.Context) error { return nil })
	assert.True(t, st.Available)
	s, _ = state.Current()
	assert.Equal(t, domain.StateReady, s)
}

func TestProbe_Timeout(t *testing.T) {
	st := Probe(context.Background(), domain.ProviderConfig{Name: "slow"}, nil, 10*time.Millisecond,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.Error)
}
