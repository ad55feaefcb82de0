package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Khogao/archi-query-master-sub000/internal/domain"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// chatServer answers /api/chat with NDJSON, one line per part, the last one done.
func chatServer(t *testing.T, parts []string, seen *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if seen != nil {
			*seen = req
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		if !req.Stream {
			fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":%q},"done":true,`+
				`"done_reason":"stop","prompt_eval_count":12,"eval_count":3}`+"\n",
				req.Model, strings.Join(parts, ""))
			return
		}
		for _, p := range parts {
			fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":%q},"done":false}`+"\n", req.Model, p)
		}
		fmt.Fprintf(w, `{"model":%q,"message":{"role":"assistant","content":""},"done":true,`+
			`"prompt_eval_count":12,"eval_count":3}`+"\n", req.Model)
	}))
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := NewProvider(domain.ProviderConfig{
		Name:       "ollama",
		Model:      "llama3.2",
		BaseURL:    url,
		MaxRetries: 1,
	}, nil)
	require.NoError(t, err)
	return p
}

func TestNewProvider_RequiresBaseURL(t *testing.T) {
	_, err := NewProvider(domain.ProviderConfig{Name: "ollama", Model: "llama3.2"}, nil)
	assert.ErrorIs(t, err, domain.ErrProviderUnconfigured)
}

func TestProvider_Complete(t *testing.T) {
	var seen chatRequest
	server := chatServer(t, []string{"Three metres."}, &seen)
	defer server.Close()

	p := newTestProvider(t, server.URL)

	resp, err := p.Complete(context.Background(), domain.CompletionRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: "Answer from context only."},
		{Role: domain.RoleUser, Content: "How high?"},
		{Role: domain.RoleUser, Content: "  "},
	}})
	require.NoError(t, err)

	assert.Equal(t, "Three metres.", resp.Content)
	assert.Equal(t, "llama3.2", resp.Model)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Len(t, seen.Messages, 2, "blank messages are dropped")
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "user", seen.Messages[1].Role)
}

func TestProvider_StreamComplete(t *testing.T) {
	server := chatServer(t, []string{"Three", " metres", "."}, nil)
	defer server.Close()

	p := newTestProvider(t, server.URL)

	var chunks []domain.StreamChunk
	err := p.StreamComplete(context.Background(),
		domain.CompletionRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "How high?"}}},
		func(c domain.StreamChunk) { chunks = append(chunks, c) })
	require.NoError(t, err)

	assert.Equal(t, []domain.StreamChunk{
		{Content: "Three"},
		{Content: " metres"},
		{Content: "."},
		{Done: true},
	}, chunks)
}

func TestProvider_UnknownModelIsClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model \"llama9\" not found, try pulling it first"}`)
	}))
	defer server.Close()

	p := newTestProvider(t, server.URL)

	_, err := p.Complete(context.Background(),
		domain.CompletionRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	var pe *domain.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestProvider_HealthCheck(t *testing.T) {
	server := chatServer(t, []string{"pong"}, nil)
	p := newTestProvider(t, server.URL)

	st := p.HealthCheck(context.Background())
	assert.True(t, st.Available)
	assert.Equal(t, "ollama", st.Provider)

	server.Close()
	st = p.HealthCheck(context.Background())
	assert.False(t, st.Available)
	assert.NotEmpty(t, st.Error)
	state, lastErr := p.State()
	assert.Equal(t, domain.StateDegraded, state)
	assert.NotEmpty(t, lastErr)
}

func TestProvider_ReconfigureSwitchesModel(t *testing.T) {
	var seen chatRequest
	server := chatServer(t, []string{"ok"}, &seen)
	defer server.Close()

	p := newTestProvider(t, server.URL)
	require.NoError(t, p.Reconfigure(domain.ProviderConfig{Model: "qwen2.5", BaseURL: server.URL, MaxRetries: 1}))

	_, err := p.Complete(context.Background(),
		domain.CompletionRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5", seen.Model)
	assert.Equal(t, "qwen2.5", p.Model())
}
