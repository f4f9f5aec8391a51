package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedGeminiRequest mirrors the generateContent wire shape the SDK
// emits, for assertions on what the backend actually received.
type capturedGeminiRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	SystemInstruction *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"systemInstruction"`
	GenerationConfig *struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

func geminiErrorBody(code int, status, message, retryDelay string) string {
	details := ""
	if retryDelay != "" {
		details = `,"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"` + retryDelay + `"}]`
	}
	return fmt.Sprintf(`{"error":{"code":%d,"status":"%s","message":"%s"%s}}`, code, status, message, details)
}

func TestGeminiAdapterSend(t *testing.T) {
	t.Run("successful call", func(t *testing.T) {
		var captured capturedGeminiRequest
		var capturedPath, capturedKey string

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedPath = r.URL.Path
			capturedKey = r.Header.Get("x-goog-api-key")
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{
					{
						"content": map[string]interface{}{
							"role":  "model",
							"parts": []map[string]string{{"text": "hello "}, {"text": "there"}},
						},
						"finishReason": "STOP",
					},
				},
				"usageMetadata": map[string]int{
					"promptTokenCount":     12,
					"candidatesTokenCount": 4,
					"totalTokenCount":      16,
				},
			})
		}))
		defer server.Close()

		adapter := NewGeminiAdapter(AdapterOptions{Endpoint: server.URL})
		resp, err := adapter.Send(context.Background(), ChatRequest{
			Messages: []Message{
				{Role: RoleSystem, Content: "be brief"},
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "hello"},
				{Role: RoleUser, Content: "again"},
			},
			Temperature: 0.5,
			MaxTokens:   100,
		}, "test-key", "gemini-2.0-flash")

		require.NoError(t, err)
		assert.Equal(t, "hello there", resp.Text)
		assert.Equal(t, FinishStop, resp.FinishReason)
		assert.Equal(t, 12, resp.Usage.InputTokens)
		assert.Equal(t, 4, resp.Usage.OutputTokens)
		assert.Equal(t, 16, resp.Usage.TotalTokens)

		assert.True(t, strings.HasSuffix(capturedPath, "/models/gemini-2.0-flash:generateContent"), capturedPath)
		assert.Equal(t, "test-key", capturedKey)

		// System directive goes into its own slot, assistant turns become
		// "model" turns
		require.NotNil(t, captured.SystemInstruction)
		assert.Equal(t, "be brief", captured.SystemInstruction.Parts[0].Text)
		require.Len(t, captured.Contents, 3)
		assert.Equal(t, "user", captured.Contents[0].Role)
		assert.Equal(t, "model", captured.Contents[1].Role)
		assert.Equal(t, "user", captured.Contents[2].Role)
		require.NotNil(t, captured.GenerationConfig)
		assert.Equal(t, 100, captured.GenerationConfig.MaxOutputTokens)
	})

	t.Run("rate limited with retry hint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(geminiErrorBody(429, "RESOURCE_EXHAUSTED", "quota exceeded", "7s")))
		}))
		defer server.Close()

		adapter := NewGeminiAdapter(AdapterOptions{Endpoint: server.URL})
		_, err := adapter.Send(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		}, "test-key", "gemini-2.0-flash")

		require.Error(t, err)
		assert.Equal(t, KindRateLimited, KindOf(err))
		wait, ok := RetryAfterHint(err)
		require.True(t, ok)
		assert.Equal(t, float64(7), wait.Seconds())
	})

	t.Run("safety stop becomes content blocked", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"finishReason": "SAFETY"},
				},
			})
		}))
		defer server.Close()

		adapter := NewGeminiAdapter(AdapterOptions{Endpoint: server.URL})
		_, err := adapter.Send(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "something"}},
		}, "test-key", "gemini-2.0-flash")

		require.Error(t, err)
		assert.Equal(t, KindContentBlocked, KindOf(err))
		// The classified message must never echo the prompt
		assert.NotContains(t, err.Error(), "something")
	})

	t.Run("auth failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(geminiErrorBody(401, "UNAUTHENTICATED", "API key not valid", "")))
		}))
		defer server.Close()

		adapter := NewGeminiAdapter(AdapterOptions{Endpoint: server.URL})
		_, err := adapter.Send(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		}, "bad-key", "gemini-2.0-flash")

		require.Error(t, err)
		assert.Equal(t, KindAuthError, KindOf(err))
	})

	t.Run("empty candidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"candidates": []}`))
		}))
		defer server.Close()

		adapter := NewGeminiAdapter(AdapterOptions{Endpoint: server.URL})
		_, err := adapter.Send(context.Background(), ChatRequest{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		}, "test-key", "gemini-2.0-flash")

		require.Error(t, err)
		assert.Equal(t, KindBackendError, KindOf(err))
	})
}

func TestAdapterFor(t *testing.T) {
	for _, family := range []string{FamilyAnthropic, FamilyOpenAI, FamilyGemini} {
		t.Run(family, func(t *testing.T) {
			adapter, err := AdapterFor(family, AdapterOptions{})
			require.NoError(t, err)
			assert.Equal(t, family, adapter.Family())
		})
	}

	t.Run("unknown provider", func(t *testing.T) {
		_, err := AdapterFor("mystery", AdapterOptions{})
		require.Error(t, err)
		assert.Equal(t, KindConfigurationError, KindOf(err))
	})
}
