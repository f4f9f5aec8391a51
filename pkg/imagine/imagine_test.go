package imagine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avrebarra/lumora/internal/store"
	"github.com/avrebarra/lumora/pkg/catalog"
	"github.com/avrebarra/lumora/pkg/fallback"
	"github.com/avrebarra/lumora/pkg/ledger"
	"github.com/avrebarra/lumora/pkg/llm"
	"github.com/avrebarra/lumora/pkg/secrets"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imagineFixture struct {
	store   *store.Store
	service *Service
}

func newImagineFixture(t *testing.T, descriptors []catalog.Descriptor) *imagineFixture {
	t.Helper()

	s, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateAccount(context.Background(), "acct-1", 100))

	service, err := New(Config{
		Catalog:     catalog.New(catalog.NewSnapshot(descriptors)),
		Secrets:     secrets.NewStaticProvider(map[string]string{"gemini": "test-key", "openai": "test-key"}),
		Gate:        ledger.NewGate(s, nil, zerolog.Nop()),
		Coordinator: fallback.New(nil, zerolog.Nop()),
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	return &imagineFixture{store: s, service: service}
}

func (f *imagineFixture) balance(t *testing.T) int64 {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), "acct-1")
	require.NoError(t, err)
	return acc.Balance
}

func imageCandidate(id, endpoint string, order int) catalog.Descriptor {
	return catalog.Descriptor{
		ID:           id,
		Provider:     "gemini",
		BackendModel: "imagen-test",
		Endpoint:     endpoint,
		Active:       true,
		DisplayOrder: order,
		Capabilities: catalog.Capabilities{Image: true},
	}
}

func predictServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("first candidate succeeds and debits once", func(t *testing.T) {
		server := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.True(t, strings.HasSuffix(r.URL.Path, "/models/imagen-test:predict"), r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"predictions": [{"bytesBase64Encoded": "aW1n", "mimeType": "image/png"}]}`))
		})

		f := newImagineFixture(t, []catalog.Descriptor{imageCandidate("img-a", server.URL, 1)})

		result, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		require.NoError(t, err)
		require.Len(t, result.Images, 1)
		assert.Equal(t, "aW1n", result.Images[0].B64)
		assert.Equal(t, "image/png", result.Images[0].MimeType)
		assert.Equal(t, "img-a", result.ModelID)
		assert.Empty(t, result.WaitHints)

		assert.Equal(t, int64(95), f.balance(t))
		records, err := f.store.ListUsage(ctx, "acct-1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "image_generation", records[0].Reason)
		assert.Equal(t, int64(5), records[0].Cost)
	})

	t.Run("rate limited candidate is skipped with a hint", func(t *testing.T) {
		limited := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": {"code": 429, "status": "RESOURCE_EXHAUSTED", "message": "quota exceeded",
				"details": [{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "20s"}]}}`))
		})
		healthy := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"predictions": [{"bytesBase64Encoded": "aW1n"}]}`))
		})

		f := newImagineFixture(t, []catalog.Descriptor{
			imageCandidate("img-a", limited.URL, 1),
			imageCandidate("img-b", healthy.URL, 2),
		})

		result, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		require.NoError(t, err)
		assert.Equal(t, "img-b", result.ModelID)
		require.Len(t, result.WaitHints, 1)
		assert.Contains(t, result.WaitHints[0], "img-a")

		// Still exactly one debit for the pass
		assert.Equal(t, int64(95), f.balance(t))
	})

	t.Run("content block aborts and refunds", func(t *testing.T) {
		var untouched bool
		blocked := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"code": 400, "status": "INVALID_ARGUMENT", "message": "request blocked by safety filters"}}`))
		})
		never := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			untouched = true
		})

		f := newImagineFixture(t, []catalog.Descriptor{
			imageCandidate("img-a", blocked.URL, 1),
			imageCandidate("img-b", never.URL, 2),
		})

		_, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		require.Error(t, err)
		assert.Equal(t, llm.KindContentBlocked, llm.KindOf(err))
		assert.False(t, untouched)
		assert.Equal(t, int64(100), f.balance(t))
	})

	t.Run("exhaustion refunds and hides internals", func(t *testing.T) {
		failing := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"code": 500, "status": "INTERNAL", "message": "backend exploded at line 42"}}`))
		})

		f := newImagineFixture(t, []catalog.Descriptor{
			imageCandidate("img-a", failing.URL, 1),
			imageCandidate("img-b", failing.URL, 2),
		})

		_, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		require.Error(t, err)
		assert.Equal(t, llm.KindBackendError, llm.KindOf(err))
		assert.NotContains(t, err.Error(), "exploded")
		assert.Equal(t, int64(100), f.balance(t))
	})

	t.Run("no image models is a configuration error", func(t *testing.T) {
		f := newImagineFixture(t, []catalog.Descriptor{
			{ID: "chat-only", Provider: "gemini", BackendModel: "x", Active: true},
		})

		_, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		assert.Equal(t, llm.KindConfigurationError, llm.KindOf(err))
		assert.Equal(t, int64(100), f.balance(t))
	})

	t.Run("suspended account is refused before any backend call", func(t *testing.T) {
		var called bool
		server := predictServer(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		f := newImagineFixture(t, []catalog.Descriptor{imageCandidate("img-a", server.URL, 1)})
		require.NoError(t, f.store.SetSuspended(ctx, "acct-1", true))

		_, err := f.service.Generate(ctx, "acct-1", "a red bicycle")
		assert.Equal(t, llm.KindAccountSuspended, llm.KindOf(err))
		assert.False(t, called)
	})
}
