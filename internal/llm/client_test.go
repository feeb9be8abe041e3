package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clatprep/clat-prep-api/pkg/config"
)

func testClient(t *testing.T, baseURL string, maxRetries int) Client {
	t.Helper()
	c, err := NewClient(config.AIConfig{
		APIKey:         "test-key",
		BaseURL:        baseURL,
		Model:          "gpt-4o-mini",
		MaxRetries:     maxRetries,
		RequestTimeout: 5 * time.Second,
	}, nil)
	require.NoError(t, err)
	return c
}

func completion(content string) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
}

func TestGenerateTextSendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(completion("The doctrine of basic structure limits amendment power."))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	text, err := c.GenerateText(context.Background(), "You are a law tutor.", "Explain the basic structure doctrine.")
	require.NoError(t, err)
	assert.Equal(t, "The doctrine of basic structure limits amendment power.", text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestGenerateTextOmitsEmptySystemPrompt(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(completion("ok"))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.GenerateText(context.Background(), "", "question")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestGenerateTextRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch calls {
		case 1:
			w.WriteHeader(http.StatusInternalServerError)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_ = json.NewEncoder(w).Encode(completion("eventually"))
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	text, err := c.GenerateText(context.Background(), "", "question")
	require.NoError(t, err)
	assert.Equal(t, "eventually", text)
	assert.Equal(t, 3, calls)
}

func TestGenerateTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.GenerateText(context.Background(), "", "question")
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx other than 408/429 must not be retried")
}

func TestGenerateTextGivesUpAfterMaxRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)
	_, err := c.GenerateText(context.Background(), "", "question")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestGenerateTextRejectsEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.GenerateText(context.Background(), "", "question")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty chat completion")
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(config.AIConfig{}, nil)
	require.Error(t, err)
}
