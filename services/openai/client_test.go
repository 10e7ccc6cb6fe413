package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a client at the given server with fast retry backoff
// and an effectively unlimited rate limiter
func newTestClient(serverURL string, maxRetries int) *Client {
	return NewClient(Config{
		APIKey:  "sk-test",
		BaseURL: serverURL,
		RetryConfig: &RetryConfig{
			MaxRetries:     maxRetries,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
		RateLimiterConfig: &RateLimiterConfig{
			MaxTokens:  1000,
			RefillRate: 1000,
		},
	})
}

func writeTestError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"invalid_request_error"}}`, message)
}

func TestIsRetryableStatusCode(t *testing.T) {
	retryable := []int{408, 409, 429, 500, 502, 503}
	for _, code := range retryable {
		assert.True(t, IsRetryableStatusCode(code), "expected %d to be retryable", code)
	}

	permanent := []int{200, 400, 401, 403, 404, 422}
	for _, code := range permanent {
		assert.False(t, IsRetryableStatusCode(code), "expected %d not to be retryable", code)
	}
}

func TestCalculateBackoffDoublesAndCaps(t *testing.T) {
	config := RetryConfig{
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}

	assert.Equal(t, 500*time.Millisecond, CalculateBackoff(0, config))
	assert.Equal(t, time.Second, CalculateBackoff(1, config))
	assert.Equal(t, 2*time.Second, CalculateBackoff(2, config))
	assert.Equal(t, 30*time.Second, CalculateBackoff(10, config))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), ParseRetryAfter(nil))

	resp := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Duration(0), ParseRetryAfter(resp))

	resp.Header.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, ParseRetryAfter(resp))

	resp.Header.Set("Retry-After", "not-a-number")
	assert.Equal(t, time.Duration(0), ParseRetryAfter(resp))

	resp.Header.Set("Retry-After", time.Now().Add(10*time.Second).UTC().Format(http.TimeFormat))
	parsed := ParseRetryAfter(resp)
	assert.Greater(t, parsed, 5*time.Second)
	assert.LessOrEqual(t, parsed, 10*time.Second)
}

func TestCreateVectorStoreFallsBackAcrossStrategies(t *testing.T) {
	var calls int
	var betaHeaders []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		betaHeaders = append(betaHeaders, r.Header.Get("OpenAI-Beta"))

		// The first two endpoint shapes fail permanently, the third works
		if calls < 3 {
			writeTestError(w, http.StatusBadRequest, "unsupported request shape")
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "vs_123", "object": "vector_store", "name": "docs", "status": "completed",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	store, err := client.CreateVectorStore(context.Background(), CreateVectorStoreRequest{Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "vs_123", store.ID)

	require.Equal(t, 3, calls)
	// The raw strategy sends no beta header, the raw-beta retry does
	assert.Empty(t, betaHeaders[1])
	assert.Equal(t, AssistantsBetaHeader, betaHeaders[2])
}

func TestCreateVectorStoreStopsOnAuthError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeTestError(w, http.StatusUnauthorized, "bad api key")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	_, err := client.CreateVectorStore(context.Background(), CreateVectorStoreRequest{Name: "docs"})
	require.Error(t, err)
	assert.True(t, IsAuthError(err))

	// A bad key fails identically on every shape, so no fallback happens
	assert.Equal(t, 1, calls)
}

func TestCreateVectorStoreRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			writeTestError(w, http.StatusInternalServerError, "upstream hiccup")
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "vs_456", "object": "vector_store", "name": "docs", "status": "completed",
		})
	}))
	defer srv.Close()

	// The SDK strategy absorbs both transient failures through its
	// retrying transport and succeeds on the third exchange
	client := newTestClient(srv.URL, 2)
	store, err := client.CreateVectorStore(context.Background(), CreateVectorStoreRequest{Name: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "vs_456", store.ID)
	assert.Equal(t, 3, calls)
}

func TestCreateVectorStoreRequiresName(t *testing.T) {
	client := newTestClient("http://127.0.0.1:0", 0)
	_, err := client.CreateVectorStore(context.Background(), CreateVectorStoreRequest{})
	require.Error(t, err)
}

func TestListVectorStoreFilesBoundsPagination(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		// A remote that always claims another page must not loop forever
		json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{"id": fmt.Sprintf("file_%d", pages), "object": "vector_store.file", "vector_store_id": "vs_1", "status": "completed"},
			},
			"last_id":  fmt.Sprintf("file_%d", pages),
			"has_more": true,
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	files, err := client.ListVectorStoreFiles(context.Background(), "vs_1")
	require.NoError(t, err)
	assert.Len(t, files, MaxListPages)
	assert.Equal(t, MaxListPages, pages)
}

func TestRetrieveRunRetriesTransientFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeTestError(w, http.StatusInternalServerError, "upstream hiccup")
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id": "run_1", "object": "thread.run", "thread_id": "thread_1",
			"status": "completed",
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	run, err := client.RetrieveRun(context.Background(), "thread_1", "run_1")
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.ID)
	assert.Equal(t, 2, calls)
}

func TestCreateRunExhaustsRetriesOnPersistentFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeTestError(w, http.StatusServiceUnavailable, "maintenance window")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 2)
	_, err := client.CreateRun(context.Background(), "thread_1", "asst_1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCodeOf(err))
	// Initial attempt plus two retries, body replayed each time
	assert.Equal(t, 3, calls)
}

func TestErrorClassificationFromSDKPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeTestError(w, http.StatusNotFound, "no such vector store")
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	_, err := client.RetrieveVectorStore(context.Background(), "vs_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, http.StatusNotFound, StatusCodeOf(err))
}

func TestStatusCodeOfPlainError(t *testing.T) {
	assert.Equal(t, 0, StatusCodeOf(context.Canceled))
	assert.False(t, IsNotFound(context.Canceled))
	assert.False(t, IsRetryable(context.Canceled))
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 429, Message: "slow down"}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "slow down")
}
