package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/batteryview/batteryview/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateBody(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]string{{"text": text}}}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestGenerateJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
			assert.Equal(t, "key123", r.Header.Get("x-goog-api-key"))

			var req map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			cfg, ok := req["generationConfig"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "application/json", cfg["responseMimeType"])

			w.Write(candidateBody(t, `{"summary":"healthy"}`))
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		var res struct {
			Summary string `json:"summary"`
		}
		require.NoError(t, c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &res))
		assert.Equal(t, "healthy", res.Summary)
	})

	t.Run("missing api key", func(t *testing.T) {
		c := NewClient(common.HTTPClient(5*time.Second), "http://example.invalid", "")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		assert.ErrorIs(t, err, ErrMissingAPIKey)
	})

	t.Run("429 is rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		assert.True(t, IsRateLimited(err))
	})

	t.Run("resource exhausted is rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"code":    429,
					"message": "quota exceeded",
					"status":  "RESOURCE_EXHAUSTED",
				},
			})
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		assert.True(t, IsRateLimited(err))
	})

	t.Run("api error surfaces message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"code":    400,
					"message": "invalid argument",
					"status":  "INVALID_ARGUMENT",
				},
			})
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		require.Error(t, err)
		assert.False(t, IsRateLimited(err))
		assert.Contains(t, err.Error(), "invalid argument")
	})

	t.Run("no candidates", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates":[]}`))
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		assert.EqualError(t, err, "no output from model")
	})

	t.Run("malformed model output", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write(candidateBody(t, `not json`))
		}))
		defer srv.Close()

		c := NewClient(common.HTTPClient(5*time.Second), srv.URL, "key123")
		err := c.GenerateJSON(ctx, "test-model", []Part{{Text: "hi"}}, &struct{}{})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, NewClient(nil, "http://x", "").Validate(), ErrMissingAPIKey)
	assert.NoError(t, NewClient(nil, "http://x", "key").Validate())
}
