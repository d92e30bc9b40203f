package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/igor-kupczynski/foodbuddy/internal/secret"
)

func chatAnswer(t *testing.T, description string) []byte {
	t.Helper()
	inner, err := json.Marshal(descriptionPayload{Description: description})
	require.NoError(t, err)
	answer := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": string(inner)}},
		},
	}
	out, err := json.Marshal(answer)
	require.NoError(t, err)
	return out
}

func TestDescribeSendsImagesAndReturnsDescription(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_, _ = w.Write(chatAnswer(t, "Oatmeal with blueberries"))
	}))
	defer srv.Close()

	c := NewMistralClient(secret.Static("test-key"), WithBaseURL(srv.URL), WithModel("test-model"))

	got, err := c.Describe(context.Background(), [][]byte{[]byte("img1"), []byte("img2")}, "breakfast")
	require.NoError(t, err)
	require.Equal(t, "Oatmeal with blueberries", got)

	require.Equal(t, "test-model", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	require.Equal(t, "system", gotReq.Messages[0].Role)
	require.Equal(t, "json_schema", gotReq.ResponseFormat.Type)

	// user content: one block per image plus the notes block
	blocks, ok := gotReq.Messages[1].Content.([]interface{})
	require.True(t, ok)
	require.Len(t, blocks, 3)
}

func TestDescribeWithoutKey(t *testing.T) {
	c := NewMistralClient(secret.Static("  "))
	_, err := c.Describe(context.Background(), [][]byte{[]byte("img")}, "")
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestDescribeWithoutImages(t *testing.T) {
	c := NewMistralClient(secret.Static("key"))
	_, err := c.Describe(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrDecoding)
}

func TestDescribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewMistralClient(secret.Static("key"), WithBaseURL(srv.URL))
	_, err := c.Describe(context.Background(), [][]byte{[]byte("img")}, "")

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	require.Contains(t, httpErr.Body, "quota exceeded")
}

func TestDescribeDecodingFailures(t *testing.T) {
	cases := map[string]string{
		"not json":           `garbage`,
		"no choices":         `{"choices":[]}`,
		"empty content":      `{"choices":[{"message":{"content":""}}]}`,
		"content not schema": `{"choices":[{"message":{"content":"plain text"}}]}`,
		"blank description":  `{"choices":[{"message":{"content":"{\"description\":\"  \"}"}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewMistralClient(secret.Static("key"), WithBaseURL(srv.URL))
			_, err := c.Describe(context.Background(), [][]byte{[]byte("img")}, "")
			require.ErrorIs(t, err, ErrDecoding)
		})
	}
}

func TestDescribeNetworkError(t *testing.T) {
	c := NewMistralClient(secret.Static("key"), WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Describe(context.Background(), [][]byte{[]byte("img")}, "")
	require.ErrorIs(t, err, ErrNetwork)
}

func TestMockDescriber(t *testing.T) {
	got, err := Mock{}.Describe(context.Background(), nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, got)

	_, err = Mock{Err: ErrNetwork}.Describe(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrNetwork)
}
