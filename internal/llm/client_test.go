package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/edibez/tokenagent/pkg/types"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, status int, body string, seen *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete_ReturnsFirstChoice(t *testing.T) {
	var seen chatRequest
	srv := newServer(t, http.StatusOK,
		`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"yes"},"finish_reason":"stop"}]}`,
		&seen)

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key", Model: "test-model"})
	got, err := c.Complete(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "classify"},
		{Role: types.RoleUser, Content: "price of BTC"},
	})

	require.NoError(t, err)
	require.Equal(t, "yes", got)
	require.Equal(t, "test-model", seen.Model)
	require.Len(t, seen.Messages, 2)
	require.Equal(t, "system", seen.Messages[0].Role)
	require.Equal(t, "price of BTC", seen.Messages[1].Content)
}

func TestComplete_NoChoices(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"id":"x","choices":[]}`, nil)

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key"})
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestComplete_ServerError(t *testing.T) {
	srv := newServer(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`, nil)

	c := New(Config{BaseURL: srv.URL + "/v1", APIKey: "test-key", Timeout: time.Second})
	_, err := c.Complete(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	require.Error(t, err)
}

func TestNew_ModelDefault(t *testing.T) {
	require.Equal(t, DefaultModel, New(Config{APIKey: "test-key"}).Model())
	require.Equal(t, "test-model", New(Config{APIKey: "test-key", Model: "test-model"}).Model())
}
