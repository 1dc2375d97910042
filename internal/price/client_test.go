package price_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edibez/tokenagent/internal/price"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestPrice_Success(t *testing.T) {
	t.Parallel()

	// Arrange: a mock client that checks the request and returns a quote.
	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "/api/v3/simple/price", req.URL.Path)
			require.Equal(t, "bitcoin", req.URL.Query().Get("ids"))
			require.Equal(t, "usd", req.URL.Query().Get("vs_currencies"))
			_, hasDeadline := req.Context().Deadline()
			require.True(t, hasDeadline, "request must carry a deadline")
			return jsonResponse(http.StatusOK, `{"bitcoin":{"usd":12345.678}}`), nil
		}).
		Times(1)

	client := price.NewClient(price.WithHTTPClient(httpClient), price.WithBaseURL("https://example.test/api/v3/"))

	// Act
	usd, err := client.Price(context.Background(), "bitcoin")

	// Assert
	require.NoError(t, err)
	require.InDelta(t, 12345.678, usd, 1e-9)
}

func TestPrice_NumericString(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusOK, `{"near":{"usd":"5.25"}}`), nil)

	usd, err := price.NewClient(price.WithHTTPClient(httpClient)).Price(context.Background(), "near")
	require.NoError(t, err)
	require.Equal(t, 5.25, usd)
}

func TestPrice_APIKeyHeader(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "demo-key", req.Header.Get("x-cg-demo-api-key"))
			return jsonResponse(http.StatusOK, `{"solana":{"usd":98.45}}`), nil
		})

	client := price.NewClient(price.WithHTTPClient(httpClient), price.WithAPIKey("demo-key"))
	_, err := client.Price(context.Background(), "solana")
	require.NoError(t, err)
}

func TestPrice_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		resp  *http.Response
		err   error
		cause price.Cause
	}{
		{name: "network", err: errors.New("dial tcp: connection refused"), cause: price.CauseNetwork},
		{name: "server error", resp: jsonResponse(http.StatusInternalServerError, `oops`), cause: price.CauseRemote},
		{name: "rate limited", resp: jsonResponse(http.StatusTooManyRequests, `{}`), cause: price.CauseRemote},
		{name: "malformed json", resp: jsonResponse(http.StatusOK, `{"bitcoin":`), cause: price.CauseShape},
		{name: "unknown id", resp: jsonResponse(http.StatusOK, `{}`), cause: price.CauseShape},
		{name: "missing usd", resp: jsonResponse(http.StatusOK, `{"bitcoin":{"eur":1}}`), cause: price.CauseShape},
		{name: "entry not an object", resp: jsonResponse(http.StatusOK, `{"bitcoin":5}`), cause: price.CauseShape},
		{name: "null price", resp: jsonResponse(http.StatusOK, `{"bitcoin":{"usd":null}}`), cause: price.CauseValue},
		{name: "text price", resp: jsonResponse(http.StatusOK, `{"bitcoin":{"usd":"n/a"}}`), cause: price.CauseValue},
		{name: "bool price", resp: jsonResponse(http.StatusOK, `{"bitcoin":{"usd":true}}`), cause: price.CauseValue},
		{name: "negative price", resp: jsonResponse(http.StatusOK, `{"bitcoin":{"usd":-1}}`), cause: price.CauseValue},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := NewMockHTTPClient(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(c.resp, c.err).Times(1)

			usd, err := price.NewClient(price.WithHTTPClient(httpClient)).Price(context.Background(), "bitcoin")
			require.Error(t, err)
			require.Zero(t, usd)

			var fe *price.FetchError
			require.True(t, errors.As(err, &fe), "want *FetchError, got %T", err)
			require.Equal(t, c.cause, fe.Cause)
			require.Equal(t, "bitcoin", fe.ID)
		})
	}
}

func TestPrice_RemoteStatusRecorded(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Return(jsonResponse(http.StatusBadGateway, ``), nil)

	_, err := price.NewClient(price.WithHTTPClient(httpClient)).Price(context.Background(), "ethereum")
	var fe *price.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, http.StatusBadGateway, fe.Status)
}

func TestPrice_TimeoutIsBounded(t *testing.T) {
	t.Parallel()

	// Arrange: a server that never answers within the client timeout.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := price.NewClient(price.WithBaseURL(srv.URL), price.WithTimeout(50*time.Millisecond))

	// Act
	start := time.Now()
	_, err := client.Price(context.Background(), "bitcoin")

	// Assert
	var fe *price.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, price.CauseNetwork, fe.Cause)
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestMissingIDs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/list", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"bitcoin","symbol":"btc","name":"Bitcoin"},{"id":"near","symbol":"near","name":"NEAR Protocol"}]`)
	}))
	defer srv.Close()

	client := price.NewClient(price.WithBaseURL(srv.URL))
	missing, err := client.MissingIDs(context.Background(), []string{"bitcoin", "ethereum", "near", "solana"})
	require.NoError(t, err)
	require.Equal(t, []string{"ethereum", "solana"}, missing)
}

func TestSupportedIDs_StatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := price.NewClient(price.WithBaseURL(srv.URL)).SupportedIDs(context.Background())
	require.Error(t, err)
}
