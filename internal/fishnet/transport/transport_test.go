package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostReturnsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fishnet-go/test", r.Header.Get("User-Agent"))
		w.WriteHeader(204)
	}))
	defer srv.Close()

	c := New(srv.URL, "fishnet-go/test")
	status, err := c.Post(context.Background(), "acquire", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 204, status)
}

func TestDoReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(202)
		_, _ = w.Write([]byte(`{"work":{"id":"1","type":"move"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "fishnet-go/test")
	resp, err := c.Do(context.Background(), "acquire", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, 202, resp.Status)
	assert.Contains(t, string(resp.Body), "work")
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, OutcomeNoJob, Classify(ctx, &Response{Status: 204}))
	assert.Equal(t, OutcomeJob, Classify(ctx, &Response{Status: 202}))
	assert.Equal(t, OutcomeRateLimited, Classify(ctx, &Response{Status: 429}))
	assert.Equal(t, OutcomeRecoverable, Classify(ctx, &Response{Status: 503}))
	assert.Equal(t, OutcomeRecoverable, Classify(ctx, &Response{Status: 400, Body: []byte(`{"error":"bad request"}`)}))
	assert.Equal(t, OutcomeUpdateRequired, Classify(ctx, &Response{Status: 400, Body: []byte(`{"error":"Please restart fishnet to upgrade."}`)}))
}
