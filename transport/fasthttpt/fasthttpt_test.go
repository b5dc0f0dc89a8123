package fasthttpt

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/maximhq/datahook/schemas"
	"github.com/stretchr/testify/require"
)

func TestClient_Do_GETRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/1", r.URL.Path)
		w.Header().Set("X-Source", "backend")
		w.Write([]byte(`{"id":1,"title":"hello"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Do(context.Background(), "/posts/1", schemas.MethodGet, schemas.Request{})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Nil(t, resp.Err)
	require.False(t, resp.Aborted)
	require.Equal(t, "backend", resp.Headers["X-Source"])

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hello", data["title"])
}

func TestClient_Do_POSTRoundTripWithBody(t *testing.T) {
	var receivedBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		dec := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&dec)
		receivedBody = dec
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1,"title":"updated"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Do(context.Background(), "/posts/1", schemas.MethodPost, schemas.Request{
		Body: map[string]any{"title": "updated"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "updated", receivedBody["title"])

	data := resp.Data.(map[string]any)
	require.Equal(t, "updated", data["title"])
}

func TestClient_Do_ErrorStatusMapsToRespErr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"not found"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Do(context.Background(), "/posts/999", schemas.MethodGet, schemas.Request{})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Status)
	require.Error(t, resp.Err)
	require.False(t, resp.Aborted)
}

func TestClient_Do_DeadlineExceededAborts(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := c.Do(ctx, "/slow", schemas.MethodGet, schemas.Request{})
	require.NoError(t, err)
	require.True(t, resp.Aborted)
}

func TestClient_Do_CancelWithoutDeadlineAborts(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	resp, err := c.Do(ctx, "/slow", schemas.MethodGet, schemas.Request{})
	require.NoError(t, err)
	require.True(t, resp.Aborted)
}

func TestClient_Do_ParamsAndQuerySubstitution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/posts/42", r.URL.Path)
		require.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Do(context.Background(), "/posts/:id", schemas.MethodGet, schemas.Request{
		Params: map[string]string{"id": "42"},
		Query:  map[string]string{"limit": "10"},
	})
	require.NoError(t, err)
}
