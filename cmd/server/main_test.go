package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"

	"github.com/OmChillure/localchat/internal/handlers"
	"github.com/OmChillure/localchat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := services.NewMemoryStore(0)
	m, err := handlers.NewMain(services.NewEcho("llama3.2:1b", 0), store, nil, handlers.Config{
		Models: defaultModels,
	}, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(newRouter(m, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = m.Shutdown(context.Background())
		_ = store.Close()
	})
	return srv
}

func TestRouter(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "home", method: http.MethodGet, path: "/", wantStatus: http.StatusOK, wantBody: "Ask anything..."},
		{name: "static script", method: http.MethodGet, path: "/static/app.js", wantStatus: http.StatusOK, wantBody: "EventSource"},
		{name: "static style", method: http.MethodGet, path: "/static/style.css", wantStatus: http.StatusOK, wantBody: "dot-animation"},
		{name: "health", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK, wantBody: "engine: reachable"},
		{name: "chats needs post", method: http.MethodGet, path: "/chats", wantStatus: http.StatusMethodNotAllowed},
		{name: "unknown route", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)

			res, err := srv.Client().Do(req)
			require.NoError(t, err)
			defer res.Body.Close()

			body, err := io.ReadAll(res.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, res.StatusCode)
			assert.Contains(t, string(body), tt.wantBody)
		})
	}
}

func TestRouterChatRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	page, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)

	m := regexp.MustCompile(`name="conversation_id" value="([^"]+)"`).FindSubmatch(page)
	require.NotNil(t, m)
	conversationID := string(m[1])

	res, err = srv.Client().PostForm(srv.URL+"/chats", url.Values{
		"message":         {"ping"},
		"conversation_id": {conversationID},
		"model":           {"llama3.2:3b"},
	})
	require.NoError(t, err)
	fragment, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)

	streamPath := regexp.MustCompile(`data-stream-url="([^"]+)"`).FindSubmatch(fragment)
	require.NotNil(t, streamPath)
	streamURL := strings.ReplaceAll(string(streamPath[1]), "&amp;", "&")

	res, err = srv.Client().Get(srv.URL + streamURL)
	require.NoError(t, err)
	stream, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	assert.True(t, bytes.Contains(stream, []byte("(demo:llama3.2:3b) you said: ping")), string(stream))
	assert.True(t, bytes.Contains(stream, []byte("event: closeMessage")), string(stream))
}
