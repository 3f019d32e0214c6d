package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestIncomingReturnsStreamTwiML(t *testing.T) {
	s := New(Options{PublicHost: "abc.ngrok.app"}, http.NotFoundHandler(), nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, IncomingPath, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "<?xml"))
	require.Contains(t, body, `<Response><Connect><Stream url="wss://abc.ngrok.app/connection"`)
	require.Contains(t, body, `</Connect></Response>`)
}

func TestHealthAndConnectionRoutes(t *testing.T) {
	media := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := New(Options{}, media, nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + HealthPath)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "ok", string(b))

	resp, err = http.Get(srv.URL + ConnectionPath)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	closed := make(chan struct{})
	s := New(Options{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, http.NotFoundHandler(), nil,
		closerFunc(func() error { close(closed); return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	<-closed
}
