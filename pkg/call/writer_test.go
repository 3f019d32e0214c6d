package call

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeWS struct {
	mu       sync.Mutex
	frames   []map[string]any
	controls int
	failOn   int
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.frames)+1 == f.failOn {
		return errors.New("broken pipe")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	f.frames = append(f.frames, m)
	return nil
}

func (f *fakeWS) WriteControl(int, []byte, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls++
	return nil
}

func (f *fakeWS) Close() error { return nil }

func (f *fakeWS) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.frames {
		out = append(out, m["event"].(string))
	}
	return out
}

func TestWriterSendsMediaThenMark(t *testing.T) {
	ws := &fakeWS{}
	w := NewWriter(ws, WriterConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.NoError(t, w.SendAudio("MZ1", "AAAA", "m-1"))
	require.Eventually(t, func() bool { return len(ws.events()) == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"media", "mark"}, ws.events())

	ws.mu.Lock()
	require.Equal(t, "MZ1", ws.frames[0]["streamSid"])
	require.Equal(t, "m-1", ws.frames[1]["mark"].(map[string]any)["name"])
	ws.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
	require.ErrorIs(t, w.SendAudio("MZ1", "AAAA", "m-2"), ErrWriterClosed)
}

func TestWriterClearDiscardsQueuedAudio(t *testing.T) {
	ws := &fakeWS{}
	w := NewWriter(ws, WriterConfig{})

	// queued before the writer runs, then invalidated by the clear
	require.NoError(t, w.SendAudio("MZ1", "AAAA", "stale-1"))
	require.NoError(t, w.SendAudio("MZ1", "AAAA", "stale-2"))
	require.NoError(t, w.Clear("MZ1"))
	require.NoError(t, w.SendAudio("MZ1", "BBBB", "fresh"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(ws.events()) == 3 }, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"clear", "media", "mark"}, ws.events())
	ws.mu.Lock()
	require.Equal(t, "fresh", ws.frames[2]["mark"].(map[string]any)["name"])
	ws.mu.Unlock()
}

func TestWriterStopsOnWriteError(t *testing.T) {
	ws := &fakeWS{failOn: 1}
	w := NewWriter(ws, WriterConfig{})
	require.NoError(t, w.SendAudio("MZ1", "AAAA", "m"))
	err := w.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken pipe")
}
