package call

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/callgpt/pkg/voice/stt"
)

func TestRelaySplitsPartialsAndFinals(t *testing.T) {
	stream := newFakeStream()
	r := NewRelay(stream, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	r.Send(base64.StdEncoding.EncodeToString([]byte{0xff, 0x7f}))
	r.Send("not base64!!")
	require.Eventually(t, func() bool { return stream.received() == 1 }, time.Second, 5*time.Millisecond)

	stream.results <- stt.Result{Text: "I want"}
	stream.results <- stt.Result{Text: "I want airpods", Final: true}

	require.Equal(t, "I want", <-r.Partials())
	require.Equal(t, "I want airpods", <-r.Finals())

	close(stream.results)
	_, ok := <-r.Finals()
	require.False(t, ok)
	require.NoError(t, r.Close())
	require.True(t, stream.closed)
}

func TestRelaySendDropsOldestWhenFull(t *testing.T) {
	r := NewRelay(newFakeStream(), 2)
	for i := byte(1); i <= 3; i++ {
		r.Send(base64.StdEncoding.EncodeToString([]byte{i}))
	}
	require.Equal(t, int64(1), r.dropped.Load())
	require.Equal(t, []byte{2}, <-r.queue)
	require.Equal(t, []byte{3}, <-r.queue)
}
