package call

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/go-go-golems/callgpt/pkg/call/protocol"
)

var ErrWriterClosed = errors.New("outbound writer closed")

// Outbound is the session's view of the transport.
type Outbound interface {
	// SendAudio queues a media frame followed by its mark.
	SendAudio(streamSid, payload, mark string) error
	// Clear asks the provider to drop buffered playback. It preempts queued audio.
	Clear(streamSid string) error
}

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type WriterConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	QueueSize    int
}

type outboundFrame struct {
	payloads [][]byte
	epoch    uint64
}

// Writer serializes all writes to one websocket. Clear frames travel on a
// priority lane, and audio queued before a clear is discarded unwritten.
type Writer struct {
	ws       wsWriter
	cfg      WriterConfig
	priority chan outboundFrame
	normal   chan outboundFrame
	epoch    atomic.Uint64
	done     chan struct{}
	closed   atomic.Bool
}

var _ Outbound = &Writer{}

func NewWriter(ws wsWriter, cfg WriterConfig) *Writer {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Writer{
		ws:       ws,
		cfg:      cfg,
		priority: make(chan outboundFrame, 8),
		normal:   make(chan outboundFrame, cfg.QueueSize),
		done:     make(chan struct{}),
	}
}

func (w *Writer) SendAudio(streamSid, payload, mark string) error {
	media, err := protocol.EncodeMedia(streamSid, payload)
	if err != nil {
		return errors.Wrap(err, "encode media")
	}
	m, err := protocol.EncodeMark(streamSid, mark)
	if err != nil {
		return errors.Wrap(err, "encode mark")
	}
	return w.enqueue(w.normal, outboundFrame{payloads: [][]byte{media, m}, epoch: w.epoch.Load()})
}

func (w *Writer) Clear(streamSid string) error {
	b, err := protocol.EncodeClear(streamSid)
	if err != nil {
		return errors.Wrap(err, "encode clear")
	}
	epoch := w.epoch.Add(1)
	return w.enqueue(w.priority, outboundFrame{payloads: [][]byte{b}, epoch: epoch})
}

func (w *Writer) enqueue(ch chan outboundFrame, f outboundFrame) error {
	if w == nil || w.closed.Load() {
		return ErrWriterClosed
	}
	select {
	case ch <- f:
		return nil
	case <-w.done:
		return ErrWriterClosed
	}
}

// Run writes queued frames until ctx is cancelled or a write fails.
func (w *Writer) Run(ctx context.Context) error {
	if w == nil || w.ws == nil {
		return nil
	}
	defer func() {
		w.closed.Store(true)
		close(w.done)
	}()

	pingTicker := time.NewTicker(w.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flushPriorityOnShutdown()
			_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.cfg.WriteTimeout))
			return nil
		default:
		}

		// priority first, always
		select {
		case f := <-w.priority:
			if err := w.writeFrame(f); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case <-pingTicker.C:
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(w.cfg.WriteTimeout)); err != nil {
				return errors.Wrap(err, "write ping")
			}
		case f := <-w.priority:
			if err := w.writeFrame(f); err != nil {
				return err
			}
		case f := <-w.normal:
			if f.epoch < w.epoch.Load() {
				continue
			}
			if err := w.writeFrame(f); err != nil {
				return err
			}
		}
	}
}

func (w *Writer) flushPriorityOnShutdown() {
	deadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(deadline); i++ {
		select {
		case f := <-w.priority:
			_ = w.writeFrame(f)
		default:
			return
		}
	}
}

func (w *Writer) writeFrame(f outboundFrame) error {
	deadline := time.Now().Add(w.cfg.WriteTimeout)
	for _, p := range f.payloads {
		if err := w.ws.SetWriteDeadline(deadline); err != nil {
			return errors.Wrap(err, "set write deadline")
		}
		if err := w.ws.WriteMessage(websocket.TextMessage, p); err != nil {
			return errors.Wrap(err, "write frame")
		}
	}
	return nil
}
