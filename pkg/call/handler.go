package call

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/callgpt/pkg/call/protocol"
)

// SessionFactory builds the session for a freshly upgraded connection.
type SessionFactory func(out Outbound) *Session

// Handler upgrades media-stream connections and runs one Session per socket.
type Handler struct {
	upgrader   websocket.Upgrader
	newSession SessionFactory
	writerCfg  WriterConfig
}

func NewHandler(factory SessionFactory, writerCfg WriterConfig) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// the provider connects server-to-server, there is no browser origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		newSession: factory,
		writerCfg:  writerCfg,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("component", "call").Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	log.Info().Str("component", "call").Str("remote", r.RemoteAddr).Msg("media stream connected")

	if err := h.serve(r.Context(), conn); err != nil {
		log.Warn().Err(err).Str("component", "call").Msg("media stream closed with error")
	}
}

func (h *Handler) serve(parent context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	writer := NewWriter(conn, h.writerCfg)
	sess := h.newSession(writer)

	var eg errgroup.Group
	eg.Go(func() error {
		defer cancel()
		return writer.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		return sess.Run(ctx)
	})
	eg.Go(func() error {
		<-ctx.Done()
		// unblocks ReadMessage below
		_ = conn.Close()
		return nil
	})

	readErr := readLoop(ctx, conn, sess)
	cancel()
	if err := eg.Wait(); err != nil {
		return err
	}
	return readErr
}

func readLoop(ctx context.Context, conn *websocket.Conn, sess *Session) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return errors.Wrap(err, "read media stream")
		}
		ev, err := protocol.Decode(data)
		if err != nil {
			log.Debug().Err(err).Str("component", "call").Msg("dropping malformed frame")
			continue
		}
		sess.Deliver(ev)
	}
}
