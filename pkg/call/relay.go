package call

import (
	"context"
	"encoding/base64"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/callgpt/pkg/voice/stt"
)

// Relay forwards caller audio to a transcription stream and splits its
// results into partial and final utterances. It makes no decisions about them.
type Relay struct {
	stream   stt.Stream
	queue    chan []byte
	partials chan string
	finals   chan string
	dropped  atomic.Int64
}

func NewRelay(stream stt.Stream, queueSize int) *Relay {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Relay{
		stream:   stream,
		queue:    make(chan []byte, queueSize),
		partials: make(chan string, 16),
		finals:   make(chan string, 16),
	}
}

func (r *Relay) Partials() <-chan string { return r.partials }
func (r *Relay) Finals() <-chan string   { return r.finals }

// Send queues one base64 media payload. It never blocks; when the queue is
// full the oldest frame is dropped.
func (r *Relay) Send(payload string) {
	if r == nil {
		return
	}
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		log.Debug().Err(err).Str("component", "call").Msg("relay: undecodable media payload")
		return
	}
	for {
		select {
		case r.queue <- audio:
			return
		default:
		}
		select {
		case <-r.queue:
			if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warn().Str("component", "call").Int64("dropped", n).Msg("relay: audio queue full, dropping oldest frame")
			}
		default:
		}
	}
}

// Run pumps audio and results until ctx is done or the transcription stream ends.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.partials)
	defer close(r.finals)
	go r.pump(ctx)

	results := r.stream.Results()
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			if res.Final {
				select {
				case r.finals <- res.Text:
				case <-ctx.Done():
					return
				}
				continue
			}
			select {
			case r.partials <- res.Text:
			default:
			}
		}
	}
}

func (r *Relay) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case audio := <-r.queue:
			if err := r.stream.SendAudio(audio); err != nil {
				log.Warn().Err(err).Str("component", "call").Msg("relay: send audio failed")
			}
		}
	}
}

func (r *Relay) Close() error {
	if r == nil || r.stream == nil {
		return nil
	}
	return r.stream.Close()
}
