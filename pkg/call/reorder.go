package call

import (
	"github.com/rs/zerolog/log"
)

// Chunk is one synthesized piece of speech ready for the transport.
// Index is nil for asides, which bypass ordering.
type Chunk struct {
	Index       *int
	Interaction int
	Audio       string
	Text        string
}

// ChunkSender writes a chunk to the caller. It is invoked in playback order.
type ChunkSender func(Chunk)

// ReorderBuffer releases indexed chunks strictly by segment index, starting at 0.
// After Interrupt(n), chunks of interactions <= n are held until a newer
// interaction's chunk arrives, at which point they are discarded.
//
// ReorderBuffer is not safe for concurrent use; the session loop owns it.
type ReorderBuffer struct {
	send ChunkSender

	next    int
	pending map[int]Chunk
	skipped map[int]struct{}

	interruptedThrough int
	droppedThrough     int
}

func NewReorderBuffer(send ChunkSender) *ReorderBuffer {
	return &ReorderBuffer{
		send:               send,
		pending:            map[int]Chunk{},
		skipped:            map[int]struct{}{},
		interruptedThrough: -1,
		droppedThrough:     -1,
	}
}

// Submit accepts a synthesized chunk in any order.
func (b *ReorderBuffer) Submit(c Chunk) {
	if b == nil {
		return
	}
	if c.Index == nil {
		b.emit(c)
		return
	}
	idx := *c.Index
	if idx < b.next {
		log.Warn().Str("component", "call").Int("index", idx).Int("next", b.next).Msg("reorder: late chunk dropped")
		return
	}
	if c.Interaction <= b.droppedThrough {
		log.Debug().Str("component", "call").Int("index", idx).Int("interaction", c.Interaction).Msg("reorder: stale chunk dropped")
		b.skipped[idx] = struct{}{}
		b.drain()
		return
	}
	if c.Interaction > b.interruptedThrough && b.interruptedThrough > b.droppedThrough {
		b.supersede()
	}
	b.pending[idx] = c
	b.drain()
}

// Skip marks an index that will never produce audio so ordering can advance past it.
func (b *ReorderBuffer) Skip(index int) {
	if b == nil || index < b.next {
		return
	}
	delete(b.pending, index)
	b.skipped[index] = struct{}{}
	b.drain()
}

// Interrupt marks every interaction up to and including n as cut off by the caller.
func (b *ReorderBuffer) Interrupt(n int) {
	if b == nil || n <= b.interruptedThrough {
		return
	}
	b.interruptedThrough = n
}

// Next returns the index the buffer is waiting for.
func (b *ReorderBuffer) Next() int {
	if b == nil {
		return 0
	}
	return b.next
}

// Buffered returns the number of chunks waiting for earlier indices.
func (b *ReorderBuffer) Buffered() int {
	if b == nil {
		return 0
	}
	return len(b.pending)
}

func (b *ReorderBuffer) supersede() {
	b.droppedThrough = b.interruptedThrough
	dropped := 0
	for idx, c := range b.pending {
		if c.Interaction <= b.droppedThrough {
			delete(b.pending, idx)
			b.skipped[idx] = struct{}{}
			dropped++
		}
	}
	if dropped > 0 {
		log.Info().Str("component", "call").Int("dropped", dropped).Int("through_interaction", b.droppedThrough).Msg("reorder: discarded interrupted audio")
	}
}

func (b *ReorderBuffer) held(c Chunk) bool {
	return c.Interaction <= b.interruptedThrough && c.Interaction > b.droppedThrough
}

func (b *ReorderBuffer) drain() {
	for {
		if _, ok := b.skipped[b.next]; ok {
			delete(b.skipped, b.next)
			b.next++
			continue
		}
		c, ok := b.pending[b.next]
		if !ok || b.held(c) {
			return
		}
		delete(b.pending, b.next)
		b.next++
		b.emit(c)
	}
}

func (b *ReorderBuffer) emit(c Chunk) {
	if b.send != nil {
		b.send(c)
	}
}
