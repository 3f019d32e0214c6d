package call

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/pkg/errors"

	"github.com/go-go-golems/callgpt/pkg/voice/stt"
)

type fakeStream struct {
	mu      sync.Mutex
	audio   [][]byte
	results chan stt.Result
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan stt.Result, 16)}
}

func (f *fakeStream) SendAudio(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, audio)
	return nil
}

func (f *fakeStream) Results() <-chan stt.Result { return f.results }

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStream) received() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

type fakeTranscriber struct {
	stream *fakeStream
	err    error
}

func (f *fakeTranscriber) Open(context.Context) (stt.Stream, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

// fakeSynth returns the text itself as audio. Texts with a gate wait for it.
type fakeSynth struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	fail  map[string]bool
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{gates: map[string]chan struct{}{}, fail: map[string]bool{}}
}

func (f *fakeSynth) gate(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[text] = ch
	return ch
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	gate, fail := f.gates[text], f.fail[text]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("synthesis unavailable")
	}
	return []byte(text), nil
}

type sentFrame struct {
	kind string
	text string
	mark string
}

type fakeOutbound struct {
	mu     sync.Mutex
	frames []sentFrame
}

func (f *fakeOutbound) SendAudio(_, payload, mark string) error {
	audio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{kind: "media", text: string(audio), mark: mark})
	return nil
}

func (f *fakeOutbound) Clear(string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{kind: "clear"})
	return nil
}

func (f *fakeOutbound) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentFrame(nil), f.frames...)
}

func (f *fakeOutbound) texts() []string {
	var out []string
	for _, fr := range f.sent() {
		if fr.kind == "media" {
			out = append(out, fr.text)
		} else {
			out = append(out, "<"+fr.kind+">")
		}
	}
	return out
}

func (f *fakeOutbound) has(text string) bool {
	for _, t := range f.texts() {
		if t == text {
			return true
		}
	}
	return false
}
