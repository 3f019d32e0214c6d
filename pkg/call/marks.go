package call

import (
	"sync"

	"github.com/google/uuid"
)

// MarkSet tracks playback marks that were sent but not yet acknowledged.
type MarkSet struct {
	mu    sync.Mutex
	marks map[string]struct{}
}

func NewMarkSet() *MarkSet {
	return &MarkSet{marks: map[string]struct{}{}}
}

// New registers and returns a fresh label.
func (m *MarkSet) New() string {
	label := uuid.NewString()
	m.Add(label)
	return label
}

func (m *MarkSet) Add(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks[label] = struct{}{}
}

// Ack removes a label; unknown labels are ignored.
func (m *MarkSet) Ack(label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, label)
}

func (m *MarkSet) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marks = map[string]struct{}{}
}

func (m *MarkSet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.marks)
}
