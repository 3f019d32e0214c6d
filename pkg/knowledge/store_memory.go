package knowledge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

var _ Store = &MemoryStore{}

func NewMemoryStore(seed ...Entry) *MemoryStore {
	return &MemoryStore{entries: append([]Entry(nil), seed...)}
}

func (s *MemoryStore) List(context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry(nil), s.entries...), nil
}

func (s *MemoryStore) Add(_ context.Context, question, answer string) (Entry, error) {
	q, a, err := validate(question, answer)
	if err != nil {
		return Entry{}, err
	}
	now := time.Now()
	e := Entry{ID: uuid.NewString(), Question: q, Answer: a, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return e, nil
}

func (s *MemoryStore) Update(_ context.Context, id, question, answer string) (Entry, error) {
	q, a, err := validate(question, answer)
	if err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Question = q
			s.entries[i].Answer = a
			s.entries[i].UpdatedAt = time.Now()
			return s.entries[i], nil
		}
	}
	return Entry{}, errors.Wrap(ErrEntryNotFound, id)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return errors.Wrap(ErrEntryNotFound, id)
}

func (s *MemoryStore) Close() error { return nil }
