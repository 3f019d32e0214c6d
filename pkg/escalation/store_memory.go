package escalation

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type MemoryStore struct {
	mu      sync.RWMutex
	tickets map[string]Ticket
	now     func() time.Time
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tickets: map[string]Ticket{}, now: time.Now}
}

func (s *MemoryStore) Create(_ context.Context, question, callSid string) (Ticket, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Ticket{}, errors.New("memory ticket store: empty question")
	}
	now := s.now()
	t := Ticket{
		ID:        uuid.NewString(),
		Question:  question,
		CallSid:   callSid,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[t.ID] = t
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, errors.Wrap(ErrTicketNotFound, id)
	}
	return t, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id, answer string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return Ticket{}, errors.Wrap(ErrTicketNotFound, id)
	}
	now := s.now()
	t.Status = StatusResolved
	t.Answer = answer
	t.UpdatedAt = now
	t.ResolvedAt = &now
	s.tickets[id] = t
	return t, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return errors.Wrap(ErrTicketNotFound, id)
	}
	t.Status = status
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return nil
}

func (s *MemoryStore) MarkUnresolved(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return false, errors.Wrap(ErrTicketNotFound, id)
	}
	if t.Status != StatusPending {
		return false, nil
	}
	t.Status = StatusUnresolved
	t.UpdatedAt = s.now()
	s.tickets[id] = t
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return errors.Wrap(ErrTicketNotFound, id)
	}
	delete(s.tickets, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, status Status) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
