// Package knowledge stores supervisor-approved question/answer pairs that are
// folded into each new call's system prompt.
package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrEntryNotFound = errors.New("knowledge entry not found")

type Entry struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store lists entries oldest first.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Add(ctx context.Context, question, answer string) (Entry, error)
	Update(ctx context.Context, id, question, answer string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Snapshot is an immutable view of the knowledge base taken at one moment.
type Snapshot struct {
	entries []Entry
}

func NewSnapshot(entries []Entry) Snapshot {
	return Snapshot{entries: append([]Entry(nil), entries...)}
}

// Load reads the store once.
func Load(ctx context.Context, s Store) (Snapshot, error) {
	if s == nil {
		return Snapshot{}, nil
	}
	entries, err := s.List(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "load knowledge snapshot")
	}
	return NewSnapshot(entries), nil
}

func (s Snapshot) Len() int { return len(s.entries) }

func (s Snapshot) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// PromptLines renders entries as "i: Question: q | Answer: a", one per line.
func (s Snapshot) PromptLines() string {
	lines := make([]string, 0, len(s.entries))
	for i, e := range s.entries {
		lines = append(lines, fmt.Sprintf("%d: Question: %s | Answer: %s", i, e.Question, e.Answer))
	}
	return strings.Join(lines, "\n")
}

func validate(question, answer string) (string, string, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return "", "", errors.New("knowledge entry needs a question and an answer")
	}
	return question, answer, nil
}
