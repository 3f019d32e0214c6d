// Package escalation routes questions the agent cannot answer to a human
// supervisor and waits a bounded time for the reply.
package escalation

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusResolved   Status = "resolved"
	StatusUnresolved Status = "unresolved"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusResolved, StatusUnresolved:
		return Status(s), nil
	case "":
		return "", nil
	}
	return "", errors.Errorf("unknown ticket status %q", s)
}

var (
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrTicketMissing is returned by Ask when the ticket vanished while polling.
	ErrTicketMissing = errors.New("ticket disappeared while waiting for an answer")
)

type Ticket struct {
	ID         string     `json:"id"`
	Question   string     `json:"question"`
	CallSid    string     `json:"call_sid"`
	Status     Status     `json:"status"`
	Answer     string     `json:"answer,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Store persists tickets. List with an empty status returns every ticket,
// newest first.
type Store interface {
	Create(ctx context.Context, question, callSid string) (Ticket, error)
	Get(ctx context.Context, id string) (Ticket, error)
	Resolve(ctx context.Context, id, answer string) (Ticket, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// MarkUnresolved moves a pending ticket to unresolved. It reports false
	// when the ticket exists but is no longer pending.
	MarkUnresolved(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status Status) ([]Ticket, error)
	Close() error
}
