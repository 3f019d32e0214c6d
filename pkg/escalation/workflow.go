package escalation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 12

	UnresolvedReply = "I'm sorry, but I couldn't get an answer from my supervisor at this time. Is there anything else I can help you with?"
)

// Notifier tells a supervisor that a ticket is waiting.
type Notifier interface {
	Notify(ctx context.Context, t Ticket) error
}

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Workflow struct {
	store       Store
	notifier    Notifier
	interval    time.Duration
	maxAttempts int
	sleep       Sleeper
}

type Option func(*Workflow)

func WithPollInterval(d time.Duration) Option {
	return func(w *Workflow) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(w *Workflow) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(w *Workflow) {
		if s != nil {
			w.sleep = s
		}
	}
}

func NewWorkflow(store Store, notifier Notifier, opts ...Option) *Workflow {
	w := &Workflow{
		store:       store,
		notifier:    notifier,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Ask files a ticket and polls until it is resolved or the attempt budget
// runs out. A resolved ticket yields the supervisor's answer; an exhausted
// budget marks a still-pending ticket unresolved and yields UnresolvedReply.
func (w *Workflow) Ask(ctx context.Context, question, callSid string) (string, error) {
	if w == nil || w.store == nil {
		return "", errors.New("escalation workflow not initialized")
	}
	t, err := w.store.Create(ctx, question, callSid)
	if err != nil {
		return "", errors.Wrap(err, "create ticket")
	}
	logger := log.With().Str("component", "escalation").Str("ticket", t.ID).Str("call_sid", callSid).Logger()
	logger.Info().Str("question", t.Question).Msg("created help request")

	if w.notifier != nil {
		if err := w.notifier.Notify(ctx, t); err != nil {
			logger.Warn().Err(err).Msg("supervisor notification failed")
		}
	}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err := w.sleep(ctx, w.interval); err != nil {
			return "", err
		}
		cur, err := w.store.Get(ctx, t.ID)
		if errors.Is(err, ErrTicketNotFound) {
			return "", errors.Wrap(ErrTicketMissing, t.ID)
		}
		if err != nil {
			return "", errors.Wrap(err, "poll ticket")
		}
		if cur.Status == StatusResolved {
			logger.Info().Int("attempt", attempt).Msg("help request answered")
			return "The supervisor says: " + cur.Answer, nil
		}
		logger.Debug().Int("attempt", attempt).Int("max_attempts", w.maxAttempts).Msg("polling for answer")
	}

	marked, err := w.store.MarkUnresolved(ctx, t.ID)
	if err != nil {
		logger.Error().Err(err).Msg("mark ticket unresolved")
	}
	if err == nil && !marked {
		// answered between the last poll and the timeout
		cur, err := w.store.Get(ctx, t.ID)
		if err == nil && cur.Status == StatusResolved {
			logger.Info().Msg("help request answered after last poll")
			return "The supervisor says: " + cur.Answer, nil
		}
	}
	logger.Info().Msg("help request unresolved")
	return UnresolvedReply, nil
}

// Learner records a supervisor answer for future calls.
type Learner func(ctx context.Context, question, answer string) error

// Resolve answers a ticket and, when learner is set, records the pair so
// later sessions start with it in their prompt.
func Resolve(ctx context.Context, store Store, learner Learner, id, answer string) (Ticket, error) {
	if answer == "" {
		return Ticket{}, errors.New("empty answer")
	}
	t, err := store.Resolve(ctx, id, answer)
	if err != nil {
		return Ticket{}, err
	}
	if learner != nil {
		if err := learner(ctx, t.Question, t.Answer); err != nil {
			return t, errors.Wrap(err, "record answer in knowledge base")
		}
	}
	return t, nil
}
