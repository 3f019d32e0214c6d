package escalation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// pollingStore resolves (or deletes) its only ticket on the n-th Get.
// resolveAfter resolves it right after the n-th Get has returned pending.
type pollingStore struct {
	*MemoryStore
	mu           sync.Mutex
	gets         int
	resolveOn    int
	resolveAfter int
	deleteOn     int
}

func (s *pollingStore) Get(ctx context.Context, id string) (Ticket, error) {
	s.mu.Lock()
	s.gets++
	n := s.gets
	s.mu.Unlock()
	if n == s.resolveOn {
		if _, err := s.MemoryStore.Resolve(ctx, id, "yes, they are sweat resistant"); err != nil {
			return Ticket{}, err
		}
	}
	if n == s.deleteOn {
		if err := s.MemoryStore.Delete(ctx, id); err != nil {
			return Ticket{}, err
		}
	}
	t, err := s.MemoryStore.Get(ctx, id)
	if err == nil && n == s.resolveAfter {
		if _, err := s.MemoryStore.Resolve(ctx, id, "late answer"); err != nil {
			return Ticket{}, err
		}
	}
	return t, err
}

func (s *pollingStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

type countingSleeper struct {
	mu    sync.Mutex
	calls int
	total time.Duration
}

func (c *countingSleeper) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.total += d
	return ctx.Err()
}

type recordingNotifier struct {
	tickets []Ticket
}

func (r *recordingNotifier) Notify(_ context.Context, t Ticket) error {
	r.tickets = append(r.tickets, t)
	return nil
}

func TestWorkflow_ResolvedOnSeventhPoll(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore(), resolveOn: 7}
	sl := &countingSleeper{}
	notifier := &recordingNotifier{}
	w := NewWorkflow(store, notifier, WithSleeper(sl.sleep))

	out, err := w.Ask(context.Background(), "Are AirPods Pro sweat resistant?", "CA1")
	require.NoError(t, err)
	require.Equal(t, "The supervisor says: yes, they are sweat resistant", out)
	require.Equal(t, 7, store.Gets())
	require.Equal(t, 7, sl.calls)
	require.Equal(t, 7*DefaultPollInterval, sl.total)

	require.Len(t, notifier.tickets, 1)
	tickets, err := store.List(context.Background(), StatusResolved)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, "CA1", tickets[0].CallSid)
}

func TestWorkflow_TimeoutMarksUnresolved(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore()}
	sl := &countingSleeper{}
	w := NewWorkflow(store, nil, WithSleeper(sl.sleep))

	out, err := w.Ask(context.Background(), "What colour is the case?", "CA2")
	require.NoError(t, err)
	require.Equal(t, UnresolvedReply, out)
	require.Equal(t, 12, store.Gets())
	require.Equal(t, 12, sl.calls)

	tickets, err := store.List(context.Background(), StatusUnresolved)
	require.NoError(t, err)
	require.Len(t, tickets, 1)
}

func TestWorkflow_LateAnswerIsNotOverwritten(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore(), resolveAfter: DefaultMaxAttempts}
	sl := &countingSleeper{}
	w := NewWorkflow(store, nil, WithSleeper(sl.sleep))

	out, err := w.Ask(context.Background(), "Is there a student discount?", "CA3")
	require.NoError(t, err)
	require.Equal(t, "The supervisor says: late answer", out)
	require.Equal(t, DefaultMaxAttempts, sl.calls)

	tickets, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	require.Equal(t, StatusResolved, tickets[0].Status)
	require.Equal(t, "late answer", tickets[0].Answer)
}

func TestWorkflow_CustomBudget(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore()}
	sl := &countingSleeper{}
	w := NewWorkflow(store, nil, WithSleeper(sl.sleep), WithMaxAttempts(3), WithPollInterval(time.Second))

	_, err := w.Ask(context.Background(), "q", "CA")
	require.NoError(t, err)
	require.Equal(t, 3, store.Gets())
	require.Equal(t, 3*time.Second, sl.total)
}

func TestWorkflow_MissingTicket(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore(), deleteOn: 2}
	sl := &countingSleeper{}
	w := NewWorkflow(store, nil, WithSleeper(sl.sleep))

	_, err := w.Ask(context.Background(), "q", "CA")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTicketMissing))
	require.Equal(t, 2, store.Gets())
}

func TestWorkflow_CancelledCallStopsPolling(t *testing.T) {
	store := &pollingStore{MemoryStore: NewMemoryStore()}
	ctx, cancel := context.WithCancel(context.Background())
	w := NewWorkflow(store, nil, WithPollInterval(time.Hour))

	done := make(chan error, 1)
	go func() {
		_, err := w.Ask(ctx, "q", "CA")
		done <- err
	}()
	require.Eventually(t, func() bool {
		l, _ := store.List(context.Background(), StatusPending)
		return len(l) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Ask did not return after cancellation")
	}
	require.Zero(t, store.Gets())
}

func TestResolveFeedsLearner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tk, err := store.Create(ctx, "Do they come in red?", "CA")
	require.NoError(t, err)

	var learned [][2]string
	learner := func(_ context.Context, q, a string) error {
		learned = append(learned, [2]string{q, a})
		return nil
	}
	got, err := Resolve(ctx, store, learner, tk.ID, "Only white.")
	require.NoError(t, err)
	require.Equal(t, StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)
	require.Equal(t, [][2]string{{"Do they come in red?", "Only white."}}, learned)

	_, err = Resolve(ctx, store, learner, "nope", "x")
	require.True(t, errors.Is(err, ErrTicketNotFound))
}

func TestPublisherNotifier(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, watermill.NopLogger{})
	defer func() { _ = ps.Close() }()

	msgs, err := ps.Subscribe(context.Background(), "supervisor")
	require.NoError(t, err)

	n := NewPublisherNotifier(ps, "supervisor")
	require.NoError(t, n.Notify(context.Background(), Ticket{ID: "t1", CallSid: "CA", Question: "q?"}))

	select {
	case m := <-msgs:
		var got Notification
		require.NoError(t, json.Unmarshal(m.Payload, &got))
		require.Equal(t, "t1", got.TicketID)
		require.Equal(t, "q?", got.Question)
		require.Equal(t, "t1", m.Metadata.Get("ticket_id"))
		require.NoError(t, LogNotification(m))
		m.Ack()
	case <-time.After(time.Second):
		t.Fatal("no notification published")
	}
}
