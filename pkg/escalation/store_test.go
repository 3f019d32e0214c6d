package escalation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tickets.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStores(t *testing.T) {
	for name, mk := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk()

			_, err := s.Create(ctx, "  ", "CA")
			require.Error(t, err)

			a, err := s.Create(ctx, "Is there a warranty?", "CA1")
			require.NoError(t, err)
			require.Equal(t, StatusPending, a.Status)
			time.Sleep(2 * time.Millisecond)
			b, err := s.Create(ctx, "Do they fit small ears?", "CA2")
			require.NoError(t, err)

			got, err := s.Get(ctx, a.ID)
			require.NoError(t, err)
			require.Equal(t, "Is there a warranty?", got.Question)
			require.Equal(t, "CA1", got.CallSid)
			require.Nil(t, got.ResolvedAt)

			all, err := s.List(ctx, "")
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Equal(t, b.ID, all[0].ID)

			resolved, err := s.Resolve(ctx, a.ID, "One year.")
			require.NoError(t, err)
			require.Equal(t, StatusResolved, resolved.Status)
			require.Equal(t, "One year.", resolved.Answer)
			require.NotNil(t, resolved.ResolvedAt)

			marked, err := s.MarkUnresolved(ctx, a.ID)
			require.NoError(t, err)
			require.False(t, marked)
			got, err = s.Get(ctx, a.ID)
			require.NoError(t, err)
			require.Equal(t, StatusResolved, got.Status)

			marked, err = s.MarkUnresolved(ctx, b.ID)
			require.NoError(t, err)
			require.True(t, marked)
			un, err := s.List(ctx, StatusUnresolved)
			require.NoError(t, err)
			require.Len(t, un, 1)
			require.Equal(t, b.ID, un[0].ID)

			pending, err := s.List(ctx, StatusPending)
			require.NoError(t, err)
			require.Empty(t, pending)

			require.NoError(t, s.Delete(ctx, b.ID))
			_, err = s.Get(ctx, b.ID)
			require.True(t, errors.Is(err, ErrTicketNotFound))
			require.True(t, errors.Is(s.Delete(ctx, b.ID), ErrTicketNotFound))
			require.True(t, errors.Is(s.UpdateStatus(ctx, "missing", StatusResolved), ErrTicketNotFound))
			_, err = s.MarkUnresolved(ctx, "missing")
			require.True(t, errors.Is(err, ErrTicketNotFound))
			_, err = s.Resolve(ctx, "missing", "x")
			require.True(t, errors.Is(err, ErrTicketNotFound))
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("resolved")
	require.NoError(t, err)
	require.Equal(t, StatusResolved, s)
	s, err = ParseStatus("")
	require.NoError(t, err)
	require.Equal(t, Status(""), s)
	_, err = ParseStatus("closed")
	require.Error(t, err)
}
