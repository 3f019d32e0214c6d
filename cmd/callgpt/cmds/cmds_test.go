package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/callgpt/pkg/escalation"
)

func writeConfig(t *testing.T, dsn string) *RootFlags {
	t.Helper()
	path := filepath.Join(t.TempDir(), "callgpt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  dsn: "+dsn+"\n"), 0o644))
	return &RootFlags{ConfigPath: path}
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSqliteDSN(t *testing.T) {
	require.Equal(t, "a.db?_busy_timeout=5000", sqliteDSN("a.db"))
	require.Equal(t, "file:a.db?mode=rwc&_busy_timeout=5000", sqliteDSN("file:a.db?mode=rwc"))
	require.Equal(t, "a.db?_busy_timeout=10", sqliteDSN("a.db?_busy_timeout=10"))
}

type rowCollector struct {
	rows []types.Row
}

func (c *rowCollector) AddRow(_ context.Context, row types.Row) error {
	c.rows = append(c.rows, row)
	return nil
}

func (c *rowCollector) Close(_ context.Context) error {
	return nil
}

func (c *rowCollector) column(name string) []any {
	var out []any
	for _, r := range c.rows {
		v, _ := r.Get(name)
		out = append(out, v)
	}
	return out
}

func ticketsCommand(t *testing.T, flags *RootFlags) *cobra.Command {
	t.Helper()
	cmd, err := NewTicketsCommand(flags)
	require.NoError(t, err)
	return cmd
}

func knowledgeCommand(t *testing.T, flags *RootFlags) *cobra.Command {
	t.Helper()
	cmd, err := NewKnowledgeCommand(flags)
	require.NoError(t, err)
	return cmd
}

func listedTickets(t *testing.T, flags *RootFlags, status string) *rowCollector {
	t.Helper()
	gp := &rowCollector{}
	require.NoError(t, withStores(flags, func(st stores) error {
		return listTickets(context.Background(), st.tickets, &TicketsListSettings{Status: status}, gp)
	}))
	return gp
}

func listedKnowledge(t *testing.T, flags *RootFlags) *rowCollector {
	t.Helper()
	gp := &rowCollector{}
	require.NoError(t, withStores(flags, func(st stores) error {
		return listKnowledge(context.Background(), st.knowledge, gp)
	}))
	return gp
}

func TestResolveTicketFeedsKnowledge(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "callgpt.db")
	flags := writeConfig(t, dsn)

	store, err := escalation.NewSQLiteStore(sqliteDSN(dsn))
	require.NoError(t, err)
	ticket, err := store.Create(context.Background(), "Do the Max fold?", "CA1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	pending := listedTickets(t, flags, "pending")
	require.Equal(t, []any{ticket.ID}, pending.column("id"))
	require.Equal(t, []any{"Do the Max fold?"}, pending.column("question"))
	require.Equal(t, []any{"pending"}, pending.column("status"))

	out, err := run(t, ticketsCommand(t, flags), "resolve", ticket.ID, "Yes, flat.")
	require.NoError(t, err)
	require.Contains(t, out, "resolved "+ticket.ID)

	kb := listedKnowledge(t, flags)
	require.Equal(t, []any{"Do the Max fold?"}, kb.column("question"))
	require.Equal(t, []any{"Yes, flat."}, kb.column("answer"))

	require.Empty(t, listedTickets(t, flags, "pending").rows)
	resolved := listedTickets(t, flags, "resolved")
	require.Equal(t, []any{"Yes, flat."}, resolved.column("answer"))
	require.NotEqual(t, []any{""}, resolved.column("resolved_at"))

	_, err = run(t, ticketsCommand(t, flags), "delete", ticket.ID)
	require.NoError(t, err)
	_, err = run(t, ticketsCommand(t, flags), "delete", ticket.ID)
	require.ErrorIs(t, err, escalation.ErrTicketNotFound)
}

func TestKnowledgeAdd(t *testing.T) {
	flags := writeConfig(t, filepath.Join(t.TempDir(), "kb.db"))

	out, err := run(t, knowledgeCommand(t, flags), "add", "Warranty?", "One year.")
	require.NoError(t, err)
	require.Contains(t, out, "added ")

	kb := listedKnowledge(t, flags)
	require.Equal(t, []any{"Warranty?"}, kb.column("question"))
}

func TestListCommandsAreGlazed(t *testing.T) {
	flags := &RootFlags{}
	tl, err := NewTicketsListCommand(flags)
	require.NoError(t, err)
	require.Equal(t, "list", tl.Name)
	kl, err := NewKnowledgeListCommand(flags)
	require.NoError(t, err)
	require.Equal(t, "list", kl.Name)

	for _, cmd := range []*cobra.Command{ticketsCommand(t, flags), knowledgeCommand(t, flags)} {
		list, _, err := cmd.Find([]string{"list"})
		require.NoError(t, err)
		require.NotNil(t, list.Flags().Lookup("output"))
		require.Nil(t, list.Flags().Lookup("json"))
	}
}

func TestAdminCommandsNeedSqlite(t *testing.T) {
	flags := writeConfig(t, `""`)
	_, err := run(t, ticketsCommand(t, flags), "resolve", "id", "answer")
	require.Error(t, err)
	require.Contains(t, err.Error(), "store.dsn")
}

func TestListRejectsUnknownStatus(t *testing.T) {
	flags := writeConfig(t, filepath.Join(t.TempDir(), "x.db"))
	err := withStores(flags, func(st stores) error {
		return listTickets(context.Background(), st.tickets, &TicketsListSettings{Status: "open"}, &rowCollector{})
	})
	require.Error(t, err)
}
