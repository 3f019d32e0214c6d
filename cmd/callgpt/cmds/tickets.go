package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/callgpt/pkg/escalation"
	"github.com/go-go-golems/callgpt/pkg/knowledge"
)

func NewTicketsCommand(flags *RootFlags) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Inspect and answer supervisor help requests",
	}
	listCmd, err := NewTicketsListCommand(flags)
	if err != nil {
		return nil, err
	}
	cobraListCmd, err := cli.BuildCobraCommand(listCmd)
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(cobraListCmd, newTicketsResolveCommand(flags), newTicketsDeleteCommand(flags))
	return cmd, nil
}

func withStores(flags *RootFlags, fn func(st stores) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if err := requirePersistentStore(cfg); err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(st)
}

func newTicketsResolveCommand(flags *RootFlags) *cobra.Command {
	var noLearn bool
	cmd := &cobra.Command{
		Use:   "resolve <id> <answer>",
		Short: "Answer a ticket and add the answer to the knowledge base",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(flags, func(st stores) error {
				var learner escalation.Learner
				if !noLearn {
					learner = learnInto(st.knowledge)
				}
				t, err := escalation.Resolve(cmd.Context(), st.tickets, learner, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", t.ID)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&noLearn, "no-learn", false, "do not record the answer in the knowledge base")
	return cmd
}

func newTicketsDeleteCommand(flags *RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a ticket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(flags, func(st stores) error {
				if err := st.tickets.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}
}

func learnInto(kb knowledge.Store) escalation.Learner {
	return func(ctx context.Context, question, answer string) error {
		_, err := kb.Add(ctx, question, answer)
		return err
	}
}
