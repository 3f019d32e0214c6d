package cmds

import (
	"fmt"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/spf13/cobra"
)

func NewKnowledgeCommand(flags *RootFlags) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the answers folded into each call's prompt",
	}
	listCmd, err := NewKnowledgeListCommand(flags)
	if err != nil {
		return nil, err
	}
	cobraListCmd, err := cli.BuildCobraCommand(listCmd)
	if err != nil {
		return nil, err
	}
	cmd.AddCommand(cobraListCmd, newKnowledgeAddCommand(flags))
	return cmd, nil
}

func newKnowledgeAddCommand(flags *RootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "add <question> <answer>",
		Short: "Add a question and answer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(flags, func(st stores) error {
				e, err := st.knowledge.Add(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", e.ID)
				return err
			})
		},
	}
}
