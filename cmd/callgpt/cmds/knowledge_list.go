package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"

	"github.com/go-go-golems/callgpt/pkg/knowledge"
)

type KnowledgeListCommand struct {
	*cmds.CommandDescription
	flags *RootFlags
}

func NewKnowledgeListCommand(flags *RootFlags) (*KnowledgeListCommand, error) {
	glazedLayer, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsLayer, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List knowledge entries, oldest first"),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &KnowledgeListCommand{CommandDescription: desc, flags: flags}, nil
}

func (c *KnowledgeListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *values.Values,
	gp middlewares.Processor,
) error {
	return withStores(c.flags, func(st stores) error {
		return listKnowledge(ctx, st.knowledge, gp)
	})
}

func listKnowledge(ctx context.Context, store knowledge.Store, gp middlewares.Processor) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		row := types.NewRow(
			types.MRP("id", e.ID),
			types.MRP("question", e.Question),
			types.MRP("answer", e.Answer),
			types.MRP("updated_at", e.UpdatedAt.Format(time.RFC3339)),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &KnowledgeListCommand{}
