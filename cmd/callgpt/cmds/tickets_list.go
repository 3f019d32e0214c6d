package cmds

import (
	"context"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"

	"github.com/go-go-golems/callgpt/pkg/escalation"
)

type TicketsListCommand struct {
	*cmds.CommandDescription
	flags *RootFlags
}

type TicketsListSettings struct {
	Status string `glazed:"status"`
}

func NewTicketsListCommand(flags *RootFlags) (*TicketsListCommand, error) {
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
		cmds.WithShort("List tickets, newest first"),
		cmds.WithLong("List supervisor help requests from the ticket store, newest first."),
		cmds.WithFlags(
			fields.New(
				"status",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Filter by status (pending, resolved, unresolved)"),
			),
		),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &TicketsListCommand{CommandDescription: desc, flags: flags}, nil
}

func (c *TicketsListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &TicketsListSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	return withStores(c.flags, func(st stores) error {
		return listTickets(ctx, st.tickets, s, gp)
	})
}

func listTickets(ctx context.Context, store escalation.Store, s *TicketsListSettings, gp middlewares.Processor) error {
	status, err := escalation.ParseStatus(s.Status)
	if err != nil {
		return err
	}
	tickets, err := store.List(ctx, status)
	if err != nil {
		return err
	}
	for _, t := range tickets {
		resolvedAt := ""
		if t.ResolvedAt != nil {
			resolvedAt = t.ResolvedAt.Format(time.RFC3339)
		}
		row := types.NewRow(
			types.MRP("id", t.ID),
			types.MRP("status", string(t.Status)),
			types.MRP("created_at", t.CreatedAt.Format(time.RFC3339)),
			types.MRP("call_sid", t.CallSid),
			types.MRP("question", t.Question),
			types.MRP("answer", t.Answer),
			types.MRP("resolved_at", resolvedAt),
		)
		if err := gp.AddRow(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &TicketsListCommand{}
