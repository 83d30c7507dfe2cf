package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"checklist/api/internal/mirror"
)

var (
	watchCategory    int64
	watchInteractive bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the checklist live",
	Long: `Keeps a local copy of the checklist and redraws it whenever the server
signals a change. With --category the items of that category are shown too.
With --interactive, commands read from stdin are applied to the local copy
at once and confirmed by the server in the background; type "help".`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int64Var(&watchCategory, "category", 0, "category id whose items to show")
	watchCmd.Flags().BoolVarP(&watchInteractive, "interactive", "i", false, "read edit commands from stdin")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	c, logger, err := newClient()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	m := mirror.New(c,
		mirror.WithLogger(logger),
		mirror.WithOnChange(func(view mirror.View) {
			fmt.Fprint(out, clearScreen+renderView(view))
		}),
		mirror.WithOnNotice(func(n mirror.Notice) {
			fmt.Fprintln(out, errorStyle.Render(n.Message()))
		}),
	)
	defer m.Close()

	ctx := cmd.Context()
	if err := m.Reconcile(ctx); err != nil {
		return err
	}
	if watchCategory != 0 {
		if err := m.Select(ctx, watchCategory); err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	signals := c.Subscribe(groupCtx)
	group.Go(func() error { return m.Run(groupCtx, signals) })
	if watchInteractive {
		group.Go(func() error { return readCommands(groupCtx, m, cmd.InOrStdin(), out) })
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
