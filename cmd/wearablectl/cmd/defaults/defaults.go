package defaults

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ocm.software/open-component-model/streaming/client"
	wctx "ocm.software/open-component-model/streaming/internal/context"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

const FlagTimeout = "timeout"

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Load the default wearables and report their state",
		Long: `Load the base body of every body shape the way a client does on start up
and list the assets substituted for failed wearables.`,
		Args:              cobra.NoArgs,
		RunE:              LoadDefaults,
		DisableAutoGenTag: true,
	}
	cmd.Flags().Duration(FlagTimeout, time.Minute, "time limit of the bootstrap")
	return cmd
}

func LoadDefaults(cmd *cobra.Command, _ []string) error {
	timeout, err := cmd.Flags().GetDuration(FlagTimeout)
	if err != nil {
		return err
	}
	cfg, logger := wctx.FromReader(cmd)
	c, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	eg, egctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.Run(egctx)
	})

	var state resolution.DefaultsState
	eg.Go(func() error {
		defer cancel()
		waitCtx, waitCancel := context.WithTimeout(egctx, timeout)
		defer waitCancel()
		var err error
		state, err = c.WaitForDefaults(waitCtx)
		if err != nil {
			return fmt.Errorf("default wearables did not settle: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(cmd.OutOrStdout())
	tw.SetTitle(fmt.Sprintf("default wearables: %s", state))
	tw.AppendHeader(table.Row{"Body Shape", "Category", "Asset", "Size"})
	for _, bs := range wearable.BodyShapes {
		for _, category := range []wearable.Category{wearable.CategoryBodyShape, wearable.CategoryHat} {
			slots, ok := c.Defaults.Default(bs, category)
			if !ok || slots.IsEmpty() || !slots.Results[0].Succeeded() {
				tw.AppendRow(table.Row{bs, category, "-", 0})
				continue
			}
			a := slots.Results[0].Asset()
			tw.AppendRow(table.Row{bs, category, a.Key, a.Size()})
		}
	}
	tw.Render()

	if state == resolution.DefaultsFailed {
		return fmt.Errorf("default wearables failed to load")
	}
	return nil
}
