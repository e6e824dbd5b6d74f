package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/yaml"

	"ocm.software/open-component-model/streaming/client"
	wctx "ocm.software/open-component-model/streaming/internal/context"
	"ocm.software/open-component-model/streaming/internal/flags/enum"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

const (
	FlagBodyShape   = "body-shape"
	FlagSource      = "source"
	FlagFallback    = "fallback-to-defaults"
	FlagForceRender = "force-render"
	FlagTimeout     = "timeout"
	FlagOutput      = "output"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve {pointer}...",
		Short: "Resolve an outfit of wearable pointers",
		Args:  cobra.MinimumNArgs(1),
		Long: `Resolve an outfit of wearable pointers into renderable assets.

Wearables that fail to load are replaced with the default of their category
when --fallback-to-defaults is set. Categories hidden by other wearables of the
outfit are listed but not loaded.`,
		Example: strings.TrimSpace(`
resolve urn:decentraland:off-chain:base-avatars:eyes_00 urn:decentraland:off-chain:base-avatars:f_sweater
resolve --body-shape female --source web -o yaml urn:decentraland:matic:collections-v2:0xabc:0
`),
		RunE:              ResolveOutfit,
		DisableAutoGenTag: true,
	}

	enum.Var(cmd.Flags(), FlagBodyShape, []string{"male", "female"}, "body shape to resolve for")
	cmd.Flags().StringSlice(FlagSource, []string{"embedded", "web"}, "permitted content sources")
	cmd.Flags().Bool(FlagFallback, true, "substitute defaults for wearables that fail to load")
	cmd.Flags().StringSlice(FlagForceRender, nil, "categories rendered even when hidden")
	cmd.Flags().Duration(FlagTimeout, time.Minute, "time limit of the resolution")
	enum.VarP(cmd.Flags(), FlagOutput, "o", []string{"table", "json", "yaml"}, "output format")
	return cmd
}

func ResolveOutfit(cmd *cobra.Command, args []string) error {
	req, err := requestFromFlags(cmd, args)
	if err != nil {
		return err
	}
	output, err := enum.Get(cmd.Flags(), FlagOutput)
	if err != nil {
		return err
	}
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

	var outcome *resolution.Outcome
	eg.Go(func() error {
		defer cancel()
		rctx, rcancel := context.WithTimeout(egctx, timeout)
		defer rcancel()
		var err error
		outcome, err = c.Resolve(rctx, req)
		if err != nil {
			return fmt.Errorf("failed to resolve outfit: %w", err)
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return err
	}
	defer outcome.Release()

	return Render(cmd.OutOrStdout(), output, outcome)
}

func requestFromFlags(cmd *cobra.Command, pointers []string) (resolution.BatchRequest, error) {
	name, err := enum.Get(cmd.Flags(), FlagBodyShape)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	bs, err := wearable.ParseBodyShape(name)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	names, err := cmd.Flags().GetStringSlice(FlagSource)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	sources, err := wearable.ParseSources(names)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	if sources == 0 {
		return resolution.BatchRequest{}, errors.New("at least one source is required")
	}
	fallback, err := cmd.Flags().GetBool(FlagFallback)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	forced, err := cmd.Flags().GetStringSlice(FlagForceRender)
	if err != nil {
		return resolution.BatchRequest{}, err
	}
	req := resolution.BatchRequest{
		Pointers:           pointers,
		BodyShape:          bs,
		Sources:            sources,
		FallbackToDefaults: fallback,
	}
	for _, c := range forced {
		req.ForceRender = append(req.ForceRender, wearable.Category(strings.ToLower(c)))
	}
	return req, nil
}

// ItemView is the printable form of a resolved item.
type ItemView struct {
	URN      string      `json:"urn"`
	Category string      `json:"category"`
	Assets   []AssetView `json:"assets"`
}

type AssetView struct {
	Slot  int    `json:"slot"`
	Key   string `json:"key,omitempty"`
	Kind  string `json:"kind,omitempty"`
	Size  int    `json:"size"`
	Error string `json:"error,omitempty"`
}

type OutcomeView struct {
	Batch     string     `json:"batch"`
	BodyShape string     `json:"bodyShape"`
	Items     []ItemView `json:"items"`
	Hidden    []string   `json:"hidden,omitempty"`
}

func View(o *resolution.Outcome) OutcomeView {
	view := OutcomeView{Batch: o.BatchID.String(), BodyShape: o.BodyShape.String(), Items: []ItemView{}}
	for _, item := range o.Items {
		iv := ItemView{URN: string(item.URN), Assets: []AssetView{}}
		if item.Definition != nil {
			iv.Category = string(item.Definition.Category())
		}
		for slot, result := range item.Assets.Results {
			iv.Assets = append(iv.Assets, assetView(slot, result))
		}
		view.Items = append(view.Items, iv)
	}
	for _, c := range o.Hidden {
		view.Hidden = append(view.Hidden, string(c))
	}
	return view
}

func assetView(slot int, result streamable.Result[*wearable.RenderableAsset]) AssetView {
	av := AssetView{Slot: slot}
	if !result.Succeeded() {
		av.Error = result.Err().Error()
		return av
	}
	if a := result.Asset(); a != nil {
		av.Key = a.Key
		av.Kind = string(a.Kind)
		av.Size = a.Size()
	}
	return av
}

// Render writes o in the given format.
func Render(w io.Writer, format string, o *resolution.Outcome) error {
	view := View(o)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	case "yaml":
		data, err := yaml.Marshal(view)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "table":
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetTitle(fmt.Sprintf("batch %s (%s)", view.Batch, view.BodyShape))
		tw.AppendHeader(table.Row{"URN", "Category", "Slot", "Asset", "Kind", "Size", "Error"})
		for _, item := range view.Items {
			for _, a := range item.Assets {
				tw.AppendRow(table.Row{item.URN, item.Category, a.Slot, a.Key, a.Kind, a.Size, a.Error})
			}
		}
		if len(view.Hidden) > 0 {
			tw.AppendFooter(table.Row{"hidden", strings.Join(view.Hidden, ", ")})
		}
		tw.Render()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
