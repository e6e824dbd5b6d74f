package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"ocm.software/open-component-model/streaming/cmd/wearablectl/cmd/defaults"
	"ocm.software/open-component-model/streaming/cmd/wearablectl/cmd/resolve"
	"ocm.software/open-component-model/streaming/cmd/wearablectl/cmd/version"
	"ocm.software/open-component-model/streaming/config"
	wctx "ocm.software/open-component-model/streaming/internal/context"
	"ocm.software/open-component-model/streaming/internal/log"
)

const FlagConfig = "config"

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := New().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wearablectl [sub-command]",
		Short: "Resolve avatar wearables into renderable assets",
		Long: `wearablectl resolves outfits of wearable pointers against the content
  servers and the embedded base wearables, the same way an avatar renderer
  streams them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := log.GetBaseLogger(cmd)
			if err != nil {
				return fmt.Errorf("could not retrieve logger: %w", err)
			}
			slog.SetDefault(logger)

			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("could not retrieve configuration: %w", err)
			}
			wctx.Register(cmd, cfg, logr.FromSlogHandler(logger.Handler()))
			return nil
		},
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}

	cmd.PersistentFlags().String(FlagConfig, "", "path to a configuration file (yaml or json)")
	log.RegisterLoggingFlags(cmd)

	cmd.AddCommand(
		resolve.New(),
		defaults.New(),
		version.New(),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(FlagConfig)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
