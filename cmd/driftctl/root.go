package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	rpcURL     string
	namespace  string
	logLevel   string
}

// runFunc is a command body with a ready client
type runFunc func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:          "driftctl",
		Short:        "Query an Ethereum node through the rpcdrift client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "config.json", "path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&flags.rpcURL, "rpc", "", "node URL (http, https, ws or wss); skips the config file")
	root.PersistentFlags().StringVar(&flags.namespace, "namespace", "", "cache namespace")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "log level when --rpc is used")

	root.AddCommand(
		newChainIDCmd(flags),
		newBlockCmd(flags),
		newBalanceCmd(flags),
		newCallCmd(flags),
		newReadCmd(flags),
		newTokenCmd(flags),
		newWatchCmd(flags),
	)
	return root
}

// withApp wraps a command body with config loading, client setup and
// signal handling
func withApp(flags *rootFlags, run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flags)
		if err != nil {
			return err
		}
		logger := setupLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to start client: %w", err)
		}
		defer a.Close()

		logger.Debug().Str("command", cmd.Name()).Strs("args", args).Msg("running command")
		return run(ctx, a, cmd, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func hasScheme(url string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(strings.ToLower(url), s) {
			return true
		}
	}
	return false
}
