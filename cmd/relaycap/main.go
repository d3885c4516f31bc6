// Command relaycap runs the discovery aggregator as a standalone
// process: it loads configuration, connects to the configured relays,
// discovers and (for private servers) handshakes with providers, then
// serves the local CAP-RPC endpoint over stdin/stdout for a host
// process to drive. Flag parsing is kept thin; a config wizard is out
// of scope here.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relaycap.dev/config"
	"relaycap.dev/pkg/aggregator"
	"relaycap.dev/pkg/utils/context"
	"relaycap.dev/pkg/utils/log"
)

var (
	flagConfigure  bool
	flagConfigPath string
	flagProvider   string
	flagServer     string
	flagVerbose    bool
	flagInteractive bool
)

func main() {
	root := &cobra.Command{
		Use:   "relaycap",
		Short: "Discovery Aggregator: bridges CAP-RPC hosts to a REL capability network",
		RunE:  run,
	}
	root.Flags().BoolVar(&flagConfigure, "configure", false, "print the current configuration and exit")
	root.Flags().StringVar(&flagConfigPath, "config-path", "", "override the configuration directory")
	root.Flags().StringVar(&flagProvider, "provider", "", "bech32 provider profile (accepted; discovery is not restricted by it)")
	root.Flags().StringVar(&flagServer, "server", "", "bech32 server address (accepted; no handshake is made from it)")
	root.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	root.Flags().BoolVar(&flagInteractive, "interactive", false, "register built-in interactive tools (list_tools, remove_tool, discover)")

	if err := root.Execute(); err != nil {
		log.E.F("relaycap: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagVerbose {
		log.SetLevel("debug")
	}

	if flagConfigPath != "" {
		os.Setenv("RELAYCAP_CONFIG_DIR", flagConfigPath)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flagInteractive {
		cfg.FeatureFlagsInteractive = true
	}

	if flagConfigure {
		fmt.Printf("%+v\n", cfg)
		return nil
	}

	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()

	agg, err := aggregator.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build aggregator: %w", err)
	}
	defer agg.Close()

	go func() {
		if err := agg.Run(ctx); err != nil && ctx.Err() == nil {
			log.W.F("relaycap: aggregator run loop ended: %v", err)
		}
	}()

	log.I.F("relaycap: serving CAP-RPC on stdio")
	return agg.Endpoint.Serve(ctx, os.Stdin, os.Stdout)
}
