package commands

import (
	"context"
	"fmt"
	"os"

	"pricewise-backend/internal/app"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/pkg/configutil"
	pkgtelemetry "pricewise-backend/pkg/telemetry"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

var rootCmd = &cobra.Command{
	Use:   "pricewise-cli",
	Short: "pricewise-cli ingests and inspects the grocery price catalog.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		pkgtelemetry.InitSlog(*verbose)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "Path to the configuration file.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

// openApp opens the configured database and pipeline, the caller closes it.
func openApp(ctx context.Context) app.App {
	cfg, err := configutil.ReadConfig[app.Config](*configPath)
	if err != nil {
		fatal(fmt.Errorf("read config %s: %w", *configPath, err))
	}
	pipeline, err := app.Open(ctx, cfg, telemetry.SlogAPI{})
	if err != nil {
		fatal(err)
	}
	return pipeline
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
