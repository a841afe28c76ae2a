package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hark/apps/backend/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "hark",
	Short: "Incremental social listening pipelines",
	Long:  "Hark pulls new posts, reviews and pages from upstream sources,\nenriches them with text analysis and delivers them to sinks.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.Version = version
}

func newLogger() *slog.Logger {
	return slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stderr, nil)))
}

func main() {
	slog.SetDefault(newLogger())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
