package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"hark/apps/backend/internal/adapter/gemini"
	"hark/apps/backend/internal/app"
	"hark/apps/backend/internal/checkpoint"
	"hark/apps/backend/internal/processor"
	"hark/apps/backend/internal/settings"
	"hark/apps/backend/internal/source"
)

// cliConfig is the environment a one-shot run reads. Runs need no database.
type cliConfig struct {
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	GeminiModel        string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	HTTPTimeoutSeconds int    `envconfig:"HTTP_TIMEOUT_SECONDS" default:"30"`
	Browser            bool   `envconfig:"ENABLE_BROWSER" default:"true"`
}

type staticSettings struct {
	s settings.Settings
}

func (p staticSettings) Get(context.Context) (*settings.Settings, error) {
	s := p.s
	return &s, nil
}

// localComponents builds the registries a run outside the service can use.
// Sinks that need service infrastructure (queue, store, weaviate) are absent.
func localComponents(cfg cliConfig, logger *slog.Logger) (*app.Components, func()) {
	deps := app.ComponentDeps{
		HTTPClient: &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutSeconds) * time.Second},
		Logger:     logger,
	}
	closers := []func(){}

	if cfg.GeminiAPIKey != "" {
		client := gemini.NewDynamicClient(staticSettings{s: settings.Settings{
			GeminiAPIKey:   cfg.GeminiAPIKey,
			GeminiModel:    cfg.GeminiModel,
			EmbeddingModel: cfg.EmbeddingModel,
		}})
		deps.Model, deps.Embedder = client, client
		closers = append(closers, func() { _ = client.Close() })
	}
	if cfg.Browser {
		deps.Runner = source.NewBrowserRunner()
	}

	return app.NewComponents(deps), func() {
		for _, c := range closers {
			c()
		}
	}
}

var runFlags struct {
	file      string
	state     string
	stateless bool
	json      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one pass of a workflow file",
	Long: "Run fetches new items for the workflow's source, analyzes them and sends\n" +
		"them to its sink. The checkpoint is kept in a local SQLite file unless\n" +
		"--stateless is given, in which case the lookup period alone bounds the fetch.",
	RunE: runPass,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runFlags.file, "file", "f", "", "Workflow definition file (required)")
	f.StringVar(&runFlags.state, "state", "data/checkpoints.db", "SQLite file holding checkpoints")
	f.BoolVar(&runFlags.stateless, "stateless", false, "Neither read nor write a checkpoint")
	f.BoolVar(&runFlags.json, "json", false, "Print the pass report as JSON")

	_ = runCmd.MarkFlagRequired("file")
	runCmd.MarkFlagsMutuallyExclusive("state", "stateless")
}

func runPass(cmd *cobra.Command, _ []string) error {
	wf, err := loadWorkflowFile(runFlags.file)
	if err != nil {
		return err
	}
	pl, err := wf.pipeline()
	if err != nil {
		return err
	}

	store, workflowID, closeStore, err := openState(wf, runFlags.state, runFlags.stateless)
	if err != nil {
		return err
	}
	defer closeStore()

	var cfg cliConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	comps, closeComps := localComponents(cfg, slog.Default())
	defer closeComps()

	p := processor.New(nil, store, comps.Sources, comps.Analyzers, comps.Sinks)
	report, runErr := p.Run(cmd.Context(), workflowID, pl)
	if report != nil {
		if runFlags.json {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
		}
	}
	return runErr
}

// openState returns the checkpoint store and key for a run. A stateless run
// gets an empty key, so the processor never touches the store.
func openState(wf *workflowFile, path string, stateless bool) (checkpoint.Store, string, func(), error) {
	if stateless {
		return checkpoint.NewMemoryStore(), "", func() {}, nil
	}
	key := wf.stateKey()
	if key == "" {
		return nil, "", nil, errors.New("a stateful run needs an id or name in the workflow file; use --stateless otherwise")
	}
	store, err := checkpoint.OpenSQLite(path)
	if err != nil {
		return nil, "", nil, err
	}
	return store, key, func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close checkpoint store", "error", err)
		}
	}, nil
}

var validateFlags struct {
	file string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a workflow file against the component registries",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "Workflow definition file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	wf, err := loadWorkflowFile(validateFlags.file)
	if err != nil {
		return err
	}
	pl, err := wf.pipeline()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Workflow: %s\n", wf.Name)
	fmt.Fprintf(out, "Source:   %s\n", kindOf(pl.Source))
	fmt.Fprintf(out, "Analyzer: %s\n", kindOf(pl.Analyzer))
	fmt.Fprintf(out, "Sink:     %s\n", kindOf(pl.Sink))
	if !pl.Runnable() {
		fmt.Fprintln(out, "Passes will be skipped until both a source and a sink are configured.")
	}
	return nil
}

type kinded interface{ Kind() string }

func kindOf(c kinded) string {
	if c == nil {
		return "-"
	}
	return c.Kind()
}

var fetchFlags struct {
	file string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch from a workflow's source without analyzing or sending",
	Long:  "Fetch runs a stateless lookup and prints the records as JSON lines.",
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().StringVarP(&fetchFlags.file, "file", "f", "", "Workflow definition file (required)")
	_ = fetchCmd.MarkFlagRequired("file")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	wf, err := loadWorkflowFile(fetchFlags.file)
	if err != nil {
		return err
	}
	pl, err := wf.pipeline()
	if err != nil {
		return err
	}
	if pl.Source == nil {
		return errors.New("workflow file has no source")
	}

	var cfg cliConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	comps, closeComps := localComponents(cfg, slog.Default())
	defer closeComps()

	conn, err := comps.Sources.For(pl.Source)
	if err != nil {
		return err
	}
	records, err := source.Lookup(cmd.Context(), conn, checkpoint.NewMemoryStore(), pl.Source, "")
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
