// Package cli wires the sgrep-evals commands.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/XiaoConstantine/sgrep-evals/internal/config"
	"github.com/XiaoConstantine/sgrep-evals/internal/logging"
	"github.com/XiaoConstantine/sgrep-evals/pkg/dataset"
	"github.com/XiaoConstantine/sgrep-evals/pkg/embed"
	"github.com/XiaoConstantine/sgrep-evals/pkg/engine"
	"github.com/XiaoConstantine/sgrep-evals/pkg/eval"
	"github.com/XiaoConstantine/sgrep-evals/pkg/repos"
)

// Rate of availability probes against github.com.
const (
	probeRPS   = 10
	probeBurst = 8
)

// annotationsURL is swapped in tests.
var annotationsURL = dataset.AnnotationsURL

// Execute runs the command line with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sgrep-evals",
		Short: "Measure semantic code search against CodeSearchNet relevance annotations",
		Long: `sgrep-evals benchmarks the sgrep engine on the CodeSearchNet human
relevance annotations.

  fetch  download the annotations, build evaluations.json and check out every
         referenced repository at its pinned revision
  run    index every checkout, run each query and print one JSON outcome per
         line on stdout

Configuration comes from the environment (OPENAI_API_KEY, EVALS_REPOS_DIR, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(fetchCmd(), runCmd())
	return root
}

func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewWithWriter(cfg.Evals.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download annotations, build the dataset and sync repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runFetch(cmd, cfg, logger)
		},
	}
}

func runFetch(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	ctx := cmd.Context()

	client := &http.Client{Timeout: 5 * time.Minute}
	content, err := dataset.FetchAnnotations(ctx, client, annotationsURL, cfg.AnnotationsPath())
	if err != nil {
		return err
	}

	path := cfg.EvaluationsPath()
	if err := dataset.Save(path, dataset.Build(dataset.ParseAnnotations(content))); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	projects, err := dataset.Load(path)
	if err != nil {
		return err
	}
	logger.Info("dataset written", zap.String("path", path), zap.Int("projects", len(projects)))

	syncer := repos.NewSynchronizer(cfg.Evals.ReposDir, repos.CLIGit{}, repos.NewHTTPProber(nil, probeRPS, probeBurst),
		repos.WithWorkers(cfg.Evals.FetchWorkers),
		repos.WithLogger(logger),
		repos.WithProgress(cmd.ErrOrStderr()))

	report, err := syncer.Sync(ctx, projects)
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Fetched %d repos: %d synced, %d up to date, %d skipped, %d unavailable, %d failed\n",
		report.Total(), report.Synced, report.UpToDate, report.Skipped, report.Unavailable, report.Failed)
	return err
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate every project and print outcomes as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}
			provider, err := embed.NewOpenAI(embed.OpenAIConfig{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.EmbeddingModel,
			})
			if err != nil {
				return err
			}
			return runEvals(cmd, cfg, logger, provider)
		},
	}
}

func runEvals(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger, provider embed.Provider) error {
	projects, err := dataset.Load(cfg.EvaluationsPath())
	if err != nil {
		return fmt.Errorf("%w (run `sgrep-evals fetch` first)", err)
	}

	embedder := embed.New(provider, embed.Config{})
	eng := engine.New(embedder, cfg.Evals.IndexDir, engine.WithLogger(logger))
	runner := eval.NewRunner(eng, cfg.Evals.ReposDir, logger, eval.WithProgress(cmd.ErrOrStderr(), time.Second))
	emitter := eval.NewStdoutEmitter(cmd.OutOrStdout())

	_, err = runner.Run(cmd.Context(), projects, emitter.Emit)

	total, hits, failures := embedder.Stats()
	logger.Debug("embedding stats",
		zap.Int64("requests", total),
		zap.Int64("cache_hits", hits),
		zap.Int64("errors", failures))
	return err
}
