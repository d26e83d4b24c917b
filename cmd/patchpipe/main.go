// Command patchpipe runs the multipatch feature-extraction pipeline: it
// computes intrinsic and average-response-fit records for experiment jobs and
// manages their lifecycle in the result store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"patchpipe/internal/analysis"
	"patchpipe/internal/blob"
	"patchpipe/internal/config"
	"patchpipe/internal/fit"
	"patchpipe/internal/infra/persistence/memory"
	"patchpipe/internal/infra/persistence/postgres"
	"patchpipe/internal/infra/persistence/sqlite"
	"patchpipe/internal/notesdb"
	"patchpipe/internal/pipeline"
	"patchpipe/internal/qc"
	"patchpipe/internal/rawdata"
	"patchpipe/pkg/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  domain.Store
	source *rawdata.Source
	notes  *notesdb.DB
	runner *pipeline.Runner
}

func newRootCmd() *cobra.Command {
	var configPath string
	var a app

	root := &cobra.Command{
		Use:           "patchpipe",
		Short:         "Multipatch electrophysiology feature pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.Context(), configPath)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config")
	root.AddCommand(newRunCmd(&a), newDropCmd(&a), newModulesCmd(&a), newIngestCmd(&a))
	return root
}

func (a *app) init(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := zap.NewProductionConfig()
	if !cfg.Logging.JSON {
		logCfg.Encoding = "console"
	}
	var level zapcore.Level
	if err := level.Set(cfg.Logging.Level); err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logCfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := logCfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger

	store, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.store = store

	blobStore, err := openBlob(ctx, cfg.RawData)
	if err != nil {
		return err
	}
	a.source = rawdata.NewSource(blobStore, qc.DefaultEngine())

	notes, err := notesdb.Open(cfg.Notes.Path)
	if err != nil {
		return err
	}
	a.notes = notes

	runner := pipeline.NewRunner(store,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(pipeline.NewExpvarMetricsRecorder("patchpipe_metrics")),
	)
	analyzer := analysis.NewNativeAnalyzer()
	if err := runner.Register(pipeline.NewIntrinsicModule(a.source, analyzer)); err != nil {
		return err
	}
	if err := runner.Register(pipeline.NewAvgResponseFitModule(a.source, fit.NewPSPFitter(), notes)); err != nil {
		return err
	}
	a.runner = runner
	return nil
}

func (a *app) close() {
	if a.notes != nil {
		_ = a.notes.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (domain.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(cfg.Path)
	case "postgres":
		return postgres.NewStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openBlob(ctx context.Context, cfg config.RawDataConfig) (blob.Store, error) {
	switch cfg.Driver {
	case "fs":
		return blob.NewFS(cfg.Root)
	case "memory":
		return blob.NewMemory(), nil
	case "s3":
		return blob.OpenS3FromEnv(ctx)
	default:
		return nil, fmt.Errorf("unsupported rawdata driver %q", cfg.Driver)
	}
}

func newRunCmd(a *app) *cobra.Command {
	var rerun bool
	cmd := &cobra.Command{
		Use:   "run <module> <job-id>...",
		Short: "Run a pipeline module for one or more experiment jobs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			moduleName, jobIDs := args[0], args[1:]
			if rerun {
				n, err := a.runner.Drop(ctx, moduleName, jobIDs)
				if err != nil {
					return err
				}
				cmd.Printf("dropped %d stale record(s)\n", n)
			}
			var results map[string][]string
			var err error
			if a.cfg.Jobs.Parallelism > 1 {
				results, err = a.runner.RunParallel(ctx, moduleName, jobIDs, a.cfg.Jobs.Parallelism)
			} else {
				results, err = a.runner.Run(ctx, moduleName, jobIDs)
			}
			if err != nil {
				return err
			}
			reportResults(cmd, results)
			return nil
		},
	}
	cmd.Flags().BoolVar(&rerun, "rerun", false, "drop previously written records before running")
	return cmd
}

func reportResults(cmd *cobra.Command, results map[string][]string) {
	if len(results) == 0 {
		cmd.Println("all jobs completed cleanly")
		return
	}
	jobIDs := make([]string, 0, len(results))
	for id := range results {
		jobIDs = append(jobIDs, id)
	}
	sort.Strings(jobIDs)
	for _, id := range jobIDs {
		cmd.Printf("job %s completed with %d diagnostic(s):\n", id, len(results[id]))
		for _, msg := range results[id] {
			cmd.Printf("  %s\n", msg)
		}
	}
}

func newDropCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <module> <job-id>...",
		Short: "Delete records a module previously wrote for the given jobs",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := a.runner.Drop(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			cmd.Printf("dropped %d record(s)\n", n)
			return nil
		},
	}
}

func newModulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List registered pipeline modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.runner.ModuleNames() {
				module, _ := a.runner.Module(name)
				cmd.Printf("%s (depends on: %v)\n", name, module.Dependencies())
			}
			return nil
		},
	}
}

// ingestManifest is the on-disk input for the ingest command: one
// experiment's entity hierarchy plus its raw sweep payload.
type ingestManifest struct {
	ExtID string `json:"ext_id"`
	Cells []struct {
		ExtID    string `json:"ext_id"`
		DeviceID int    `json:"device_id"`
	} `json:"cells"`
	Pairs []struct {
		PreExtID   string `json:"pre_ext_id"`
		PostExtID  string `json:"post_ext_id"`
		HasSynapse bool   `json:"has_synapse"`
	} `json:"pairs"`
	Data rawdata.ExperimentData `json:"data"`
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <manifest.json>",
		Short: "Register an experiment's entities and store its raw payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			payload, err := os.ReadFile(args[0]) // #nosec G304 -- operator-supplied manifest path
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			var manifest ingestManifest
			if err := json.Unmarshal(payload, &manifest); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
			if manifest.ExtID == "" {
				return fmt.Errorf("manifest missing ext_id")
			}
			manifest.Data.ExtID = manifest.ExtID

			if err := a.store.RunInTransaction(ctx, func(session domain.Session) error {
				expt, err := session.CreateExperiment(domain.Experiment{ExtID: manifest.ExtID})
				if err != nil {
					return err
				}
				cellIDs := make(map[string]string, len(manifest.Cells))
				for _, c := range manifest.Cells {
					cell, err := session.CreateCell(domain.Cell{ExperimentID: expt.ID, ExtID: c.ExtID, DeviceID: c.DeviceID})
					if err != nil {
						return err
					}
					cellIDs[c.ExtID] = cell.ID
				}
				for _, p := range manifest.Pairs {
					pre, ok := cellIDs[p.PreExtID]
					if !ok {
						return fmt.Errorf("pair references unknown cell %s", p.PreExtID)
					}
					post, ok := cellIDs[p.PostExtID]
					if !ok {
						return fmt.Errorf("pair references unknown cell %s", p.PostExtID)
					}
					if _, err := session.CreatePair(domain.Pair{
						ExperimentID: expt.ID,
						PreCellID:    pre,
						PostCellID:   post,
						PreExtID:     p.PreExtID,
						PostExtID:    p.PostExtID,
						HasSynapse:   p.HasSynapse,
					}); err != nil {
						return err
					}
				}
				return nil
			}); err != nil {
				return fmt.Errorf("register experiment %s: %w", manifest.ExtID, err)
			}
			if err := a.source.Save(ctx, &manifest.Data); err != nil {
				return err
			}
			cmd.Printf("ingested experiment %s (%d cell(s), %d pair(s), %d recording(s))\n",
				manifest.ExtID, len(manifest.Cells), len(manifest.Pairs), len(manifest.Data.Recordings))
			return nil
		},
	}
}
