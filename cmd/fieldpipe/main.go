package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldpipe/fieldpipe/pkg/config"
	"github.com/fieldpipe/fieldpipe/pkg/errors"
	"github.com/fieldpipe/fieldpipe/pkg/extract"
	"github.com/fieldpipe/fieldpipe/pkg/fieldapi"
	"github.com/fieldpipe/fieldpipe/pkg/logger"
	"github.com/fieldpipe/fieldpipe/pkg/processor"
	"github.com/fieldpipe/fieldpipe/pkg/scheduler"
	"github.com/fieldpipe/fieldpipe/pkg/sink"
	bqsink "github.com/fieldpipe/fieldpipe/pkg/sink/bigquery"
	sfsink "github.com/fieldpipe/fieldpipe/pkg/sink/snowflake"
	"github.com/fieldpipe/fieldpipe/pkg/tenant"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string

	root := &cobra.Command{
		Use:   "fieldpipe",
		Short: "FieldPipe - FieldRoutes extraction engine",
		Long: `FieldPipe extracts operational records from the FieldRoutes REST API,
one office at a time, and loads them into a Snowflake or BigQuery warehouse.`,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "fieldpipe.yml", "Path to engine configuration YAML")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("FieldPipe v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list-entities",
		Short: "List extractable entities",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Dimensions:")
			for _, e := range processor.ByGroup(processor.GroupDimensions) {
				fmt.Printf("  - %s (incremental=%v)\n", e.Name, e.Incremental)
			}
			fmt.Println("\nFacts:")
			for _, e := range processor.ByGroup(processor.GroupFacts) {
				fmt.Printf("  - %s (incremental=%v)\n", e.Name, e.Incremental)
			}
		},
	})

	var entityName string
	var fullRefresh bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Extract one entity across all offices",
		Long: `Extract a single entity from every registered office and load the
combined batch into the warehouse.

Example:
  fieldpipe run --entity appointment
  fieldpipe run --entity customer --full`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(configFile, func(ctx context.Context, proc *processor.Processor) error {
				spec, ok := processor.Lookup(entityName)
				if !ok {
					return errors.New(errors.ErrorTypeValidation,
						fmt.Sprintf("unknown entity %q", entityName))
				}
				res, err := proc.Run(ctx, spec, runMode(fullRefresh))
				if err != nil {
					return err
				}
				fmt.Printf("run %s complete: %d records\n", res.RunID, res.RecordCount)
				return nil
			})
		},
	}
	runCmd.Flags().StringVarP(&entityName, "entity", "e", "", "Entity to extract (required)")
	runCmd.Flags().BoolVar(&fullRefresh, "full", false, "Ignore watermarks and extract everything")
	_ = runCmd.MarkFlagRequired("entity")
	root.AddCommand(runCmd)

	var groupFull bool
	groupCmd := &cobra.Command{
		Use:   "run-group [dimensions|facts|all]",
		Short: "Extract a group of entities in dependency order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProcessor(configFile, func(ctx context.Context, proc *processor.Processor) error {
				mode := runMode(groupFull)
				switch args[0] {
				case "dimensions":
					_, err := proc.RunGroup(ctx, processor.GroupDimensions, mode)
					return err
				case "facts":
					_, err := proc.RunGroup(ctx, processor.GroupFacts, mode)
					return err
				case "all":
					if _, err := proc.RunGroup(ctx, processor.GroupDimensions, mode); err != nil {
						return err
					}
					_, err := proc.RunGroup(ctx, processor.GroupFacts, mode)
					return err
				default:
					return errors.New(errors.ErrorTypeValidation,
						fmt.Sprintf("unknown group %q", args[0]))
				}
			})
		},
	}
	groupCmd.Flags().BoolVar(&groupFull, "full", false, "Ignore watermarks and extract everything")
	root.AddCommand(groupCmd)

	root.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Run the cron scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return withProcessorCfg(cfg, func(ctx context.Context, proc *processor.Processor) error {
				sched, err := scheduler.New(proc, cfg.Schedule, cfg.Metrics)
				if err != nil {
					return err
				}
				if err := sched.Start(ctx); err != nil && err != context.Canceled {
					return err
				}
				return nil
			})
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMode(full bool) extract.Mode {
	if full {
		return extract.ModeFull
	}
	return extract.ModeIncremental
}

// withProcessor loads config, assembles the processor and its
// collaborators, runs fn under a signal-cancelled context, and tears
// everything down.
func withProcessor(configFile string, fn func(context.Context, *processor.Processor) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	return withProcessorCfg(cfg, fn)
}

func withProcessorCfg(cfg *config.Config, fn func(context.Context, *processor.Processor) error) error {
	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		Encoding:    cfg.Logging.Encoding,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	snk, err := buildSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := snk.Close(); err != nil {
			log.Warn("failed to close sink", zap.Error(err))
		}
	}()

	client := fieldapi.NewClient(
		fieldapi.NewRetryPolicy(cfg.API.MaxRetries, cfg.API.RetryDelay),
		cfg.API.ThrottleSleep,
		cfg.API.RequestTimeout)
	ex := extract.New(client, cfg.API.BatchSize, cfg.API.InlineResolveCap)

	proc := processor.New(store, ex, snk, cfg.Warehouse.Database, cfg.Warehouse.Schema)
	return fn(ctx, proc)
}

func buildStore(ctx context.Context, cfg *config.Config) (tenant.Store, func(), error) {
	switch cfg.Tenants.Backend {
	case "postgres":
		pg, err := tenant.NewPostgresStore(ctx, cfg.Tenants.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return tenant.NewFileStore(cfg.Tenants.Path), func() {}, nil
	}
}

func buildSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Warehouse.Kind {
	case "bigquery":
		return bqsink.New(ctx, cfg.Warehouse)
	default:
		return sfsink.New(cfg.Warehouse)
	}
}
