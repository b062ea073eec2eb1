package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kalshidune/internal/config"
	"kalshidune/internal/kalshi"
	"kalshidune/internal/logging"
	"kalshidune/internal/service"
	"kalshidune/internal/storage"
)

var (
	version    = "dev"
	resource   string
	limit      int
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kalshidune",
		Short: "Kalshi market data pipeline for Dune community tables",
		Long: `Collects open events and markets from the Kalshi exchange API into
dated CSV snapshots and uploads them to Dune community tables with
duplicate-safe append semantics.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&resource, "resource", "", "limit to one resource (events|markets)")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "output as JSON")

	rootCmd.AddCommand(collectCmd(), uploadCmd(), runCmd(), daemonCmd(), watchCmd(), runsCmd(), versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func collectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Fetch open listings into dated snapshot CSVs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(false)
			if err != nil {
				return err
			}
			defer a.close()

			if resource != "" {
				if err := validResource(resource); err != nil {
					return err
				}
				_, err := a.svc.CollectResource(cmd.Context(), resource)
				return err
			}

			results := a.svc.CollectAll(cmd.Context())
			a.svc.LogSummary("collect", results)
			if !service.AnySucceeded(results) {
				return fmt.Errorf("collect failed for all resources")
			}
			return nil
		},
	}
}

func uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload snapshot CSVs into the warehouse tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(true)
			if err != nil {
				return err
			}
			defer a.close()

			if resource != "" {
				if err := validResource(resource); err != nil {
					return err
				}
				_, err := a.svc.UploadResource(cmd.Context(), resource)
				return err
			}

			results := a.svc.UploadAll(cmd.Context())
			a.svc.LogSummary("upload", results)
			if !service.AnySucceeded(results) {
				return fmt.Errorf("upload failed for all resources")
			}
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: collect, then upload",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(true)
			if err != nil {
				return err
			}
			defer a.close()

			results := a.svc.Run(cmd.Context())
			a.svc.LogSummary("upload", results)
			if !service.AnySucceeded(results) {
				return fmt.Errorf("pipeline failed for all resources")
			}
			return nil
		},
	}
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the pipeline on the configured cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(true)
			if err != nil {
				return err
			}
			defer a.close()
			return a.svc.Daemon(cmd.Context())
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Upload snapshots as they appear in the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := boot(true)
			if err != nil {
				return err
			}
			defer a.close()
			return a.svc.Watch(cmd.Context())
		},
	}
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := storage.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			store := storage.NewRunStore(db)
			var runs []storage.Run
			if resource != "" {
				if err := validResource(resource); err != nil {
					return err
				}
				runs, err = store.ListRunsFor(resource, limit)
			} else {
				runs, err = store.ListRuns(limit)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				printJSON(runs)
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %-7s  %-8s  %s  %-7s  read=%-6d written=%-6d  %s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Stage, r.Resource,
					r.Date, r.Status, r.RowsRead, r.RowsWritten, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			if jsonOutput {
				printJSON(map[string]string{"version": version})
			} else {
				fmt.Printf("kalshidune %s\n", version)
			}
		},
	}
}

// app bundles everything a command needs after boot.
type app struct {
	cfg *config.Config
	db  *storage.DB
	svc *service.PipelineService
}

// boot loads config, sets up logging and run history, and builds the
// pipeline service. requireKey makes a missing warehouse API key fatal
// before any network activity.
func boot(requireKey bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if requireKey {
		if err := cfg.RequireDuneKey(); err != nil {
			return nil, err
		}
	}

	log, err := logging.Setup(cfg.LogDir)
	if err != nil {
		return nil, err
	}

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	svc, err := service.NewPipelineService(cfg, log, storage.NewRunStore(db))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{cfg: cfg, db: db, svc: svc}, nil
}

func (a *app) close() {
	a.svc.Close()
	a.db.Close()
}

func validResource(r string) error {
	for _, known := range kalshi.Resources() {
		if known == r {
			return nil
		}
	}
	return fmt.Errorf("unknown resource %q (valid: events, markets)", r)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
