// Command closeloop runs feedback loop maintenance from cron or a shell.
//
// Usage:
//
//	closeloop run                     # analyze the last 7 days and apply qualifying weight changes now
//	closeloop analytics --days 30     # print the analytics report
//	closeloop recommend               # print improvement recommendations
//	closeloop enqueue                 # schedule a close-loop job on River
//	closeloop refresh --user a,b,c    # schedule match cache refreshes on River
//
// Configuration comes from the same environment variables as the API server (DATABASE_URL, API_KEY, ...).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/spf13/cobra"

	"github.com/reciprocity/matchloop/internal/config"
	"github.com/reciprocity/matchloop/internal/jobs"
	"github.com/reciprocity/matchloop/internal/repository"
	"github.com/reciprocity/matchloop/internal/service"
	"github.com/reciprocity/matchloop/pkg/database"
)

var errNoUsers = errors.New("at least one --user is required")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "closeloop",
		Short:        "Feedback loop maintenance: close the loop, inspect analytics, schedule background jobs",
		SilenceUsage: true,
	}

	root.AddCommand(newRunCmd(), newAnalyticsCmd(), newRecommendCmd(), newEnqueueCmd(), newRefreshCmd())

	return root
}

// env is what every subcommand needs: configuration and a database pool.
type env struct {
	cfg *config.Config
	db  *pgxpool.Pool
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	if cfg.StoreBackend != config.StorePostgres {
		return nil, fmt.Errorf("closeloop requires STORE_BACKEND=%s", config.StorePostgres)
	}

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &env{cfg: cfg, db: db}, nil
}

func (e *env) close() {
	e.db.Close()
}

func (e *env) loop() *service.FeedbackLoop {
	stores := repository.NewPostgresStores(e.db)

	return service.NewFeedbackLoop(service.FeedbackLoopParams{
		Collector: service.NewFeedbackCollector(stores.Feedback, nil, nil),
		Analytics: service.NewFeedbackAnalyticsEngine(stores.Feedback),
		Weights:   stores.Weights,
		Config:    e.cfg.Loop,
	})
}

// insertOnlyClient returns a River client without workers; it can insert but not work jobs.
func (e *env) insertOnlyClient() (*river.Client[pgx.Tx], error) {
	client, err := river.NewClient(riverpgxv5.New(e.db), &river.Config{})
	if err != nil {
		return nil, fmt.Errorf("create River client: %w", err)
	}

	return client, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	return nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Analyze the last 7 days of feedback and apply qualifying dimension weight changes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			report, err := e.loop().CloseLoop(cmd.Context())
			if err != nil {
				return fmt.Errorf("close loop: %w", err)
			}

			return printJSON(cmd, report)
		},
	}
}

func newAnalyticsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Print feedback analytics for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			a, err := e.loop().GetAnalytics(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("analytics: %w", err)
			}

			return printJSON(cmd, a)
		},
	}

	cmd.Flags().IntVar(&days, "days", service.DefaultAnalyticsDays, "length of the analysis window in days")

	return cmd
}

func newRecommendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recommend",
		Short: "Print improvement recommendations from the last 30 days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			recs, err := e.loop().GetImprovementRecommendations(cmd.Context())
			if err != nil {
				return fmt.Errorf("recommendations: %w", err)
			}

			return printJSON(cmd, recs)
		},
	}
}

func newEnqueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue",
		Short: "Schedule a close-loop job for the API server's River workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.insertOnlyClient()
			if err != nil {
				return err
			}

			res, err := client.Insert(cmd.Context(), jobs.CloseLoopArgs{}, nil)
			if err != nil {
				return fmt.Errorf("insert close-loop job: %w", err)
			}

			slog.Info("close-loop job enqueued", "job_id", res.Job.ID)

			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	var users []string

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Schedule match cache refreshes for the given users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(users) == 0 {
				return errNoUsers
			}

			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			client, err := e.insertOnlyClient()
			if err != nil {
				return err
			}

			inserter := jobs.NewRiverJobInserter(client, 0)
			batches := jobs.BatchUserIDs(users, e.cfg.CacheRefreshBatchSize)

			for _, batch := range batches {
				if err := inserter.InsertCacheRefreshJob(cmd.Context(), batch); err != nil {
					return fmt.Errorf("insert cache refresh job: %w", err)
				}
			}

			slog.Info("cache refresh jobs enqueued", "users", len(users), "jobs", len(batches))

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&users, "user", nil, "user ids to refresh (repeatable or comma separated)")

	return cmd
}
