// Command etl-admin inspects and repairs pipeline state.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/config"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/bootstrap"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/domain/model"
	"github.com/aws-solutions-library-samples/guidance-for-agentic-data-exploration-on-aws-sub001/internal/migrate"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute
)

func main() {
	cfg, cfgErr := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(cfg.IsDev)

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	if cfgErr != nil {
		logger.ErrorContext(context.Background(), "load config", "error", cfgErr)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmdCtx := &commandContext{Ctx: ctx, Logger: logger, Config: cfg, Out: os.Stdout}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply the postgres log store migrations (--status lists them)",
			run:         runMigrations,
		},
		"load-status": {
			name:        "load-status",
			description: "Check a bulk load with the graph engine and refresh its record",
			run:         runLoadStatus,
		},
		"etl-history": {
			name:        "etl-history",
			description: "List ETL log records for an object key, newest first",
			run:         runETLHistory,
		},
		"redrive-dlq": {
			name:        "redrive-dlq",
			description: "Move dead-lettered files back to the throttle queue as fresh attempts",
			run:         runRedriveDLQ,
		},
		"enqueue": {
			name:        "enqueue",
			description: "Put an object key on the throttle queue without an S3 notification",
			run:         runEnqueue,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: etl-admin <command> [flags] [args]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, commands()[name].description); err != nil {
			return err
		}
	}
	return nil
}

// withServices connects infrastructure, builds services and runs fn.
func withServices(cmdCtx *commandContext, fn func(ctx context.Context, sc bootstrap.ServiceContainer) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	cfg := cmdCtx.Config
	// Admin commands never apply migrations implicitly.
	cfg.Postgres.RunMigrationsOnStart = false
	infra, closeInfra, err := bootstrap.ConnectInfrastructure(ctx, &cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(); cerr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", cerr)
		}
	}()

	sc, err := bootstrap.NewServices(ctx, &bootstrap.ServiceDeps{Config: &cfg, Infra: infra, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sc.Observability.Close(); cerr != nil {
			cmdCtx.Logger.Warn("close metrics client failed", "error", cerr)
		}
	}()
	return fn(ctx, sc)
}

type migrateOptions struct {
	Timeout time.Duration
	Status  bool
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	fs.BoolVar(&opts.Status, "status", false, "List migrations and whether they are applied instead of applying them")

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.LogStore.Backend != config.LogStorePostgres {
		return fmt.Errorf("migrate requires LOG_STORE=postgres (current: %s)", cmdCtx.Config.LogStore.Backend)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	if opts.Status {
		statuses, err := migrate.List(ctx, db)
		if err != nil {
			return err
		}
		return printMigrationStatus(cmdCtx.Out, statuses)
	}

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func printMigrationStatus(out io.Writer, statuses []migrate.Status) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Version\tApplied\tApplied At"); err != nil {
		return err
	}
	for _, s := range statuses {
		appliedAt := "-"
		if s.AppliedAt != nil {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		if err := writef(w, "%s\t%t\t%s\n", s.Version, s.Applied, appliedAt); err != nil {
			return err
		}
	}
	return w.Flush()
}

type outputOptions struct {
	JSON bool
}

func runLoadStatus(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("load-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts outputOptions
	fs.BoolVar(&opts.JSON, "json", false, "Print the raw report as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: etl-admin load-status [--json] <loadId>")
	}
	loadID := fs.Arg(0)

	return withServices(cmdCtx, func(ctx context.Context, sc bootstrap.ServiceContainer) error {
		if sc.LoadStatus == nil {
			return errors.New("load status requires GRAPH_ENDPOINT")
		}
		report, err := sc.LoadStatus.Check(ctx, loadID)
		if err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(cmdCtx.Out, report)
		}
		return printLoadReport(cmdCtx.Out, report)
	})
}

func printLoadReport(out io.Writer, r *model.LoadStatusReport) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Load ID", r.LoadID},
		{"Status", string(r.Status)},
		{"Engine Status", fallback(r.Payload.OverallStatus, "-")},
		{"Source", fallback(r.SourceKey, "-")},
		{"Feeds", fmt.Sprintf("%d (%d failed)", r.Payload.FeedCount, r.Payload.FailedFeeds)},
		{"Time Spent", fmt.Sprintf("%ds", r.TotalTimeSpent)},
	}
	if r.Error != "" {
		rows = append(rows, [2]string{"Error", r.Error})
	}
	for _, row := range rows {
		if err := writef(w, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	for _, le := range r.Payload.Errors {
		if err := writef(w, "  %s\t%s (%s:%d)\n", le.ErrorCode, le.ErrorMessage, fallback(le.FileName, "-"), le.RecordNum); err != nil {
			return err
		}
	}
	return w.Flush()
}

type historyOptions struct {
	Limit int
	JSON  bool
}

func parseHistoryFlags(args []string) (historyOptions, string, error) {
	fs := flag.NewFlagSet("etl-history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var opts historyOptions
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum records to show")
	fs.BoolVar(&opts.JSON, "json", false, "Print records as JSON")
	if err := fs.Parse(args); err != nil {
		return historyOptions{}, "", err
	}
	if fs.NArg() != 1 {
		return historyOptions{}, "", errors.New("usage: etl-admin etl-history [--limit N] [--json] <key>")
	}
	key := strings.TrimLeft(strings.TrimSpace(fs.Arg(0)), "/")
	if key == "" {
		return historyOptions{}, "", errors.New("key is required")
	}
	return opts, key, nil
}

func runETLHistory(cmdCtx *commandContext, args []string) error {
	opts, key, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, func(ctx context.Context, sc bootstrap.ServiceContainer) error {
		recs, err := sc.ETLLog.History(ctx, model.ETLHistoryQuery{ID: key, Limit: opts.Limit})
		if err != nil {
			return err
		}
		if opts.JSON {
			return printJSON(cmdCtx.Out, recs)
		}
		return printHistory(cmdCtx.Out, key, recs)
	})
}

func printHistory(out io.Writer, key string, recs []*model.ETLLogRecord) error {
	if len(recs) == 0 {
		return writef(out, "No ETL log records for %s\n", key)
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if err := writeln(w, "Timestamp\tStatus\tAttempt\tLabel\tDetail"); err != nil {
		return err
	}
	for _, r := range recs {
		detail := strings.Join(r.OutputKeys, ",")
		if r.Error != nil {
			detail = *r.Error
		}
		if err := writef(w, "%s\t%s\t%d\t%s\t%s\n", r.Timestamp, r.Status, r.Attempt, fallback(r.NodeLabel, "-"), fallback(detail, "-")); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runRedriveDLQ(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("redrive-dlq", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	maxMessages := fs.Int("max", 100, "Maximum dead letters to move")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *maxMessages <= 0 {
		return errors.New("--max must be greater than zero")
	}
	return withServices(cmdCtx, func(ctx context.Context, sc bootstrap.ServiceContainer) error {
		if sc.Intake == nil {
			return errors.New("redrive requires ETL_QUEUE_URL and ETL_DLQ_URL")
		}
		res, err := sc.Intake.RedriveDLQ(ctx, *maxMessages)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "Moved %d dead letters (%d skipped)\n", res.Moved, res.Skipped)
	})
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	bucket := fs.String("bucket", cmdCtx.Config.Storage.Bucket, "Bucket holding the object")
	delay := fs.Duration("delay", 0, "Initial delivery delay")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: etl-admin enqueue [--bucket B] [--delay D] <key>")
	}
	return withServices(cmdCtx, func(ctx context.Context, sc bootstrap.ServiceContainer) error {
		if sc.Intake == nil {
			return errors.New("enqueue requires ETL_QUEUE_URL")
		}
		env, err := sc.Intake.Enqueue(ctx, *bucket, fs.Arg(0), *delay)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Out, "Enqueued s3://%s/%s\n", env.Bucket, env.Key)
	})
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
