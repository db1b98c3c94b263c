package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/civil"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/app/tracker"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/config"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/history"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/logging"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/model"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/store"
	"github.com/barreeeiroo/MortgageLab-IE-sub004/internal/pkg/wayback"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultConfigPath = "tracker.yaml"

// documentStore is everything the commands need from a store; both
// backends implement the whole of it.
type documentStore interface {
	history.Store
	tracker.Store
}

type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     documentStore
	archive   *wayback.Client
	builder   *history.Builder
	providers []tracker.LenderProvider
	service   *tracker.Service
	harvester *tracker.HistoricalOrchestrator
}

func main() {
	// a .env file is optional, envs still apply without one
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "scrape":
		err = runScrape(os.Args[2:])
	case "historical":
		err = runHistorical(os.Args[2:])
	case "validate":
		err = runValidate(os.Args[2:])
	case "daemon":
		err = runDaemon(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tracker <command> [flags]

commands:
  scrape       scrape live rates once, for all lenders or -lender
  historical   harvest archived rates for one lender from the Wayback Machine
  validate     replay stored history logs and check their tail hashes
  daemon       keep scraping on a cron schedule until interrupted

run 'tracker <command> -h' for the command's flags`)
}

func newApp(ctx context.Context, configPath string) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	st, closeStore, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closeStore()
		_ = logger.Sync()
	}

	var cache wayback.SnapshotCache = wayback.NewMemoryCache()
	if cfg.Redis.Addr != "" {
		redisCache, err := wayback.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			cfg.Archive.CacheTTL.Std(), logger.Named("RedisCache"))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		cache = redisCache
	}

	archive := wayback.NewClient(wayback.Config{
		BaseURL:           cfg.Archive.BaseURL,
		Timeout:           cfg.Archive.Timeout.Std(),
		UserAgent:         cfg.Archive.UserAgent,
		RequestsPerSecond: cfg.Archive.RequestsPerSecond,
		Cache:             cache,
	}, logger.Named("WaybackClient"))

	providers := []tracker.LenderProvider{
		//tracker.NewDummyProvider(logger.Named("DummyProvider")),
		tracker.NewAvantMoneyProvider(logger.Named("AvantMoneyProvider")),
	}

	builder := history.NewBuilder(st, logger.Named("HistoryBuilder"))
	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		archive:   archive,
		builder:   builder,
		providers: providers,
		service:   tracker.NewService(st, builder, providers, logger.Named("TrackerSvc")),
		harvester: tracker.NewHistoricalOrchestrator(archive, logger.Named("Historical")),
	}, cleanup, nil
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (documentStore, func(), error) {
	if cfg.Store == config.StorePostgres {
		pg, err := store.NewPostgres(ctx, cfg.PostgresDSN, logger.Named("PG Store"))
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return store.NewFilesystem(cfg.DataDir, logger.Named("FS Store")), func() {}, nil
}

func runScrape(args []string) error {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML config file")
	lender := fs.String("lender", "", "scrape only this lender id")
	_ = fs.Parse(args)

	ctx := context.Background()
	app, cleanup, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if *lender != "" {
		return app.service.ScrapeLender(ctx, *lender)
	}

	summary := app.service.ScrapeAll(ctx)
	return summary.Err
}

func runHistorical(args []string) error {
	fs := flag.NewFlagSet("historical", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML config file")
	lender := fs.String("lender", "", "lender id to harvest (required)")
	from := fs.String("from", "", "earliest capture date, YYYY-MM-DD")
	to := fs.String("to", "", "latest capture date, YYYY-MM-DD")
	limit := fs.Int("limit", 0, "max captures per source URL, 0 for no limit")
	maxAlignment := fs.Duration("max-alignment", 0, "max distance for aligned auxiliary captures, 0 for the default")
	dryRun := fs.Bool("dry-run", false, "list matching captures without fetching them")
	build := fs.Bool("build", false, "build and persist a history document from the harvest")
	merge := fs.Bool("merge", false, "merge the built document with existing stored history")
	validateCurrent := fs.Bool("validate-current", false, "check the built document against live current rates")
	_ = fs.Parse(args)

	if *lender == "" {
		return fmt.Errorf("historical needs -lender")
	}

	opts := tracker.HarvestOptions{Limit: *limit, MaxAlignment: *maxAlignment}
	var err error
	if *from != "" {
		if opts.From, err = civil.ParseDate(*from); err != nil {
			return fmt.Errorf("invalid -from date: %w", err)
		}
	}
	if *to != "" {
		if opts.To, err = civil.ParseDate(*to); err != nil {
			return fmt.Errorf("invalid -to date: %w", err)
		}
	}

	ctx := context.Background()
	app, cleanup, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	p, ok := app.service.Provider(*lender)
	if !ok {
		return fmt.Errorf("unknown lender %q", *lender)
	}
	hp, ok := p.(tracker.HistoricalLenderProvider)
	if !ok {
		return fmt.Errorf("lender %q cannot parse archived pages", *lender)
	}

	if *dryRun {
		return listSnapshots(ctx, app, hp, opts)
	}

	report, err := app.harvester.Run(ctx, hp, opts)
	if err != nil {
		return err
	}
	printJSON(report)

	if !*build {
		return nil
	}
	file, buildReport, err := app.builder.BuildFromHarvest(ctx, *lender, report.Results, history.BuildOptions{
		MergeWithExisting:      *merge,
		ValidateAgainstCurrent: *validateCurrent,
	})
	if err != nil {
		return err
	}
	if err := app.store.SaveHistory(ctx, file); err != nil {
		return fmt.Errorf("failed to save history for %s: %w", *lender, err)
	}
	printJSON(buildReport)
	return nil
}

// listSnapshots queries the capture indexes for every source URL and
// prints the merged timeline without fetching any content.
func listSnapshots(ctx context.Context, app *app, p tracker.HistoricalLenderProvider, opts tracker.HarvestOptions) error {
	snapOpts := wayback.SnapshotOptions{From: opts.From, To: opts.To, Limit: opts.Limit}

	var lists [][]model.WaybackSnapshot
	for _, u := range p.Sources().Aliases() {
		snaps, err := app.archive.GetSnapshots(ctx, u, snapOpts)
		if err != nil {
			return err
		}
		lists = append(lists, snaps)
	}
	merged := wayback.MergeSnapshots(lists...)

	fmt.Printf("%d captures for %s\n", len(merged), p.LenderID())
	for _, snap := range merged {
		fmt.Printf("  %s  %s  %s\n", snap.Timestamp, snap.Digest, snap.URL)
	}
	return nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to render report:", err)
		return
	}
	fmt.Println(string(out))
}

func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML config file")
	lender := fs.String("lender", "", "validate only this lender id")
	_ = fs.Parse(args)

	ctx := context.Background()
	app, cleanup, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if *lender != "" {
		report, err := app.builder.Validate(ctx, *lender)
		if err != nil {
			return err
		}
		printJSON(report)
		if !report.OK() {
			return fmt.Errorf("history for %s failed validation", *lender)
		}
		return nil
	}

	var failed []string
	for _, p := range app.providers {
		id := p.LenderID()
		if _, ok, err := app.store.LoadHistory(ctx, id); err != nil {
			return err
		} else if !ok {
			app.logger.Info("no stored history, skipping", zap.String("lenderId", id))
			continue
		}
		report, err := app.builder.Validate(ctx, id)
		if err != nil {
			return err
		}
		printJSON(report)
		if !report.OK() {
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("history failed validation for: %v", failed)
	}
	return nil
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "path to the YAML config file")
	schedule := fs.String("schedule", "", "cron schedule, overrides the configured one")
	_ = fs.Parse(args)

	ctx := context.Background()
	app, cleanup, err := newApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	spec := app.cfg.Schedule
	if *schedule != "" {
		spec = *schedule
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if summary := app.service.ScrapeAll(ctx); summary.Err != nil {
			app.logger.Error("scheduled scrape had failures", zap.Error(summary.Err))
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	// one run right away, the schedule covers the rest
	if summary := app.service.ScrapeAll(ctx); summary.Err != nil {
		app.logger.Error("initial scrape had failures", zap.Error(summary.Err))
	}

	c.Start()
	app.logger.Info("daemon started", zap.String("schedule", spec))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	app.logger.Info("shutting down")
	<-c.Stop().Done()
	return nil
}
