package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonnyspicer/mango"
	flag "github.com/spf13/pflag"

	"foresight/internal/config"
	"foresight/internal/db"
	"foresight/internal/ingest"
	"foresight/internal/judge"
	"foresight/internal/market"
	"foresight/internal/notify"
	"foresight/internal/prediction"
	"foresight/internal/report"
	"foresight/internal/resolve"
	"foresight/internal/scheduler"
	"foresight/internal/source"
	"foresight/internal/verify"
)

const usage = `usage: foresight <command> [flags]

commands:
  ingest                        fetch market snapshots from all sources
  resolve [--dry-run]           apply the resolution policy to linked predictions
  verify [--auto-apply] [--check-all] [--dry-run]
                                check due predictions with the model
  record <forecast.json>        record a new prediction
  update-prob <id> <rev.json>   revise an open prediction's probabilities
  judge <id> --outcome <label>  resolve a prediction by hand
  add-link --prediction-id --market-id --direction [--notes]
                                link a prediction to a market
  links                         list all prediction-market links
  search <keyword> [--limit]    find markets to link against
  status                        show store counters
  overdue                       list predictions past their check date
  report [--quarter 2026-Q1]    show the scoring track record
  run                           run the daily passes on a schedule`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	// Set up structured logging.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	cfg := loadConfig()
	setLogLevel(cfg.General.LogLevel)

	app := &app{cfg: cfg}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	var err error
	switch command {
	case "ingest":
		err = app.cmdIngest(ctx, args)
	case "resolve":
		err = app.cmdResolve(ctx, args)
	case "verify":
		err = app.cmdVerify(ctx, args)
	case "record":
		err = app.cmdRecord(args)
	case "update-prob":
		err = app.cmdUpdateProb(args)
	case "judge":
		err = app.cmdJudge(args)
	case "add-link":
		err = app.cmdAddLink(args)
	case "links":
		err = app.cmdLinks(args)
	case "search":
		err = app.cmdSearch(args)
	case "status":
		err = app.cmdStatus(args)
	case "overdue":
		err = app.cmdOverdue(args)
	case "report":
		err = app.cmdReport(args)
	case "run":
		err = app.cmdRun(ctx, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	configPath := "config.toml"
	if p := os.Getenv("FORESIGHT_CONFIG_PATH"); p != "" {
		configPath = p
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) && os.Getenv("FORESIGHT_CONFIG_PATH") == "" {
		return config.DefaultConfig()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	return cfg
}

func setLogLevel(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "", "info":
		return
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		slog.Warn("unknown log level, keeping info", "log_level", level)
		return
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})))
}

type app struct {
	cfg *config.Config
}

func (a *app) predictions() *prediction.Store {
	return prediction.NewStore(a.cfg.General.PredictionDBPath, a.cfg.General.IDPrefix)
}

// openMarkets opens the market database, creating it when absent.
func (a *app) openMarkets() (*market.Store, func(), error) {
	conn, err := db.Open(a.cfg.General.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return market.NewStore(conn), func() { conn.Close() }, nil
}

// requireMarkets refuses to run against a database that was never ingested.
func (a *app) requireMarkets() (*market.Store, func(), error) {
	if _, err := os.Stat(a.cfg.General.DBPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("market database %s does not exist, run ingest first", a.cfg.General.DBPath)
	}
	return a.openMarkets()
}

func (a *app) generator() (judge.Generator, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	return judge.NewClient(a.cfg.Judge, key), nil
}

func (a *app) notifier() notify.Notifier {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" || a.cfg.Telegram.ChatID == "" {
		slog.Debug("telegram not configured, notifications go to the log")
		return notify.LogNotifier{}
	}
	return notify.NewTelegram(a.cfg.Telegram, token)
}

func (a *app) sources() []source.Source {
	return []source.Source{
		source.NewPolymarket(a.cfg.Ingest),
		source.NewManifold(mango.DefaultClientInstance(), a.cfg.Ingest.MaxMarketsPerSource),
	}
}

func (a *app) cmdIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	fs.Parse(args)

	markets, closeDB, err := a.openMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	return ingest.NewIngestor(a.sources(), markets, a.cfg.Ingest).Run(ctx)
}

func (a *app) cmdResolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "decide but do not write or notify")
	fs.Parse(args)

	gen, err := a.generator()
	if err != nil {
		return err
	}
	markets, closeDB, err := a.requireMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	r := resolve.New(a.predictions(), markets, gen, a.notifier(), a.cfg.Resolver, *dryRun)
	_, err = r.Run(ctx)
	return err
}

func (a *app) cmdVerify(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	autoApply := fs.Bool("auto-apply", a.cfg.Verifier.AutoApply, "resolve on confident verdicts")
	checkAll := fs.Bool("check-all", false, "check every open prediction, not just due ones")
	dryRun := fs.Bool("dry-run", false, "decide but do not write or notify")
	fs.Parse(args)

	gen, err := a.generator()
	if err != nil {
		return err
	}

	v := verify.New(a.predictions(), gen, a.notifier(), a.cfg.Verifier, *autoApply, *checkAll, *dryRun)
	_, err = v.Run(ctx)
	return err
}

func (a *app) cmdRecord(args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: record <forecast.json>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var f prediction.Forecast
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing forecast: %w", err)
	}

	id, created, err := a.predictions().Record(f)
	if err != nil {
		return err
	}
	if !created {
		slog.Info("forecast already recorded", "prediction_id", id)
	}
	return nil
}

func (a *app) cmdUpdateProb(args []string) error {
	fs := flag.NewFlagSet("update-prob", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: update-prob <prediction-id> <revision.json>")
	}

	data, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	var rev struct {
		ArticleID string                        `json:"article_id"`
		Reason    string                        `json:"reason"`
		Scenarios []prediction.ForecastScenario `json:"scenarios"`
	}
	if err := json.Unmarshal(data, &rev); err != nil {
		return fmt.Errorf("parsing revision: %w", err)
	}

	return a.predictions().UpdateProbability(fs.Arg(0), prediction.Revision{
		ArticleID: rev.ArticleID,
		Reason:    rev.Reason,
		Scenarios: rev.Scenarios,
	})
}

func (a *app) cmdJudge(args []string) error {
	fs := flag.NewFlagSet("judge", flag.ExitOnError)
	outcome := fs.String("outcome", "", "scenario label that occurred")
	note := fs.String("note", "", "resolution note")
	fs.Parse(args)
	if fs.NArg() != 1 || *outcome == "" {
		return fmt.Errorf("usage: judge <prediction-id> --outcome <label> [--note <text>]")
	}

	_, err := a.predictions().Judge(fs.Arg(0), *outcome, *note)
	return err
}

func (a *app) cmdAddLink(args []string) error {
	fs := flag.NewFlagSet("add-link", flag.ExitOnError)
	predictionID := fs.String("prediction-id", "", "prediction to link")
	marketID := fs.Int64("market-id", 0, "market row id from search")
	direction := fs.String("direction", "", "scenario confirmed by a market YES: pessimistic or optimistic")
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)
	if *predictionID == "" || *marketID == 0 || *direction == "" {
		return fmt.Errorf("usage: add-link --prediction-id <id> --market-id <n> --direction <pessimistic|optimistic>")
	}

	markets, closeDB, err := a.requireMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	err = markets.AddLink(market.Link{
		PredictionID: *predictionID,
		MarketID:     *marketID,
		Direction:    market.Direction(*direction),
		Notes:        *notes,
	})
	if err != nil {
		return err
	}
	slog.Info("link added", "prediction_id", *predictionID, "market_id", *marketID, "direction", *direction)
	return nil
}

func (a *app) cmdLinks(args []string) error {
	markets, closeDB, err := a.requireMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	links, err := markets.AllLinks()
	if err != nil {
		return err
	}
	if len(links) == 0 {
		slog.Info("no links configured")
		return nil
	}
	for _, l := range links {
		slog.Info("link",
			"prediction_id", l.PredictionID,
			"market_id", l.MarketID,
			"source", l.Source,
			"external_id", l.ExternalMarketID,
			"direction", l.Direction,
			"notes", l.Notes,
		)
	}
	return nil
}

func (a *app) cmdSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	limit := fs.Int("limit", 20, "maximum results")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: search <keyword> [--limit n]")
	}

	markets, closeDB, err := a.requireMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	results, err := markets.Search(fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		slog.Info("no markets matched", "keyword", fs.Arg(0))
		return nil
	}
	for _, r := range results {
		fields := []any{
			"market_id", r.Market.ID,
			"source", r.Market.Source,
			"question", r.Market.Question,
			"close_date", r.Market.CloseDate,
		}
		if r.Market.Resolved {
			fields = append(fields, "resolution", r.Market.Resolution)
		} else if r.HasSnapshot {
			fields = append(fields, "yes_prob", r.YesProb, "as_of", r.SnapshotDate)
		}
		slog.Info("market", fields...)
	}
	return nil
}

func (a *app) cmdStatus(args []string) error {
	var markets *market.Store
	if _, err := os.Stat(a.cfg.General.DBPath); err == nil {
		m, closeDB, err := a.openMarkets()
		if err != nil {
			return err
		}
		defer closeDB()
		markets = m
	}

	st, err := report.NewTracker(a.predictions(), markets, a.cfg.Verifier.StalenessDays).Status()
	if err != nil {
		return err
	}
	report.LogStatus(st)
	return nil
}

func (a *app) cmdOverdue(args []string) error {
	items, err := report.NewTracker(a.predictions(), nil, a.cfg.Verifier.StalenessDays).Overdue()
	if err != nil {
		return err
	}
	report.LogOverdue(items)
	return nil
}

func (a *app) cmdReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	quarter := fs.String("quarter", "", "restrict to one quarter, e.g. 2026-Q1")
	fs.Parse(args)

	r, err := report.NewTracker(a.predictions(), nil, a.cfg.Verifier.StalenessDays).Generate(*quarter)
	if err != nil {
		return err
	}
	report.LogReport(r)
	return nil
}

func (a *app) cmdRun(ctx context.Context, args []string) error {
	gen, err := a.generator()
	if err != nil {
		return err
	}
	markets, closeDB, err := a.openMarkets()
	if err != nil {
		return err
	}
	defer closeDB()

	notifier := a.notifier()
	ingestor := ingest.NewIngestor(a.sources(), markets, a.cfg.Ingest)
	resolver := resolve.New(a.predictions(), markets, gen, notifier, a.cfg.Resolver, false)
	verifier := verify.New(a.predictions(), gen, notifier, a.cfg.Verifier,
		a.cfg.Verifier.AutoApply, false, false)

	sched := scheduler.New(scheduler.Jobs{
		Ingest: ingestor.Run,
		Resolve: func(ctx context.Context) error {
			_, err := resolver.Run(ctx)
			return err
		},
		Verify: func(ctx context.Context) error {
			_, err := verifier.Run(ctx)
			return err
		},
	}, a.cfg.Schedule)

	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	slog.Info("foresight stopped")
	return nil
}
