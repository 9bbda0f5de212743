package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	"github.com/robfig/cron/v3"

	"clipcast/internal/app"
)

type cliFlags struct {
	runOnce      bool
	runChannel   string
	listChannels bool
	importFile   string
	resetHistory string
	resetAll     bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.BoolVar(&f.runOnce, "run-once", false, "run one full cycle and exit")
	flag.StringVar(&f.runChannel, "run-channel", "", "process a single channel and exit")
	flag.BoolVar(&f.listChannels, "list-channels", false, "print configured channels and exit")
	flag.StringVar(&f.importFile, "import", "", "import channels from a YAML file and exit")
	flag.StringVar(&f.resetHistory, "reset-history", "", "clear upload history for a channel and exit")
	flag.BoolVar(&f.resetAll, "reset-all-history", false, "clear upload history for all channels and exit")
	flag.Parse()
	return f
}

func main() {
	log.SetFlags(0)

	flags := parseFlags()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	if !app.HasExecutable(cfg.YtDlpBinary) {
		log.Printf("Warning: %s not found in PATH, source-mode channels will fail", cfg.YtDlpBinary)
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Fatalf("Failed to initialize sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal(err)
	}
	log.Println("Initialized database")

	var ledger app.Ledger = store
	if cfg.LedgerBackend == app.BackendFile {
		fileLedger, err := app.NewFileLedger(cfg.LedgerFilePath)
		if err != nil {
			log.Fatal(err)
		}
		ledger = fileLedger
		log.Printf("Using file ledger at %s", cfg.LedgerFilePath)
	}

	// One-shot administrative modes that need no collaborators.
	switch {
	case flags.importFile != "":
		count, err := app.ImportChannels(ctx, store, flags.importFile)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Imported %d channel(s)", count)
		return
	case flags.listChannels:
		listChannelsCmd(ctx, store)
		return
	case flags.resetAll:
		if err := ledger.Reset(ctx, ""); err != nil {
			log.Fatal(err)
		}
		log.Println("Upload history cleared for all channels")
		return
	case flags.resetHistory != "":
		if err := ledger.Reset(ctx, flags.resetHistory); err != nil {
			log.Fatal(err)
		}
		log.Printf("Upload history cleared for %s", flags.resetHistory)
		return
	}

	if cfg.ChannelsFile != "" {
		count, err := app.ImportChannels(ctx, store, cfg.ChannelsFile)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Seeded %d channel(s) from %s", count, cfg.ChannelsFile)
	}

	notifier, bot := buildNotifier(ctx, cfg)

	var generator app.Generator
	if cfg.GeneratorCommand != "" {
		generator, err = app.NewPipelineGenerator(cfg.GeneratorCommand, cfg.OutputDir)
		if err != nil {
			log.Fatal(err)
		}
	}

	processor := &app.Processor{
		Ledger:      ledger,
		Limiter:     &app.RateLimiter{Ledger: ledger},
		Dedup:       &app.Deduplicator{Ledger: ledger},
		Source:      app.NewYtDlpSource(cfg.YtDlpBinary, 2*time.Second),
		Generator:   generator,
		Publisher:   app.NewBrowserPublisher(cfg.UploaderScript, cfg.Headless),
		Notifier:    notifier,
		DownloadDir: cfg.DownloadDir,
		FetchLimit:  cfg.FetchLimit,
	}
	runner := app.NewRunner(store, processor)
	stats := app.NewStatsService(store, ledger)

	switch {
	case flags.runOnce:
		result, err := runner.RunCycle(ctx)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Cycle finished: %d published, %d failed", result.Published, result.Failed)
		return
	case flags.runChannel != "":
		published, err := runner.RunSingle(ctx, flags.runChannel)
		if err != nil {
			log.Fatal(err)
		}
		if published {
			log.Printf("Published a video on %s", flags.runChannel)
		} else {
			log.Printf("Nothing published on %s", flags.runChannel)
		}
		return
	}

	runDaemon(ctx, cfg, store, ledger, runner, stats, notifier, bot)
}

// buildNotifier wires Telegram when a token is configured; otherwise every
// notification goes to the log.
func buildNotifier(ctx context.Context, cfg app.Config) (app.Notifier, *telego.Bot) {
	if cfg.TelegramToken == "" {
		return app.NopNotifier{}, nil
	}
	var bot *telego.Bot
	var err error
	if cfg.Debug {
		bot, err = telego.NewBot(cfg.TelegramToken, telego.WithDefaultDebugLogger())
	} else {
		bot, err = telego.NewBot(cfg.TelegramToken, telego.WithDefaultLogger(false, false))
	}
	if err != nil {
		sentry.CaptureException(err)
		log.Fatalf("Failed to create telego bot: %v", err)
	}
	return app.NewTelegramNotifier(bot, cfg.AdminChatID), bot
}

func runDaemon(ctx context.Context, cfg app.Config, store *app.SQLiteStore, ledger app.Ledger,
	runner *app.Runner, stats *app.StatsService, notifier app.Notifier, bot *telego.Bot) {

	server := app.NewServer(store, ledger, runner, stats, notifier)
	go func() {
		if err := server.Listen(cfg.HTTPAddr); err != nil {
			log.Fatalf("Admin API failed: %v", err)
		}
	}()

	if bot != nil {
		adminBot := app.NewAdminBot(bot, cfg.AdminChatID, runner, stats, ledger)
		go func() {
			if err := adminBot.Run(ctx); err != nil {
				log.Printf("Admin bot stopped: %v", err)
				sentry.CaptureException(err)
			}
		}()
	}

	sweeper := app.NewSweeper(cfg.CleanupMaxAge, cfg.DownloadDir, cfg.OutputDir)
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := sched.AddFunc("@daily", sweeper.Sweep); err != nil {
		log.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	loop := &app.Loop{
		Runner:   runner,
		Interval: cfg.CycleInterval,
		Backoff:  cfg.ErrorBackoff,
	}
	log.Printf("Scheduler started, cycle every %s", cfg.CycleInterval)
	loop.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Admin API shutdown: %v", err)
	}
	log.Println("Shutdown complete")
}

func listChannelsCmd(ctx context.Context, store *app.SQLiteStore) {
	channels, err := store.ListChannels(ctx)
	if err != nil {
		log.Fatal(err)
	}
	if len(channels) == 0 {
		log.Println("No channels configured")
		return
	}
	for _, ch := range channels {
		detail := fmt.Sprintf("%d source(s)", len(ch.Sources))
		if ch.Mode == app.ModeGenerated {
			detail = fmt.Sprintf("%d topic(s), lang %s", len(ch.Topics), ch.Lang)
		}
		fmt.Fprintf(os.Stdout, "%s\t%s\t%d/day, min delay %s\t%s\n",
			ch.ChannelName, ch.Mode, ch.UploadsPerDay, ch.MinDelay(), detail)
	}
}
