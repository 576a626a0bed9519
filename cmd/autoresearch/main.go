package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/thinkscotty/autoresearch/internal/ai"
	"github.com/thinkscotty/autoresearch/internal/auth"
	"github.com/thinkscotty/autoresearch/internal/config"
	"github.com/thinkscotty/autoresearch/internal/database"
	"github.com/thinkscotty/autoresearch/internal/models"
	"github.com/thinkscotty/autoresearch/internal/pipeline"
	"github.com/thinkscotty/autoresearch/internal/scheduler"
	"github.com/thinkscotty/autoresearch/internal/scraper"
	"github.com/thinkscotty/autoresearch/internal/search"
	"github.com/thinkscotty/autoresearch/internal/server"
	"github.com/thinkscotty/autoresearch/internal/similarity"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	topic := flag.String("topic", "", "Research this topic once and print the article")
	title := flag.String("title", "", "Custom article title (with -topic)")
	outPath := flag.String("out", "", "Write the article to this file instead of stdout (with -topic)")
	serve := flag.Bool("serve", false, "Run the research API and background scheduler")
	rotateKey := flag.Bool("rotate-key", false, "Generate a new API key, store its hash and print it")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("AutoResearch %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	if *topic == "" && !*serve && !*rotateKey {
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	var logLevel slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting AutoResearch", "version", version)

	// Initialize database
	db, err := database.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Database initialized", "path", cfg.Database.Path)

	if err := db.SetSettings(cfg.Settings()); err != nil {
		slog.Error("Failed to store provider settings", "error", err)
		os.Exit(1)
	}

	if *rotateKey {
		if err := runRotateKey(db); err != nil {
			slog.Error("Failed to rotate API key", "error", err)
			os.Exit(1)
		}
		if *topic == "" && !*serve {
			return
		}
	}

	// Initialize services
	aiClient := ai.NewClient(db, db)
	searchClient := search.NewClient(db, cfg.Scraper.UserAgent)
	sc := scraper.New(cfg.Scraper)
	sim := similarity.New(cfg.Similarity.Threshold, cfg.Similarity.NGramSize)
	pipe := pipeline.New(pipeline.Deps{
		Searcher:  searchClient,
		Scraper:   sc,
		Generator: aiClient,
		Dedupe:    sim,
	}, pipeline.OptionsFromConfig(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *topic != "" {
		code := runOnce(ctx, pipe, *topic, *title, *outPath)
		if !*serve || code != 0 {
			cancel()
			db.Close()
			os.Exit(code)
		}
	}

	runService(ctx, cfg, db, pipe)
}

// runOnce researches a single topic and writes the article to stdout or outPath.
func runOnce(ctx context.Context, pipe *pipeline.Pipeline, topic, title, outPath string) int {
	slog.Info("Researching topic", "topic", topic)
	res := pipe.Run(ctx, topic, title)
	if !res.Success {
		fmt.Fprintf(os.Stderr, "Research failed for %q: %s\n", res.Topic, res.Error)
		return 1
	}

	if outPath == "" {
		fmt.Println(res.FinalArticle)
	} else if err := os.WriteFile(outPath, []byte(res.FinalArticle+"\n"), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Write %s: %s\n", outPath, err)
		return 1
	}

	fmt.Fprintln(os.Stderr, summary(res, outPath))
	return 0
}

func summary(res models.Result, outPath string) string {
	words := len(strings.Fields(res.FinalArticle))
	dest := "stdout"
	if outPath != "" {
		dest = outPath
	}
	return fmt.Sprintf("%q: %s words (%s) from %s sources and %s facts in %s, written to %s",
		res.Title,
		humanize.Comma(int64(words)),
		humanize.Bytes(uint64(len(res.FinalArticle))),
		humanize.Comma(int64(res.SourcesUsed)),
		humanize.Comma(int64(res.ResearchFacts)),
		time.Duration(res.DurationMS*int64(time.Millisecond)).Round(time.Millisecond),
		dest,
	)
}

// runService starts the scheduler and the HTTP API and blocks until ctx is
// cancelled by a signal.
func runService(ctx context.Context, cfg config.Config, db *database.DB, pipe *pipeline.Pipeline) {
	if n, err := db.ResetRunning(); err != nil {
		slog.Error("Failed to requeue interrupted runs", "error", err)
	} else if n > 0 {
		slog.Info("Requeued interrupted runs", "count", n)
	}

	if _, err := db.GetSetting(server.APIKeyHashSetting); err != nil {
		slog.Warn("No API key configured, API requests will be rejected until -rotate-key is run")
	}

	sched := scheduler.New(db, pipe,
		time.Duration(cfg.Scheduler.IntervalSeconds)*time.Second,
		cfg.Scheduler.MaxConcurrentRuns)
	srv := server.New(cfg, db, sched, version)

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
	<-schedDone
}

func runRotateKey(db *database.DB) error {
	key, hash, err := auth.NewKey()
	if err != nil {
		return err
	}
	if err := db.SetSetting(server.APIKeyHashSetting, hash); err != nil {
		return err
	}
	fmt.Printf("New API key (shown once): %s\n", key)
	return nil
}
