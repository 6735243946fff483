package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/france-chomage/jobcomb/app/api"
	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/cfg"
	"github.com/france-chomage/jobcomb/app/database"
	"github.com/france-chomage/jobcomb/app/delivery"
	"github.com/france-chomage/jobcomb/app/ingest"
	"github.com/france-chomage/jobcomb/app/scrape"
	"github.com/france-chomage/jobcomb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if err := run(appCfg); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Job Comb", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if dirty {
		return fmt.Errorf("database schema is dirty at version %d, manual intervention required", version)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version)

	registry := categories.NewRegistry(appCfg.CategoriesFile, scrape.KnownStrategies())
	if err := registry.Load(); err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}

	env := scrape.DetectEnvironment()
	sites := []scrape.Site{
		scrape.NewAdzunaSite(appCfg.AdzunaAppID, appCfg.AdzunaAppKey,
			appCfg.AdzunaCountry, appCfg.AdzunaMaxResults, appCfg.UserAgent),
		scrape.NewRemoteOKSite(appCfg.UserAgent),
	}
	orchestrator := scrape.NewOrchestrator(sites, env, appCfg.ForceAllSources, scrape.Options{
		MaxRetries:     appCfg.MaxRetries,
		RetryDelayBase: time.Duration(appCfg.RetryDelayBase) * time.Second,
		DelayMin:       secondsDuration(appCfg.ScrapeDelayMin),
		DelayMax:       secondsDuration(appCfg.ScrapeDelayMax),
		AttemptTimeout: time.Duration(appCfg.FetchTimeout) * time.Second,
		ResultsWanted:  appCfg.ResultsWanted,
		Location:       appCfg.Location,
	})

	store := database.NewStore(database.NewJobRepository(db), appCfg.CacheWindowDays)
	extractor := scrape.NewDescriptionExtractor(appCfg.UserAgent)
	ingestSvc := ingest.NewService(registry, orchestrator, store, extractor, appCfg.MaxAgeDays)

	transport := delivery.NewTelegramClient(appCfg.TelegramBotToken, appCfg.TelegramGroupID)
	deliverySvc := delivery.NewService(registry, store, transport, appCfg.Location,
		appCfg.MaxAgeDays, secondsDuration(appCfg.SendDelay), appCfg.GeneralTopicID)

	scheduler := tasks.NewScheduler(registry, ingestSvc, deliverySvc, store,
		appCfg.DigestHour, appCfg.RetentionDays)

	switch appCfg.Command {
	case "", "serve":
		return serve(appCfg, registry, store, scheduler)
	case "ingest":
		return runIngest(appCfg, ingestSvc)
	case "send":
		return runSend(appCfg, deliverySvc)
	case "workflow":
		if err := runIngest(appCfg, ingestSvc); err != nil {
			return err
		}
		return runSend(appCfg, deliverySvc)
	case "status":
		return printStatus(store)
	case "purge":
		deleted, err := store.PurgeOlderThan(appCfg.RetentionDays)
		if err != nil {
			return err
		}
		slog.Info("Purge completed", "deleted", deleted, "retention_days", appCfg.RetentionDays)
		return nil
	default:
		return fmt.Errorf("unknown command '%s'", appCfg.Command)
	}
}

func serve(appCfg *cfg.Cfg, registry *categories.Registry, store database.JobStore,
	scheduler *tasks.Scheduler) error {

	if err := scheduler.ScheduleAll(); err != nil {
		return err
	}

	handler := api.NewHandler(registry, store, scheduler, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	scheduler.RunStartup(appCfg.SkipStartupRun)
	scheduler.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()

	slog.Info("Shutdown complete")
	return nil
}

func runIngest(appCfg *cfg.Cfg, ingestSvc *ingest.Service) error {
	if appCfg.Category == "" {
		return fmt.Errorf("command '%s' requires a category name", appCfg.Command)
	}

	counts, err := ingestSvc.Run(context.Background(), appCfg.Category)
	if err != nil {
		return err
	}

	fmt.Printf("Fetched %d, stored %d, duplicates %d, rejected %d\n",
		counts.Fetched, counts.Stored, counts.Duplicates, counts.RejectedOld)
	return nil
}

func runSend(appCfg *cfg.Cfg, deliverySvc *delivery.Service) error {
	if appCfg.Category == "" {
		return fmt.Errorf("command '%s' requires a category name", appCfg.Command)
	}

	sent, err := deliverySvc.Run(context.Background(), appCfg.Category)
	if err != nil {
		return err
	}

	fmt.Printf("Sent %d postings\n", sent)
	return nil
}

func printStatus(store database.JobStore) error {
	stats, err := store.Stats(30)
	if err != nil {
		return err
	}

	fmt.Printf("Last %d days: %d stored, %d delivered, %d pending\n",
		stats.PeriodDays, stats.Total, stats.Delivered, stats.Pending)
	for name, cs := range stats.PerCategory {
		fmt.Printf("  %-20s total %4d  delivered %4d  pending %4d\n",
			name, cs.Total, cs.Delivered, cs.Pending)
	}
	return nil
}

func secondsDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
