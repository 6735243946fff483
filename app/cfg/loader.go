package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Telegram transport
	TelegramBotToken string `long:"telegram-bot-token" env:"TELEGRAM_BOT_TOKEN" description:"Telegram bot token (required)" required:"true"`
	TelegramGroupID  string `long:"telegram-group-id" env:"TELEGRAM_GROUP_ID" description:"Telegram group chat ID (required)" required:"true"`
	GeneralTopicID   int64  `long:"general-topic-id" env:"GENERAL_TOPIC_ID" default:"1" description:"Topic ID for the daily digest"`

	// Storage
	DBPath         string `long:"db-path" env:"DB_PATH" default:"./jobcomb.db" description:"Path to the sqlite database file"`
	CategoriesFile string `long:"categories-file" env:"CATEGORIES_FILE" default:"./categories.yml" description:"Path to the category configuration file"`

	// Scraping
	ResultsWanted    int     `long:"results-wanted" env:"RESULTS_WANTED" default:"15" description:"Default number of results requested per fetch"`
	Location         string  `long:"location" env:"LOCATION" default:"Paris" description:"Search location"`
	MaxRetries       int     `long:"max-retries" env:"MAX_RETRIES" default:"3" description:"Fetch attempts per cycle"`
	RetryDelayBase   int     `long:"retry-delay-base" env:"RETRY_DELAY_BASE" default:"10" description:"Base delay between failed fetch attempts in seconds"`
	ScrapeDelayMin   float64 `long:"scrape-delay-min" env:"SCRAPE_DELAY_MIN" default:"1.0" description:"Minimum anti-throttling delay before a fetch attempt in seconds"`
	ScrapeDelayMax   float64 `long:"scrape-delay-max" env:"SCRAPE_DELAY_MAX" default:"3.0" description:"Maximum anti-throttling delay before a fetch attempt in seconds"`
	FetchTimeout     int     `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"60" description:"Wall-clock budget per fetch attempt in seconds"`
	AdzunaAppID      string  `long:"adzuna-app-id" env:"ADZUNA_APP_ID" description:"Adzuna API application ID"`
	AdzunaAppKey     string  `long:"adzuna-app-key" env:"ADZUNA_APP_KEY" description:"Adzuna API application key"`
	AdzunaCountry    string  `long:"adzuna-country" env:"ADZUNA_COUNTRY" default:"fr" description:"Adzuna country code"`
	AdzunaMaxResults int     `long:"adzuna-max-results" env:"ADZUNA_MAX_RESULTS" default:"10" description:"Result cap for Adzuna requests"`
	ForceAllSources  bool    `long:"force-all-sources" env:"FORCE_ALL_SOURCES" description:"Use all job sources even in containerized environments"`

	// Retention
	MaxAgeDays      int `long:"max-age-days" env:"MAX_AGE_DAYS" default:"30" description:"Only store and deliver postings newer than this many days"`
	RetentionDays   int `long:"retention-days" env:"RETENTION_DAYS" default:"90" description:"Delete postings older than this many days"`
	CacheWindowDays int `long:"cache-window-days" env:"CACHE_WINDOW_DAYS" default:"7" description:"Window of recent postings preloaded into the dedup cache"`

	// Scheduling
	SkipStartupRun bool    `long:"skip-startup-run" env:"SKIP_INIT_JOB" description:"Skip the fetch+deliver pass at process start"`
	DigestHour     int     `long:"digest-hour" env:"DIGEST_HOUR" default:"21" description:"Hour of the daily digest (0-23)"`
	SendDelay      float64 `long:"send-delay" env:"SEND_DELAY" default:"2.0" description:"Delay between Telegram sends in seconds"`

	// HTTP server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Job Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"Europe/Paris" description:"Timezone for schedule triggers and timestamps"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Args struct {
		Command  string `positional-arg-name:"command" description:"serve (default), ingest, send, workflow, status or purge"`
		Category string `positional-arg-name:"category" description:"Category name for ingest/send/workflow"`
	} `positional-args:"yes"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		TelegramBotToken: raw.TelegramBotToken,
		TelegramGroupID:  raw.TelegramGroupID,
		GeneralTopicID:   raw.GeneralTopicID,
		DBPath:           raw.DBPath,
		CategoriesFile:   raw.CategoriesFile,
		ResultsWanted:    raw.ResultsWanted,
		Location:         raw.Location,
		MaxRetries:       raw.MaxRetries,
		RetryDelayBase:   raw.RetryDelayBase,
		ScrapeDelayMin:   raw.ScrapeDelayMin,
		ScrapeDelayMax:   raw.ScrapeDelayMax,
		FetchTimeout:     raw.FetchTimeout,
		AdzunaAppID:      raw.AdzunaAppID,
		AdzunaAppKey:     raw.AdzunaAppKey,
		AdzunaCountry:    raw.AdzunaCountry,
		AdzunaMaxResults: raw.AdzunaMaxResults,
		ForceAllSources:  raw.ForceAllSources,
		MaxAgeDays:       raw.MaxAgeDays,
		RetentionDays:    raw.RetentionDays,
		CacheWindowDays:  raw.CacheWindowDays,
		SkipStartupRun:   raw.SkipStartupRun,
		DigestHour:       raw.DigestHour,
		SendDelay:        raw.SendDelay,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
		Command:          raw.Args.Command,
		Category:         raw.Args.Category,
	}

	if cfg.DigestHour < 0 || cfg.DigestHour > 23 {
		return nil, fmt.Errorf("digest hour must be between 0 and 23, got %d", cfg.DigestHour)
	}
	if cfg.ScrapeDelayMax < cfg.ScrapeDelayMin {
		return nil, fmt.Errorf("scrape delay max (%.1f) must not be lower than min (%.1f)", cfg.ScrapeDelayMax, cfg.ScrapeDelayMin)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
