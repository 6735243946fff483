package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/france-chomage/jobcomb/app/categories"
)

// Options tunes the retry and anti-throttling behavior of the
// orchestrator. Zero delays are valid and keep tests fast.
type Options struct {
	MaxRetries     int
	RetryDelayBase time.Duration
	DelayMin       time.Duration
	DelayMax       time.Duration
	AttemptTimeout time.Duration
	ResultsWanted  int
	Location       string
}

// Orchestrator turns one category profile into zero or more candidate
// records, absorbing the unreliability of the external sources. Every
// retryable condition is swallowed: after the attempt budget is spent
// it returns an empty batch, never an error.
type Orchestrator struct {
	sites           []Site
	env             Environment
	forceAllSources bool
	opts            Options
}

func NewOrchestrator(sites []Site, env Environment, forceAllSources bool, opts Options) *Orchestrator {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Orchestrator{
		sites:           sites,
		env:             env,
		forceAllSources: forceAllSources,
		opts:            opts,
	}
}

// Fetch runs the retrying fetch cycle for the profile. The returned
// error is non-nil only for context cancellation; exhausted retries
// yield an empty slice.
func (o *Orchestrator) Fetch(ctx context.Context, profile *categories.Profile) ([]Job, error) {
	sites := o.activeSites(profile)
	if len(sites) == 0 {
		slog.Warn("No active sites for category", "category", profile.Name)
		return nil, nil
	}

	query := Query{
		SearchTerms:   profile.SearchTerms,
		Location:      o.opts.Location,
		ResultsWanted: o.opts.ResultsWanted,
	}
	if profile.MaxResults > 0 {
		query.ResultsWanted = profile.MaxResults
	}

	slog.Info("Fetch started",
		"category", profile.Name,
		"terms", profile.SearchTerms,
		"sites", siteNames(sites),
		"results_wanted", query.ResultsWanted)

	for attempt := 1; attempt <= o.opts.MaxRetries; attempt++ {
		if err := o.sleep(ctx, o.randomDelay()); err != nil {
			return nil, err
		}

		jobs, err := o.attempt(ctx, sites, query)

		var blocked *BlockedError
		if errors.As(err, &blocked) && len(sites) > 1 {
			fallback := withoutSite(sites, blocked.Site)
			slog.Warn("Source blocked the request, narrowing to fallback sites",
				"category", profile.Name, "blocked", blocked.Site, "fallback", siteNames(fallback))
			jobs, err = o.attempt(ctx, fallback, query)
		}

		if len(jobs) > 0 {
			valid := o.normalize(profile.Name, jobs)
			if len(valid) > 0 {
				slog.Info("Fetch succeeded", "category", profile.Name, "attempt", attempt, "records", len(valid))
				return valid, nil
			}
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if err != nil {
			slog.Warn("Fetch attempt failed", "category", profile.Name, "attempt", attempt, "error", err)
			if attempt < o.opts.MaxRetries {
				backoff := o.opts.RetryDelayBase * time.Duration(attempt)
				if err := o.sleep(ctx, backoff); err != nil {
					return nil, err
				}
			}
		} else {
			slog.Warn("Fetch attempt returned no records", "category", profile.Name, "attempt", attempt)
		}
	}

	slog.Warn("All fetch attempts exhausted", "category", profile.Name, "attempts", o.opts.MaxRetries)

	return nil, nil
}

// attempt queries every site in the set and aggregates the rows. A
// BlockedError is only surfaced when the whole attempt produced
// nothing, so the caller can decide to narrow the site set.
func (o *Orchestrator) attempt(ctx context.Context, sites []Site, query Query) ([]Job, error) {
	attemptCtx := ctx
	if o.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.opts.AttemptTimeout)
		defer cancel()
	}

	var jobs []Job
	var firstErr error

	for _, site := range sites {
		rows, err := site.Search(attemptCtx, query)
		if err != nil {
			slog.Debug("Site search failed", "site", site.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
			var blocked *BlockedError
			if errors.As(err, &blocked) {
				firstErr = err
			}
			continue
		}
		jobs = append(jobs, rows...)
	}

	if len(jobs) > 0 {
		return jobs, nil
	}

	return nil, firstErr
}

// normalize validates raw rows and drops the ones missing a URL or
// posting date. Drops are counted, not fatal.
func (o *Orchestrator) normalize(category string, jobs []Job) []Job {
	valid := make([]Job, 0, len(jobs))
	dropped := 0

	for _, job := range jobs {
		job.Title = strings.TrimSpace(job.Title)
		job.Company = strings.TrimSpace(job.Company)
		job.Location = strings.TrimSpace(job.Location)

		if !job.Valid() {
			dropped++
			continue
		}
		valid = append(valid, job)
	}

	if dropped > 0 {
		slog.Warn("Dropped malformed records", "category", category, "dropped", dropped)
	}

	return valid
}

// activeSites resolves the site set for a profile: custom strategy
// first, then the environment reliability filter.
func (o *Orchestrator) activeSites(profile *categories.Profile) []Site {
	sites := o.sites

	if profile.Strategy != "" {
		if strategy, ok := strategyFor(profile.Strategy); ok {
			sites = strategy.Select(sites)
		}
	}

	if o.forceAllSources {
		return sites
	}

	reliable := make([]Site, 0, len(sites))
	for _, site := range sites {
		if site.ReliableIn(o.env) {
			reliable = append(reliable, site)
		}
	}

	// A strategy pinned to a single unreliable site still runs it; an
	// empty set would silence the category entirely.
	if len(reliable) == 0 {
		return sites
	}

	return reliable
}

func (o *Orchestrator) randomDelay() time.Duration {
	if o.opts.DelayMax <= o.opts.DelayMin {
		return o.opts.DelayMin
	}
	return o.opts.DelayMin + time.Duration(rand.Int63n(int64(o.opts.DelayMax-o.opts.DelayMin)))
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func withoutSite(sites []Site, name string) []Site {
	remaining := make([]Site, 0, len(sites))
	for _, site := range sites {
		if site.Name() != name {
			remaining = append(remaining, site)
		}
	}
	return remaining
}

func siteNames(sites []Site) []string {
	names := make([]string, 0, len(sites))
	for _, site := range sites {
		names = append(names, site.Name())
	}
	return names
}
