package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
	"github.com/france-chomage/jobcomb/app/scrape"
)

// Registry resolves category profiles.
type Registry interface {
	Get(name string) (*categories.Profile, error)
}

// Fetcher produces candidate records for a profile. An exhausted fetch
// is an empty slice, not an error.
type Fetcher interface {
	Fetch(ctx context.Context, profile *categories.Profile) ([]scrape.Job, error)
}

// Extractor recovers a posting description from its page.
type Extractor interface {
	Run(ctx context.Context, pageURL string) (string, error)
}

// Counts summarizes one ingestion cycle.
type Counts struct {
	Fetched     int
	Stored      int
	Duplicates  int
	RejectedOld int
}

// Service runs the fetch-and-persist half of a category cycle.
type Service struct {
	registry   Registry
	fetcher    Fetcher
	store      database.JobStore
	extractor  Extractor
	maxAgeDays int
}

func NewService(registry Registry, fetcher Fetcher, store database.JobStore, extractor Extractor, maxAgeDays int) *Service {
	return &Service{
		registry:   registry,
		fetcher:    fetcher,
		store:      store,
		extractor:  extractor,
		maxAgeDays: maxAgeDays,
	}
}

// Run fetches candidates for the category and persists the new, recent
// ones. An empty fetch is a normal outcome; only configuration and
// storage errors propagate.
func (s *Service) Run(ctx context.Context, categoryName string) (Counts, error) {
	var counts Counts

	profile, err := s.registry.Get(categoryName)
	if err != nil {
		return counts, err
	}

	jobs, err := s.fetcher.Fetch(ctx, profile)
	if err != nil {
		return counts, fmt.Errorf("fetch failed for category '%s': %w", categoryName, err)
	}
	counts.Fetched = len(jobs)

	// Posting dates carry day precision; a posting exactly at the
	// cutoff is retained.
	cutoff := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -s.maxAgeDays)

	for _, job := range jobs {
		if job.DatePosted.Before(cutoff) {
			counts.RejectedOld++
			continue
		}

		if s.extractor != nil && profile.ExtractDescriptions && job.Description == "" {
			description, err := s.extractor.Run(ctx, job.JobURL)
			if err != nil {
				slog.Debug("Description extraction failed", "url", job.JobURL, "error", err)
			} else {
				job.Description = description
			}
		}

		_, created, err := s.store.CreateIfNew(toStoredJob(job, categoryName))
		if err != nil {
			return counts, fmt.Errorf("failed to store job '%s': %w", job.JobURL, err)
		}

		if created {
			counts.Stored++
		} else {
			counts.Duplicates++
		}
	}

	slog.Info("Ingestion completed",
		"category", categoryName,
		"fetched", counts.Fetched,
		"stored", counts.Stored,
		"duplicates", counts.Duplicates,
		"rejected_old", counts.RejectedOld)

	return counts, nil
}

func toStoredJob(job scrape.Job, category string) database.Job {
	return database.Job{
		Title:           job.Title,
		Company:         job.Company,
		Location:        job.Location,
		DatePosted:      job.DatePosted,
		JobURL:          job.JobURL,
		Site:            job.Site,
		SalaryText:      job.SalaryText,
		Description:     job.Description,
		IsRemote:        job.IsRemote,
		JobType:         job.JobType,
		CompanyIndustry: job.CompanyIndustry,
		ExperienceRange: job.ExperienceRange,
		Category:        category,
	}
}
