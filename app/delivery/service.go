package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
)

// Registry resolves category profiles.
type Registry interface {
	Get(name string) (*categories.Profile, error)
}

// Service sends unsent postings to their category's topic and marks
// them delivered. One record's failure never aborts the batch.
type Service struct {
	registry       Registry
	store          database.JobStore
	transport      Transport
	location       string
	maxAgeDays     int
	sendDelay      time.Duration
	generalTopicID int64
}

func NewService(registry Registry, store database.JobStore, transport Transport,
	location string, maxAgeDays int, sendDelay time.Duration, generalTopicID int64) *Service {
	return &Service{
		registry:       registry,
		store:          store,
		transport:      transport,
		location:       location,
		maxAgeDays:     maxAgeDays,
		sendDelay:      sendDelay,
		generalTopicID: generalTopicID,
	}
}

// Run delivers the category's unsent postings, newest first, and marks
// the successful ones sent in a single batched update afterwards. It
// returns the number of successful sends.
func (s *Service) Run(ctx context.Context, categoryName string) (int, error) {
	profile, err := s.registry.Get(categoryName)
	if err != nil {
		return 0, err
	}

	jobs, err := s.store.GetUnsent(categoryName, s.maxAgeDays)
	if err != nil {
		return 0, fmt.Errorf("failed to load unsent jobs for '%s': %w", categoryName, err)
	}

	if len(jobs) == 0 {
		slog.Info("No unsent jobs", "category", categoryName)
		return 0, nil
	}

	slog.Info("Delivery started", "category", categoryName, "jobs", len(jobs), "topic_id", profile.TopicID)

	sentIDs := make([]int64, 0, len(jobs))
	failed := 0

	for i, job := range jobs {
		if err := s.sendJob(ctx, profile.TopicID, job, categoryName); err != nil {
			failed++
			slog.Warn("Failed to send job", "category", categoryName, "url", job.JobURL, "error", err)
		} else {
			sentIDs = append(sentIDs, job.ID)
		}

		if i < len(jobs)-1 {
			if err := s.pause(ctx); err != nil {
				break
			}
		}
	}

	// One batched update after the whole batch attempt; a crash before
	// this point leaves sent rows unmarked and they are reconciled by
	// the next cycle.
	marked, err := s.store.MarkSent(sentIDs)
	if err != nil {
		return len(sentIDs), fmt.Errorf("failed to mark jobs as sent: %w", err)
	}

	slog.Info("Delivery completed",
		"category", categoryName,
		"sent", len(sentIDs),
		"failed", failed,
		"marked", marked)

	return len(sentIDs), nil
}

// SendDigest renders the accumulated per-category counts and sends
// them to the overview topic.
func (s *Service) SendDigest(ctx context.Context, entries []DigestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	err := s.transport.Send(ctx, s.generalTopicID, FormatDigest(entries, true), true)
	var formatErr *FormatError
	if errors.As(err, &formatErr) {
		slog.Warn("Rich digest rejected, falling back to plain text", "error", err)
		err = s.transport.Send(ctx, s.generalTopicID, FormatDigest(entries, false), false)
	}
	if err != nil {
		return fmt.Errorf("failed to send digest: %w", err)
	}

	return nil
}

// sendJob tries the rich rendering first and retries once with the
// plain fallback when the transport refuses the formatting itself.
// Delivery failures are not retried here; the next cycle picks the
// record up again.
func (s *Service) sendJob(ctx context.Context, topicID int64, job database.Job, category string) error {
	err := s.transport.Send(ctx, topicID, FormatJobMessage(job, category, s.location), true)
	if err == nil {
		return nil
	}

	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		return err
	}

	slog.Debug("Rich message rejected, retrying as plain text", "url", job.JobURL, "error", err)

	return s.transport.Send(ctx, topicID, FormatJobMessagePlain(job, category, s.location), false)
}

func (s *Service) pause(ctx context.Context) error {
	if s.sendDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.sendDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
