package database

import (
	"fmt"
	"log/slog"
	"sync"
)

var _ JobStore = (*Store)(nil)

// Store wraps the repository with an in-process dedup cache of recently
// seen job URLs. The cache only short-circuits lookups; the unique
// index on job_url remains the authority, so it is safe for the cache
// to be stale or empty.
type Store struct {
	repo            *JobRepository
	cacheWindowDays int

	mu          sync.Mutex
	cache       map[string]bool
	cacheLoaded bool
}

func NewStore(repo *JobRepository, cacheWindowDays int) *Store {
	return &Store{
		repo:            repo,
		cacheWindowDays: cacheWindowDays,
		cache:           make(map[string]bool),
	}
}

func (s *Store) CreateIfNew(job Job) (*Job, bool, error) {
	if err := s.ensureCacheLoaded(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	known := s.cache[job.JobURL]
	s.mu.Unlock()

	if known {
		return nil, false, nil
	}

	stored, created, err := s.repo.Insert(job)
	if err != nil {
		return nil, false, err
	}

	// Either we created the row or another category got there first;
	// in both cases the URL is now known.
	s.mu.Lock()
	s.cache[job.JobURL] = true
	s.mu.Unlock()

	if !created {
		return nil, false, nil
	}

	return stored, true, nil
}

func (s *Store) GetUnsent(category string, maxAgeDays int) ([]Job, error) {
	return s.repo.GetUnsent(category, maxAgeDays)
}

func (s *Store) MarkSent(ids []int64) (int, error) {
	return s.repo.MarkSent(ids)
}

func (s *Store) PurgeOlderThan(days int) (int, error) {
	return s.repo.PurgeOlderThan(days)
}

func (s *Store) Stats(days int) (*Stats, error) {
	return s.repo.Stats(days)
}

func (s *Store) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]bool)
	s.cacheLoaded = false
	s.mu.Unlock()

	slog.Debug("Dedup cache cleared")
}

func (s *Store) ensureCacheLoaded() error {
	s.mu.Lock()
	loaded := s.cacheLoaded
	s.mu.Unlock()

	if loaded {
		return nil
	}

	urls, err := s.repo.RecentURLs(s.cacheWindowDays)
	if err != nil {
		return fmt.Errorf("failed to load dedup cache: %w", err)
	}

	s.mu.Lock()
	for _, url := range urls {
		s.cache[url] = true
	}
	s.cacheLoaded = true
	s.mu.Unlock()

	slog.Debug("Dedup cache loaded", "urls", len(urls), "window_days", s.cacheWindowDays)

	return nil
}
