package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
	"github.com/france-chomage/jobcomb/app/delivery"
	"github.com/france-chomage/jobcomb/app/ingest"
)

const cycleTimeout = 10 * time.Minute

// Registry lists the enabled category profiles.
type Registry interface {
	Enabled() []*categories.Profile
}

// IngestRunner runs one fetch cycle for a category.
type IngestRunner interface {
	Run(ctx context.Context, categoryName string) (ingest.Counts, error)
}

// DeliveryRunner runs one send cycle and ships the daily digest.
type DeliveryRunner interface {
	Run(ctx context.Context, categoryName string) (int, error)
	SendDigest(ctx context.Context, entries []delivery.DigestEntry) error
}

// Scheduler drives the per-category fetch and send cycles, the daily
// digest and the retention sweep. Each category's cycles are serialized
// behind a per-category mutex; categories never block each other.
type Scheduler struct {
	cron          *cron.Cron
	registry      Registry
	ingest        IngestRunner
	delivery      DeliveryRunner
	store         database.JobStore
	digest        *DigestAccumulator
	digestHour    int
	retentionDays int

	entryIDs []cron.EntryID

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewScheduler(registry Registry, ingestSvc IngestRunner, deliverySvc DeliveryRunner,
	store database.JobStore, digestHour, retentionDays int) *Scheduler {
	return &Scheduler{
		cron:          cron.New(cron.WithLocation(time.Local)),
		registry:      registry,
		ingest:        ingestSvc,
		delivery:      deliverySvc,
		store:         store,
		digest:        NewDigestAccumulator(),
		digestHour:    digestHour,
		retentionDays: retentionDays,
		locks:         make(map[string]*sync.Mutex),
	}
}

// ScheduleAll registers independent fetch and send triggers for every
// enabled category, plus the daily digest and the retention sweep.
func (s *Scheduler) ScheduleAll() error {
	for _, profile := range s.registry.Enabled() {
		name := profile.Name

		id, err := s.cron.AddFunc(hoursSpec(profile.FetchHours), func() {
			s.RunFetchCycle(name)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule fetch for '%s': %w", name, err)
		}
		s.entryIDs = append(s.entryIDs, id)

		id, err = s.cron.AddFunc(hoursSpec(profile.SendHours), func() {
			s.RunSendCycle(name)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule send for '%s': %w", name, err)
		}
		s.entryIDs = append(s.entryIDs, id)

		slog.Info("Category scheduled",
			"category", name,
			"fetch_hours", profile.FetchHours,
			"send_hours", profile.SendHours)
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("5 %d * * *", s.digestHour), s.runDigest)
	if err != nil {
		return fmt.Errorf("failed to schedule digest: %w", err)
	}
	s.entryIDs = append(s.entryIDs, id)

	id, err = s.cron.AddFunc("30 3 * * *", s.runPurge)
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	s.entryIDs = append(s.entryIDs, id)

	return nil
}

// Reschedule drops all registered triggers and rebuilds them from the
// current registry contents, used after a configuration reload.
func (s *Scheduler) Reschedule() error {
	for _, id := range s.entryIDs {
		s.cron.Remove(id)
	}
	s.entryIDs = nil

	return s.ScheduleAll()
}

// RunStartup runs one fetch+send pass per enabled category
// sequentially, unless skipped.
func (s *Scheduler) RunStartup(skip bool) {
	if skip {
		slog.Info("Startup run skipped")
		return
	}

	profiles := s.registry.Enabled()
	slog.Info("Running startup pass", "categories", len(profiles))

	for _, profile := range profiles {
		s.RunFetchCycle(profile.Name)
		s.RunSendCycle(profile.Name)
	}

	slog.Info("Startup pass completed")
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "entries", len(s.entryIDs))
}

// Stop halts trigger firing and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

// IngestCategory runs one fetch cycle under the category's lock and
// returns its counts. Manual triggers go through here too, so a
// category never runs two cycles at once.
func (s *Scheduler) IngestCategory(ctx context.Context, name string) (ingest.Counts, error) {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	counts, err := s.ingest.Run(ctx, name)
	if err != nil {
		s.digest.AddError(name)
		return counts, err
	}

	s.digest.AddStored(name, counts.Stored)

	return counts, nil
}

// SendCategory runs one delivery cycle under the category's lock and
// returns the number of postings sent.
func (s *Scheduler) SendCategory(ctx context.Context, name string) (int, error) {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	sent, err := s.delivery.Run(ctx, name)

	// Partial failures still delivered something worth counting.
	if sent > 0 {
		s.digest.AddSent(name, sent)
	}
	if err != nil {
		s.digest.AddError(name)
	}

	return sent, err
}

// RunFetchCycle runs one ingestion cycle for the category. Errors and
// panics are absorbed into the digest counters; they never reach the
// cron loop.
func (s *Scheduler) RunFetchCycle(name string) {
	defer s.recoverCycle(name, "fetch")

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if _, err := s.IngestCategory(ctx, name); err != nil {
		slog.Error("Fetch cycle failed", "category", name, "error", err)
	}
}

// RunSendCycle runs one delivery cycle for the category.
func (s *Scheduler) RunSendCycle(name string) {
	defer s.recoverCycle(name, "send")

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if _, err := s.SendCategory(ctx, name); err != nil {
		slog.Error("Send cycle failed", "category", name, "error", err)
	}
}

func (s *Scheduler) runDigest() {
	entries := s.digest.Flush()
	if len(entries) == 0 {
		slog.Info("No activity since last digest")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if err := s.delivery.SendDigest(ctx, entries); err != nil {
		slog.Error("Digest send failed, keeping counts for the next run", "error", err)
		s.digest.Requeue(entries)
	}
}

func (s *Scheduler) runPurge() {
	deleted, err := s.store.PurgeOlderThan(s.retentionDays)
	if err != nil {
		slog.Error("Retention sweep failed", "error", err)
		return
	}

	slog.Info("Retention sweep completed", "deleted", deleted, "retention_days", s.retentionDays)
}

func (s *Scheduler) recoverCycle(name, kind string) {
	if r := recover(); r != nil {
		slog.Error("Cycle panicked", "category", name, "kind", kind, "panic", r)
		s.digest.AddError(name)
	}
}

func (s *Scheduler) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	return lock
}

// hoursSpec builds a cron spec firing at minute 0 of the given hours.
func hoursSpec(hours []int) string {
	sorted := make([]int, len(hours))
	copy(sorted, hours)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for _, hour := range sorted {
		parts = append(parts, strconv.Itoa(hour))
	}

	return fmt.Sprintf("0 %s * * *", strings.Join(parts, ","))
}
