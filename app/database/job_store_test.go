package database

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatal(err)
	}

	return NewStore(NewJobRepository(db), 7)
}

func testJob(url string, daysAgo int) Job {
	return Job{
		Title:      "Développeur Go",
		Company:    "ACME",
		Location:   "Paris",
		DatePosted: time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -daysAgo),
		JobURL:     url,
		Site:       "adzuna",
		Category:   "informatique",
	}
}

func TestCreateIfNew(t *testing.T) {
	store := newTestStore(t)

	stored, created, err := store.CreateIfNew(testJob("https://example.com/job/1", 0))
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Expected first insert to create a row")
	}
	if stored == nil || stored.ID == 0 {
		t.Error("Expected stored job with assigned ID")
	}
}

func TestCreateIfNewDuplicateURL(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.CreateIfNew(testJob("https://example.com/job/1", 0)); err != nil {
		t.Fatal(err)
	}

	// Same URL under a different category must still be a duplicate.
	dup := testJob("https://example.com/job/1", 0)
	dup.Category = "design"

	stored, created, err := store.CreateIfNew(dup)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected duplicate URL to be rejected")
	}
	if stored != nil {
		t.Error("Expected nil job for duplicate insert")
	}
}

func TestCreateIfNewDuplicateSurvivesCacheClear(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.CreateIfNew(testJob("https://example.com/job/1", 0)); err != nil {
		t.Fatal(err)
	}

	// With the cache gone the unique index is the remaining authority.
	store.ClearCache()

	_, created, err := store.CreateIfNew(testJob("https://example.com/job/1", 0))
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("Expected duplicate to be rejected by the unique index after cache clear")
	}
}

func TestCreateIfNewConcurrent(t *testing.T) {
	store := newTestStore(t)

	const workers = 8
	results := make(chan bool, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := store.CreateIfNew(testJob("https://example.com/job/race", 0))
			if err != nil {
				t.Error(err)
				return
			}
			results <- created
		}()
	}
	wg.Wait()
	close(results)

	createdCount := 0
	for created := range results {
		if created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Errorf("Expected exactly 1 successful create, got %d", createdCount)
	}
}

func TestGetUnsentOrderingAndWindow(t *testing.T) {
	store := newTestStore(t)

	urls := map[string]int{
		"https://example.com/job/old":    40, // outside the 30 day window
		"https://example.com/job/recent": 1,
		"https://example.com/job/newest": 0,
		"https://example.com/job/middle": 5,
	}
	for url, age := range urls {
		if _, _, err := store.CreateIfNew(testJob(url, age)); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := store.GetUnsent("informatique", 30)
	if err != nil {
		t.Fatal(err)
	}

	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs within the window, got %d", len(jobs))
	}
	if jobs[0].JobURL != "https://example.com/job/newest" {
		t.Errorf("Expected newest posting first, got %s", jobs[0].JobURL)
	}
	if jobs[2].JobURL != "https://example.com/job/middle" {
		t.Errorf("Expected oldest in-window posting last, got %s", jobs[2].JobURL)
	}
}

func TestGetUnsentFiltersByCategory(t *testing.T) {
	store := newTestStore(t)

	other := testJob("https://example.com/job/design", 0)
	other.Category = "design"

	if _, _, err := store.CreateIfNew(testJob("https://example.com/job/info", 0)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.CreateIfNew(other); err != nil {
		t.Fatal(err)
	}

	jobs, err := store.GetUnsent("design", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].JobURL != "https://example.com/job/design" {
		t.Errorf("Expected only the design job, got %v", jobs)
	}
}

func TestMarkSentIdempotent(t *testing.T) {
	store := newTestStore(t)

	stored, _, err := store.CreateIfNew(testJob("https://example.com/job/1", 0))
	if err != nil {
		t.Fatal(err)
	}

	marked, err := store.MarkSent([]int64{stored.ID})
	if err != nil {
		t.Fatal(err)
	}
	if marked != 1 {
		t.Errorf("Expected 1 row marked, got %d", marked)
	}

	// Second mark must be a no-op.
	marked, err = store.MarkSent([]int64{stored.ID})
	if err != nil {
		t.Fatal(err)
	}
	if marked != 0 {
		t.Errorf("Expected 0 rows marked on repeat, got %d", marked)
	}

	jobs, err := store.GetUnsent("informatique", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected no unsent jobs after marking, got %d", len(jobs))
	}
}

func TestMarkSentEmptyBatch(t *testing.T) {
	store := newTestStore(t)

	marked, err := store.MarkSent(nil)
	if err != nil {
		t.Fatal(err)
	}
	if marked != 0 {
		t.Errorf("Expected 0 rows marked for empty batch, got %d", marked)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.CreateIfNew(testJob("https://example.com/job/ancient", 120)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.CreateIfNew(testJob("https://example.com/job/fresh", 1)); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.PurgeOlderThan(90)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 job purged, got %d", deleted)
	}

	stats, err := store.Stats(365)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 1 {
		t.Errorf("Expected 1 job remaining, got %d", stats.Total)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		if _, _, err := store.CreateIfNew(testJob(fmt.Sprintf("https://example.com/job/%d", i), i)); err != nil {
			t.Fatal(err)
		}
	}
	design := testJob("https://example.com/job/design", 0)
	design.Category = "design"
	stored, _, err := store.CreateIfNew(design)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := store.MarkSent([]int64{stored.ID}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(30)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Total != 4 {
		t.Errorf("Expected 4 total, got %d", stats.Total)
	}
	if stats.Delivered != 1 {
		t.Errorf("Expected 1 delivered, got %d", stats.Delivered)
	}
	if stats.Pending != 3 {
		t.Errorf("Expected 3 pending, got %d", stats.Pending)
	}
	if cs, ok := stats.PerCategory["informatique"]; !ok || cs.Total != 3 {
		t.Errorf("Expected 3 jobs under 'informatique', got %+v", stats.PerCategory)
	}
	if cs, ok := stats.PerCategory["design"]; !ok || cs.Delivered != 1 {
		t.Errorf("Expected 1 delivered under 'design', got %+v", stats.PerCategory)
	}
}
