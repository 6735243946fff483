package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/france-chomage/jobcomb/app/categories"
)

// fakeSite is a scripted Site: each call consumes the next response.
type fakeSite struct {
	name      string
	reliable  bool
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	jobs []Job
	err  error
}

func (f *fakeSite) Name() string { return f.name }

func (f *fakeSite) ReliableIn(env Environment) bool { return f.reliable }

func (f *fakeSite) Search(ctx context.Context, query Query) ([]Job, error) {
	if f.calls >= len(f.responses) {
		return nil, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp.jobs, resp.err
}

func validJob(url string) Job {
	return Job{
		Title:      "Développeur",
		JobURL:     url,
		DatePosted: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func testProfile() *categories.Profile {
	return &categories.Profile{
		Name:        "informatique",
		SearchTerms: "développeur",
		FetchHours:  []int{9},
		Enabled:     true,
	}
}

func newTestOrchestrator(sites []Site, maxRetries int) *Orchestrator {
	return NewOrchestrator(sites, EnvLocal, false, Options{
		MaxRetries:    maxRetries,
		ResultsWanted: 10,
		Location:      "Paris",
	})
}

func TestFetchFirstAttemptSucceeds(t *testing.T) {
	site := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{jobs: []Job{validJob("https://example.com/1"), validJob("https://example.com/2")}},
	}}

	jobs, err := newTestOrchestrator([]Site{site}, 3).Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
	if site.calls != 1 {
		t.Errorf("Expected 1 site call, got %d", site.calls)
	}
}

func TestFetchRetriesOnEmptyResult(t *testing.T) {
	site := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{},
		{},
		{jobs: []Job{validJob("https://example.com/1")}},
	}}

	jobs, err := newTestOrchestrator([]Site{site}, 3).Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job after retries, got %d", len(jobs))
	}
	if site.calls != 3 {
		t.Errorf("Expected 3 site calls, got %d", site.calls)
	}
}

func TestFetchExhaustedRetriesReturnsEmpty(t *testing.T) {
	site := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
		{err: errors.New("timeout")},
	}}

	jobs, err := newTestOrchestrator([]Site{site}, 3).Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Exhausted retries must not surface an error, got: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("Expected empty batch, got %d jobs", len(jobs))
	}
	if site.calls != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", site.calls)
	}
}

func TestFetchBlockedSiteFallsBackToRemaining(t *testing.T) {
	blocked := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{err: &BlockedError{Site: "adzuna", Err: errors.New("HTTP 403")}},
	}}
	fallback := &fakeSite{name: "remoteok", reliable: true, responses: []fakeResponse{
		{}, // first attempt alongside the blocked site
		{jobs: []Job{validJob("https://example.com/1")}}, // fallback attempt
	}}

	jobs, err := newTestOrchestrator([]Site{blocked, fallback}, 3).Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job from fallback site, got %d", len(jobs))
	}
	if blocked.calls != 1 {
		t.Errorf("Expected blocked site to be dropped after 1 call, got %d", blocked.calls)
	}
	if fallback.calls != 2 {
		t.Errorf("Expected fallback site called twice, got %d", fallback.calls)
	}
}

func TestFetchDropsMalformedRecords(t *testing.T) {
	site := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{jobs: []Job{
			validJob("https://example.com/1"),
			{Title: "No URL", DatePosted: time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)},
			{Title: "No date", JobURL: "https://example.com/2"},
		}},
	}}

	jobs, err := newTestOrchestrator([]Site{site}, 3).Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 valid job, got %d", len(jobs))
	}
}

func TestFetchProfileMaxResultsOverridesDefault(t *testing.T) {
	var seen Query
	site := &fakeSite{name: "adzuna", reliable: true}
	orchestrator := NewOrchestrator([]Site{&querySpy{site: site, query: &seen}}, EnvLocal, false, Options{
		MaxRetries:    1,
		ResultsWanted: 10,
	})

	profile := testProfile()
	profile.MaxResults = 25

	if _, err := orchestrator.Fetch(context.Background(), profile); err != nil {
		t.Fatal(err)
	}
	if seen.ResultsWanted != 25 {
		t.Errorf("Expected results wanted 25, got %d", seen.ResultsWanted)
	}
}

func TestFetchStrategySelectsSingleSite(t *testing.T) {
	adzuna := &fakeSite{name: "adzuna", reliable: true, responses: []fakeResponse{
		{jobs: []Job{validJob("https://example.com/1")}},
	}}
	remoteok := &fakeSite{name: "remoteok", reliable: true, responses: []fakeResponse{
		{jobs: []Job{validJob("https://example.com/2")}},
	}}

	profile := testProfile()
	profile.Strategy = "adzuna_only"

	jobs, err := newTestOrchestrator([]Site{adzuna, remoteok}, 3).Fetch(context.Background(), profile)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job from the pinned site, got %d", len(jobs))
	}
	if remoteok.calls != 0 {
		t.Errorf("Expected remoteok to be skipped, got %d calls", remoteok.calls)
	}
}

func TestFetchUnreliableSitesFilteredInDocker(t *testing.T) {
	unreliable := &fakeSite{name: "adzuna", reliable: false}
	reliable := &fakeSite{name: "remoteok", reliable: true, responses: []fakeResponse{
		{jobs: []Job{validJob("https://example.com/1")}},
	}}

	orchestrator := NewOrchestrator([]Site{unreliable, reliable}, EnvDocker, false, Options{MaxRetries: 1})

	jobs, err := orchestrator.Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(jobs))
	}
	if unreliable.calls != 0 {
		t.Errorf("Expected unreliable site to be skipped, got %d calls", unreliable.calls)
	}
}

func TestFetchForceAllSourcesKeepsUnreliableSites(t *testing.T) {
	unreliable := &fakeSite{name: "adzuna", reliable: false, responses: []fakeResponse{
		{jobs: []Job{validJob("https://example.com/1")}},
	}}

	orchestrator := NewOrchestrator([]Site{unreliable}, EnvDocker, true, Options{MaxRetries: 1})

	jobs, err := orchestrator.Fetch(context.Background(), testProfile())
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job with force-all-sources, got %d", len(jobs))
	}
}

func TestFetchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	site := &fakeSite{name: "adzuna", reliable: true}

	_, err := newTestOrchestrator([]Site{site}, 3).Fetch(ctx, testProfile())
	if err == nil {
		t.Error("Expected error for cancelled context")
	}
}

// querySpy records the query passed to its wrapped site.
type querySpy struct {
	site  Site
	query *Query
}

func (q *querySpy) Name() string { return q.site.Name() }

func (q *querySpy) ReliableIn(env Environment) bool { return q.site.ReliableIn(env) }

func (q *querySpy) Search(ctx context.Context, query Query) ([]Job, error) {
	*q.query = query
	return q.site.Search(ctx, query)
}
