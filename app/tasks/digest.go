package tasks

import (
	"sort"
	"sync"

	"github.com/france-chomage/jobcomb/app/delivery"
)

// DigestAccumulator collects per-category counts between digest runs.
// Cycles add to it concurrently; Flush snapshots and clears it.
type DigestAccumulator struct {
	mu    sync.Mutex
	stats map[string]*delivery.DigestEntry
}

func NewDigestAccumulator() *DigestAccumulator {
	return &DigestAccumulator{
		stats: make(map[string]*delivery.DigestEntry),
	}
}

func (d *DigestAccumulator) AddStored(category string, stored int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entry(category).Stored += stored
}

func (d *DigestAccumulator) AddSent(category string, sent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entry(category).Sent += sent
}

func (d *DigestAccumulator) AddError(category string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entry(category).Errors++
}

// Flush returns the accumulated entries sorted by category and resets
// the accumulator.
func (d *DigestAccumulator) Flush() []delivery.DigestEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]delivery.DigestEntry, 0, len(d.stats))
	for _, entry := range d.stats {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Category < entries[j].Category
	})

	d.stats = make(map[string]*delivery.DigestEntry)

	return entries
}

// Requeue merges flushed entries back, so a failed digest send rolls
// its counts into the next run instead of losing them.
func (d *DigestAccumulator) Requeue(entries []delivery.DigestEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range entries {
		current := d.entry(e.Category)
		current.Stored += e.Stored
		current.Sent += e.Sent
		current.Errors += e.Errors
	}
}

func (d *DigestAccumulator) entry(category string) *delivery.DigestEntry {
	entry, ok := d.stats[category]
	if !ok {
		entry = &delivery.DigestEntry{Category: category}
		d.stats[category] = entry
	}
	return entry
}
