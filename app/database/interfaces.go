package database

// JobStore is the storage surface used by the ingestion and delivery
// services and the scheduler. All mutations are single atomic
// statements; the unique index on job_url is the dedup authority.
type JobStore interface {
	// CreateIfNew stores the job unless its URL is already known and
	// reports whether a row was created.
	CreateIfNew(job Job) (*Job, bool, error)

	// GetUnsent returns undelivered jobs for a category posted within
	// the last maxAgeDays, newest posting date first, then newest
	// creation time first.
	GetUnsent(category string, maxAgeDays int) ([]Job, error)

	// MarkSent flips the given jobs to delivered in one statement and
	// returns the number of rows actually changed. Already-sent rows
	// are left untouched.
	MarkSent(ids []int64) (int, error)

	// PurgeOlderThan deletes jobs whose posting date is older than the
	// cutoff and returns the number deleted.
	PurgeOlderThan(days int) (int, error)

	// Stats aggregates counts over the last days.
	Stats(days int) (*Stats, error)

	// ClearCache drops the in-process dedup cache. The next
	// CreateIfNew repopulates it from the database.
	ClearCache()
}
