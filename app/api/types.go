package api

import (
	"context"

	"github.com/france-chomage/jobcomb/app/categories"
	"github.com/france-chomage/jobcomb/app/database"
	"github.com/france-chomage/jobcomb/app/ingest"
	"github.com/france-chomage/jobcomb/app/tasks"
)

type RegistryInterface interface {
	Get(name string) (*categories.Profile, error)
	Enabled() []*categories.Profile
	Count() int
	Reload() error
}

var _ RegistryInterface = (*categories.Registry)(nil)

// CycleRunner executes manually triggered cycles behind the same
// per-category serialization the scheduled ones use, so an API call
// never races a cron trigger for the same category.
type CycleRunner interface {
	IngestCategory(ctx context.Context, name string) (ingest.Counts, error)
	SendCategory(ctx context.Context, name string) (int, error)
	Reschedule() error
}

var _ CycleRunner = (*tasks.Scheduler)(nil)

type Handler struct {
	registry RegistryInterface
	store    database.JobStore
	cycles   CycleRunner
	version  string
}
