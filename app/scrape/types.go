package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Job is a freshly fetched, not yet persisted posting. JobURL doubles
// as the dedup key; JobURL and DatePosted are required for a record to
// be storable.
type Job struct {
	Title           string
	Company         string
	Location        string
	DatePosted      time.Time // date precision
	JobURL          string
	Site            string
	SalaryText      string
	Description     string
	IsRemote        bool
	JobType         string
	CompanyIndustry string
	ExperienceRange string
}

func (j Job) Valid() bool {
	return j.JobURL != "" && !j.DatePosted.IsZero()
}

// Query carries one search request to a job site.
type Query struct {
	SearchTerms   string
	Location      string
	ResultsWanted int
}

// Site is one external job source. Search returns raw candidate rows
// or an error; a BlockedError signals a forbidden/rate-limit response
// the orchestrator may route around.
type Site interface {
	Name() string
	ReliableIn(env Environment) bool
	Search(ctx context.Context, query Query) ([]Job, error)
}

// BlockedError is returned by a site when the source refuses the
// request (HTTP 403/429), as opposed to an ordinary transient failure.
type BlockedError struct {
	Site string
	Err  error
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("site %s blocked the request: %v", e.Site, e.Err)
}

func (e *BlockedError) Unwrap() error {
	return e.Err
}

const maxDescriptionLength = 1000

// cleanDescription collapses whitespace runs and caps the length
func cleanDescription(text string) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if len(cleaned) > maxDescriptionLength {
		cleaned = cleaned[:maxDescriptionLength]
	}
	return cleaned
}
