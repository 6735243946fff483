package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const remoteOKBaseURL = "https://remoteok.com"

// RemoteOKSite fetches postings from the RemoteOK RSS feed. It needs no
// credentials and tolerates datacenter traffic, which makes it the
// reliable fallback when another source blocks a request.
type RemoteOKSite struct {
	BaseURL   string
	UserAgent string
	parser    *gofeed.Parser
}

func NewRemoteOKSite(userAgent string) *RemoteOKSite {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent
	parser.Client = &http.Client{Timeout: 15 * time.Second}

	return &RemoteOKSite{
		BaseURL:   remoteOKBaseURL,
		UserAgent: userAgent,
		parser:    parser,
	}
}

func (s *RemoteOKSite) Name() string {
	return "remoteok"
}

func (s *RemoteOKSite) ReliableIn(env Environment) bool {
	return true
}

func (s *RemoteOKSite) Search(ctx context.Context, query Query) ([]Job, error) {
	feedURL := fmt.Sprintf("%s/remote-%s-jobs.rss", s.BaseURL, termSlug(query.SearchTerms))

	feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode == http.StatusForbidden || httpErr.StatusCode == http.StatusTooManyRequests {
				return nil, &BlockedError{Site: s.Name(), Err: err}
			}
		}
		return nil, fmt.Errorf("failed to fetch remoteok feed: %w", err)
	}

	limit := query.ResultsWanted
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	jobs := make([]Job, 0, limit)
	for _, item := range feed.Items[:limit] {
		job := Job{
			Title:       item.Title,
			Company:     itemCompany(item, feed.Title),
			Location:    "Remote",
			JobURL:      item.Link,
			Site:        s.Name(),
			Description: cleanDescription(item.Description),
			IsRemote:    true,
		}
		if item.PublishedParsed != nil {
			job.DatePosted = item.PublishedParsed.UTC().Truncate(24 * time.Hour)
		}

		// RemoteOK titles read "Position at Company"
		if title, company, found := strings.Cut(item.Title, " at "); found {
			job.Title = title
			job.Company = company
		}

		jobs = append(jobs, job)
	}

	return jobs, nil
}

func itemCompany(item *gofeed.Item, fallback string) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	return fallback
}

func termSlug(terms string) string {
	return strings.ToLower(strings.Join(strings.Fields(terms), "-"))
}
