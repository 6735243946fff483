package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const adzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"

// AdzunaSite fetches postings from the Adzuna public API. Requests are
// clamped to MaxResults because large result pages trip Adzuna's rate
// limiting well before the other sources complain.
type AdzunaSite struct {
	BaseURL    string
	AppID      string
	AppKey     string
	Country    string // "fr", "gb", "us"
	MaxResults int
	UserAgent  string
	httpClient *http.Client
}

func NewAdzunaSite(appID, appKey, country string, maxResults int, userAgent string) *AdzunaSite {
	return &AdzunaSite{
		BaseURL:    adzunaBaseURL,
		AppID:      appID,
		AppKey:     appKey,
		Country:    country,
		MaxResults: maxResults,
		UserAgent:  userAgent,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *AdzunaSite) Name() string {
	return "adzuna"
}

// ReliableIn reports false for containers: Adzuna throttles datacenter
// IP ranges aggressively.
func (s *AdzunaSite) ReliableIn(env Environment) bool {
	return env != EnvDocker
}

type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	Category     adzunaCategory `json:"category"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

func (s *AdzunaSite) Search(ctx context.Context, query Query) ([]Job, error) {
	if s.AppID == "" || s.AppKey == "" {
		slog.Warn("Adzuna credentials not configured, skipping site")
		return nil, nil
	}

	count := query.ResultsWanted
	if s.MaxResults > 0 && count > s.MaxResults {
		count = s.MaxResults
	}

	endpoint := fmt.Sprintf("%s/%s/search/1", s.BaseURL, s.Country)

	params := url.Values{}
	params.Set("app_id", s.AppID)
	params.Set("app_key", s.AppKey)
	params.Set("results_per_page", strconv.Itoa(count))
	params.Set("what", query.SearchTerms)
	params.Set("where", query.Location)
	params.Set("sort_by", "date")
	params.Set("content-type", "application/json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch from adzuna: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &BlockedError{Site: s.Name(), Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse adzuna response: %w", err)
	}

	jobs := make([]Job, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		jobs = append(jobs, Job{
			Title:           r.Title,
			Company:         r.Company.DisplayName,
			Location:        r.Location.DisplayName,
			DatePosted:      parseAdzunaDate(r.Created),
			JobURL:          r.RedirectURL,
			Site:            s.Name(),
			SalaryText:      formatSalary(r.SalaryMin, r.SalaryMax),
			Description:     cleanDescription(r.Description),
			JobType:         contractLabel(r.ContractTime, r.ContractType),
			CompanyIndustry: r.Category.Label,
		})
	}

	return jobs, nil
}

func parseAdzunaDate(created string) time.Time {
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return time.Time{}
	}
	return t.Truncate(24 * time.Hour)
}

func formatSalary(min, max float64) string {
	switch {
	case min > 0 && max > 0 && min != max:
		return fmt.Sprintf("%.0f-%.0f EUR", min, max)
	case max > 0:
		return fmt.Sprintf("%.0f EUR", max)
	case min > 0:
		return fmt.Sprintf("%.0f EUR", min)
	default:
		return ""
	}
}

func contractLabel(contractTime, contractType string) string {
	switch {
	case contractTime != "" && contractType != "":
		return contractType + " " + contractTime
	case contractTime != "":
		return contractTime
	default:
		return contractType
	}
}
