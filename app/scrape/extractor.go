package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-shiori/go-readability"
)

// DescriptionExtractor fills in missing posting descriptions by
// fetching the posting page and extracting the readable text.
type DescriptionExtractor struct {
	httpClient *http.Client
	userAgent  string
}

func NewDescriptionExtractor(userAgent string) *DescriptionExtractor {
	return &DescriptionExtractor{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		userAgent:  userAgent,
	}
}

func (e *DescriptionExtractor) Run(ctx context.Context, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("invalid posting URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch posting page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("posting page returned HTTP %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	if article.TextContent == "" {
		return "", fmt.Errorf("no content extracted from posting page")
	}

	slog.Debug("Description extracted", "url", pageURL, "length", len(article.TextContent))

	return cleanDescription(article.TextContent), nil
}
