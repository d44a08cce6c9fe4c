package scraper

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/abclabs/loanassist/internal/models"
)

type ScraperConfig struct {
	Sources    []string
	Keywords   []string
	RateLimit  float64 // requests per second
	MaxRetries int
	Timeout    time.Duration
	UserAgents []string
	OnProgress func(url string)
}

// Scraper harvests personal-loan information from aggregator pages. Each page
// is fetched once, reduced to headings/paragraphs/list items, and filtered to
// lines mentioning a loan keyword.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 0.5
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if len(config.Keywords) == 0 {
		config.Keywords = []string{"personal loan", "interest rate", "eligibility", "tenure", "loan amount"}
	}
	if len(config.UserAgents) == 0 {
		config.UserAgents = defaultUserAgents
	}

	for _, src := range config.Sources {
		if _, err := url.Parse(src); err != nil {
			return nil, fmt.Errorf("invalid source URL %q: %v", src, err)
		}
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Harvest fetches every configured source. Sources that fail or contain no
// relevant lines are logged and skipped rather than failing the run.
func (s *Scraper) Harvest(ctx context.Context) ([]models.Document, error) {
	var documents []models.Document

	for i, src := range s.config.Sources {
		if s.config.OnProgress != nil {
			s.config.OnProgress(src)
		}

		doc, err := s.scrapeSource(ctx, src, i)
		if err != nil {
			log.Printf("scraper: skipping %s: %v", src, err)
			continue
		}
		if doc.Content == "" {
			log.Printf("scraper: no relevant loan data found on %s", src)
			continue
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

func (s *Scraper) scrapeSource(ctx context.Context, src string, attempt int) (models.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	resp, err := s.fetchWithRetry(ctx, src, attempt)
	if err != nil {
		return models.Document{}, err
	}
	defer resp.Body.Close()

	page, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return models.Document{}, err
	}

	lines := s.extractLoanInfo(page)

	return models.Document{
		ID:      uuid.NewString(),
		Source:  src,
		Title:   strings.TrimSpace(page.Find("title").Text()),
		Content: strings.Join(lines, "\n"),
		Metadata: map[string]interface{}{
			"time":        time.Now(),
			"contentType": resp.Header.Get("Content-Type"),
		},
	}, nil
}

func (s *Scraper) fetchWithRetry(ctx context.Context, src string, seed int) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Second << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", s.config.UserAgents[(seed+attempt)%len(s.config.UserAgents)])

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("received status code %d", resp.StatusCode)
			// Client errors other than rate limiting will not improve
			// with a retry.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, lastErr
			}
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("all retries failed: %v", lastErr)
}

// extractLoanInfo walks headings, paragraphs and list items, keeping lines
// that mention any configured keyword.
func (s *Scraper) extractLoanInfo(page *goquery.Document) []string {
	var lines []string

	page.Find("h2, h3, p, li").Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if text == "" {
			return
		}
		lower := strings.ToLower(text)
		for _, keyword := range s.config.Keywords {
			if strings.Contains(lower, keyword) {
				lines = append(lines, text)
				return
			}
		}
	})

	return lines
}

// SaveDocuments writes one UTF-8 text file per document into dir, named after
// the source host, ready for the ingestion pipeline.
func SaveDocuments(docs []models.Document, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %v", err)
	}

	for i, doc := range docs {
		name := fmt.Sprintf("scraped_%d.txt", i)
		if u, err := url.Parse(doc.Source); err == nil && u.Host != "" {
			name = fmt.Sprintf("%s_%d.txt", strings.ReplaceAll(u.Host, ".", "_"), i)
		}

		content := fmt.Sprintf("Source: %s\n\n%s\n", doc.Source, doc.Content)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %v", name, err)
		}
	}

	return nil
}
