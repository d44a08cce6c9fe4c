package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abclabs/loanassist/pkg/scraper"
)

const loanPage = `
	<html>
		<head><title>Personal Loans</title></head>
		<body>
			<h2>Personal Loan Offers</h2>
			<p>Interest rate starts at 10.5% per annum.</p>
			<p>Our office is closed on Sundays.</p>
			<li>Loan amount up to $50,000.</li>
			<li>Free coffee in every branch.</li>
		</body>
	</html>`

func TestHarvestFiltersByKeyword(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(loanPage))
	}))
	defer server.Close()

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:   []string{server.URL},
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := s.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, server.URL, doc.Source)
	assert.Equal(t, "Personal Loans", doc.Title)
	assert.Contains(t, doc.Content, "Personal Loan Offers")
	assert.Contains(t, doc.Content, "Interest rate starts at 10.5% per annum.")
	assert.Contains(t, doc.Content, "Loan amount up to $50,000.")
	assert.NotContains(t, doc.Content, "closed on Sundays")
	assert.NotContains(t, doc.Content, "Free coffee")
}

func TestHarvestSkipsIrrelevantPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>Nothing about lending here.</p></body></html>"))
	}))
	defer server.Close()

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:   []string{server.URL},
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := s.Harvest(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestHarvestSkipsFailingSources(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loanPage))
	}))
	defer good.Close()

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:   []string{bad.URL, good.URL},
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := s.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, good.URL, docs[0].Source)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(loanPage))
	}))
	defer server.Close()

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:    []string{server.URL},
		RateLimit:  100,
		MaxRetries: 2,
	})
	require.NoError(t, err)

	docs, err := s.Harvest(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&hits), int32(2))
}

func TestSaveDocuments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(loanPage))
	}))
	defer server.Close()

	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		Sources:   []string{server.URL},
		RateLimit: 100,
	})
	require.NoError(t, err)

	docs, err := s.Harvest(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, scraper.SaveDocuments(docs, dir))

	matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "Source: "+server.URL)
	assert.Contains(t, string(data), "Interest rate starts at 10.5% per annum.")
}
