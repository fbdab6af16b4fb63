package portal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

const pageOne = `<html><body>
<div class="listings-grid">
  <article class="listing-card" data-listing-id="L-1">
    <span class="listing-card__area">Dubai Marina</span>
    <span class="listing-card__price">AED 120,000 / year</span>
    <span class="listing-card__beds">2 BR</span>
    <span class="listing-card__size">1,100 sqft</span>
    <time datetime="2026-08-01">Aug 1</time>
  </article>
  <article class="listing-card" data-listing-id="L-2">
    <span class="listing-card__price">AED 65,000</span>
  </article>
</div>
<a class="pagination-next" href="?page=2">Next</a>
</body></html>`

const pageTwo = `<html><body>
<div class="listings-grid">
  <article class="listing-card" data-listing-id="L-3">
    <span class="listing-card__beds">studio</span>
  </article>
</div>
</body></html>`

func portalServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Query().Get("page")]
		if !ok {
			t.Errorf("unexpected page request %q", r.URL.RawQuery)
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
}

func newTestScraper(url string, maxPages int) *Scraper {
	return New(Config{
		BaseURL:   url,
		ListPath:  "/rentals",
		UserAgent: "test-agent",
		MaxPages:  maxPages,
	}, zerolog.Nop())
}

func TestListingsWalksUntilNoNextControl(t *testing.T) {
	srv := portalServer(t, map[string]string{"1": pageOne, "2": pageTwo})
	defer srv.Close()

	recs, err := newTestScraper(srv.URL, 10).Listings(context.Background())
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 records across 2 pages, got %d", len(recs))
	}

	full := recs[0].Fields
	for _, key := range []string{"listing_id", "area", "rent", "bedrooms", "size", "date"} {
		if full[key] == nil {
			t.Errorf("full card missing %q: %+v", key, full)
		}
	}
	if full["listing_id"] != "L-1" || full["date"] != "2026-08-01" {
		t.Fatalf("unexpected extraction: %+v", full)
	}

	// sparse card keeps only what existed
	sparse := recs[1].Fields
	if sparse["listing_id"] != "L-2" || sparse["rent"] == nil {
		t.Fatalf("sparse card: %+v", sparse)
	}
	if _, present := sparse["area"]; present {
		t.Fatalf("absent optional must not appear: %+v", sparse)
	}
}

func TestListingsStopsAtMaxPages(t *testing.T) {
	// every page advertises a next page; the cap must end the walk
	srv := portalServer(t, map[string]string{"1": pageOne, "2": pageOne, "3": pageOne})
	defer srv.Close()

	recs, err := newTestScraper(srv.URL, 3).Listings(context.Background())
	if err != nil {
		t.Fatalf("Listings: %v", err)
	}
	if len(recs) != 6 {
		t.Fatalf("want 2 records x 3 pages, got %d", len(recs))
	}
}

func TestListingsKeepsPartialOnMidWalkFailure(t *testing.T) {
	// page 2 is missing entirely: the walk fails there but page 1 survives
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, pageOne)
			return
		}
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	recs, err := newTestScraper(srv.URL, 10).Listings(context.Background())
	if err != nil {
		t.Fatalf("partial walk must not error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("want page 1's 2 records, got %d", len(recs))
	}
}

func TestListingsFlagsLayoutChange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="totally-new-markup"></div></body></html>`)
	}))
	defer srv.Close()

	_, err := newTestScraper(srv.URL, 10).Listings(context.Background())
	if err == nil {
		t.Fatal("a first page without the listing grid must surface an error")
	}
}
