// Package portal scrapes rental listings from a property portal's public
// listing pages. Extraction is tolerant: optional fields that are missing
// from a card are simply absent from the raw record, and a page that fails
// mid-walk yields the records gathered so far rather than nothing.
package portal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/platform/config"
	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/logger"

	"github.com/gocolly/colly/v2"
)

// Config controls the listing walk
type Config struct {
	BaseURL   string
	ListPath  string
	UserAgent string
	MaxPages  int
	Delay     time.Duration
}

// ConfigFromEnv reads the PORTAL_ env block
func ConfigFromEnv(cfg config.Conf) Config {
	c := cfg.Prefix("PORTAL_")
	return Config{
		BaseURL:   c.MustURL("BASE_URL").String(),
		ListPath:  c.MayString("LIST_PATH", "/rentals"),
		UserAgent: c.MayString("USER_AGENT", "marketpulse-collector/1.0 (+https://marketpulse.example/contact)"),
		MaxPages:  c.MayInt("MAX_PAGES", 20),
		Delay:     c.MayDuration("DELAY", 2*time.Second),
	}
}

// Scraper walks the portal's paginated listing index
type Scraper struct {
	cfg Config
	log logger.Logger
}

// New builds a Scraper
func New(cfg Config, log logger.Logger) *Scraper {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	return &Scraper{cfg: cfg, log: log.With().Str("component", "portal").Logger()}
}

// Listings walks listing pages in order until the portal stops advertising a
// next page or MaxPages is hit. A mid-walk failure returns the records
// gathered so far with a nil error; only a walk that produced nothing at all
// surfaces the failure.
func (s *Scraper) Listings(ctx context.Context) ([]canon.RawRecord, error) {
	var (
		records []canon.RawRecord
		lastErr error
	)
	for page := 1; page <= s.cfg.MaxPages; page++ {
		recs, hasNext, err := s.scrapePage(ctx, page)
		if err != nil {
			s.log.Warn().Err(err).Int("page", page).Int("records_so_far", len(records)).
				Msg("listing page failed, keeping partial results")
			lastErr = err
			break
		}
		records = append(records, recs...)
		if !hasNext {
			break
		}
	}
	if len(records) == 0 && lastErr != nil {
		return nil, perr.Wrap(lastErr, perr.ErrorCodeUpstream, "portal walk produced no records")
	}
	return records, nil
}

// scrapePage fetches one listing page. The grid container acts as a layout
// sentinel: a page without it means the portal changed markup, and silently
// yielding zero records would look like an empty market.
func (s *Scraper) scrapePage(ctx context.Context, page int) ([]canon.RawRecord, bool, error) {
	c := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.StdlibContext(ctx),
	)
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Delay: s.cfg.Delay}); err != nil {
		return nil, false, perr.Wrap(err, perr.ErrorCodeUpstream, "configure crawl delay")
	}

	var (
		records   []canon.RawRecord
		gridFound bool
		hasNext   bool
	)

	c.OnHTML("div.listings-grid", func(e *colly.HTMLElement) {
		gridFound = true
		e.ForEach("article.listing-card", func(_ int, card *colly.HTMLElement) {
			records = append(records, cardRecord(card))
		})
	})
	c.OnHTML("a.pagination-next", func(e *colly.HTMLElement) {
		hasNext = true
	})

	url := fmt.Sprintf("%s%s?page=%d", strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.ListPath, page)
	if err := c.Visit(url); err != nil {
		return nil, false, perr.Wrapf(err, perr.ErrorCodeUpstream, "fetch listing page %d", page)
	}
	c.Wait()

	if !gridFound {
		return nil, false, perr.Newf(perr.ErrorCodeUpstream, "listing grid missing on page %d, portal layout changed", page)
	}
	return records, hasNext, nil
}

// cardRecord extracts whatever a card exposes. Only non-empty values become
// fields; the normalizer decides what a usable record is.
func cardRecord(card *colly.HTMLElement) canon.RawRecord {
	fields := map[string]any{}
	put := func(key, val string) {
		if v := strings.TrimSpace(val); v != "" {
			fields[key] = v
		}
	}
	put("listing_id", card.Attr("data-listing-id"))
	put("area", card.ChildText(".listing-card__area"))
	put("rent", card.ChildText(".listing-card__price"))
	put("bedrooms", card.ChildText(".listing-card__beds"))
	put("size", card.ChildText(".listing-card__size"))
	put("date", card.ChildAttr("time", "datetime"))
	return canon.RawRecord{Source: canon.SourcePortalScrape, Fields: fields}
}
