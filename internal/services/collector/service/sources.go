package service

import (
	"context"

	"marketpulse/internal/adapters/scrape/portal"
	"marketpulse/internal/adapters/upstream/dldclient"
	"marketpulse/internal/core/canon"
	perr "marketpulse/internal/platform/errors"
)

// APISource adapts the land-department gateway to the Source port. It serves
// every entity kind.
type APISource struct {
	gw *dldclient.Gateway
}

// NewAPISource wraps gw as a Source
func NewAPISource(gw *dldclient.Gateway) *APISource { return &APISource{gw: gw} }

// Name identifies the source in logs and failure metrics
func (a *APISource) Name() string { return string(canon.SourceDLDAPI) }

// Serves reports true for all kinds
func (a *APISource) Serves(canon.EntityKind) bool { return true }

// Fetch pulls one kind's records through the gateway
func (a *APISource) Fetch(ctx context.Context, kind canon.EntityKind) ([]canon.RawRecord, error) {
	switch kind {
	case canon.KindProperty:
		return a.gw.Properties(ctx)
	case canon.KindRental:
		return a.gw.RentalTransactions(ctx)
	case canon.KindDeveloper:
		return a.gw.DeveloperProjects(ctx)
	case canon.KindIndicator:
		return a.gw.MarketIndicators(ctx)
	}
	return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "unsupported kind %s", kind)
}

// ScrapeSource adapts the portal scraper to the Source port. The portal only
// exposes rental listings.
type ScrapeSource struct {
	scraper *portal.Scraper
}

// NewScrapeSource wraps scraper as a Source
func NewScrapeSource(scraper *portal.Scraper) *ScrapeSource { return &ScrapeSource{scraper: scraper} }

// Name identifies the source in logs and failure metrics
func (s *ScrapeSource) Name() string { return string(canon.SourcePortalScrape) }

// Serves reports true only for rentals
func (s *ScrapeSource) Serves(kind canon.EntityKind) bool { return kind == canon.KindRental }

// Fetch walks the portal's listing pages
func (s *ScrapeSource) Fetch(ctx context.Context, kind canon.EntityKind) ([]canon.RawRecord, error) {
	if kind != canon.KindRental {
		return nil, perr.Newf(perr.ErrorCodeInvalidArgument, "unsupported kind %s", kind)
	}
	return s.scraper.Listings(ctx)
}
