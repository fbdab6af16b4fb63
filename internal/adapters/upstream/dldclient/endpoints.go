package dldclient

import (
	"context"
	"net/url"
	"time"

	"marketpulse/internal/core/canon"
	"marketpulse/internal/platform/cache"
)

// Upstream endpoint paths
const (
	epTransactions = "transactions"
	epRentals      = "rental-transactions"
	epDevelopers   = "developer-projects"
	epIndicators   = "market-indicators"
)

// Response TTL tiers. Property and indicator data move daily; rentals are the
// most volatile feed.
const (
	ttlProperties = 24 * time.Hour
	ttlRentals    = time.Hour
	ttlDevelopers = 4 * time.Hour
	ttlIndicators = 24 * time.Hour
)

// Gateway is the typed, cached surface the sources consume
type Gateway struct {
	client *Client
	cache  *cache.Store
}

// NewGateway wraps a Client with the response cache. cs may be nil for an
// uncached gateway (tests, one-shot runs).
func NewGateway(client *Client, cs *cache.Store) *Gateway {
	return &Gateway{client: client, cache: cs}
}

// Properties fetches all sale/ownership transaction records
func (g *Gateway) Properties(ctx context.Context) ([]canon.RawRecord, error) {
	return g.fetch(ctx, epTransactions, ttlProperties)
}

// RentalTransactions fetches all registered rental contracts
func (g *Gateway) RentalTransactions(ctx context.Context) ([]canon.RawRecord, error) {
	return g.fetch(ctx, epRentals, ttlRentals)
}

// DeveloperProjects fetches the developer portfolio registry
func (g *Gateway) DeveloperProjects(ctx context.Context) ([]canon.RawRecord, error) {
	return g.fetch(ctx, epDevelopers, ttlDevelopers)
}

// MarketIndicators fetches economic and demographic indicator series
func (g *Gateway) MarketIndicators(ctx context.Context) ([]canon.RawRecord, error) {
	return g.fetch(ctx, epIndicators, ttlIndicators)
}

func (g *Gateway) fetch(ctx context.Context, endpoint string, ttl time.Duration) ([]canon.RawRecord, error) {
	key := cache.Key("dld", endpoint)
	pages, err := cache.GetOrSetJSON(ctx, g.cache, key, ttl,
		func(ctx context.Context) ([]map[string]any, error) {
			return g.client.getAllPages(ctx, endpoint, url.Values{})
		})
	if err != nil {
		return nil, err
	}
	return wrapRaw(pages), nil
}

func wrapRaw(pages []map[string]any) []canon.RawRecord {
	out := make([]canon.RawRecord, 0, len(pages))
	for _, fields := range pages {
		out = append(out, canon.RawRecord{Source: canon.SourceDLDAPI, Fields: fields})
	}
	return out
}
