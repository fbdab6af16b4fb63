package dldclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	perr "marketpulse/internal/platform/errors"

	"github.com/rs/zerolog"
)

// authServer counts credential exchanges and issues sequential tokens
func authServer(t *testing.T, hits *atomic.Int64, expiresIn int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("auth called with %s", r.Method)
		}
		var req authRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
			t.Errorf("bad auth payload: %v", err)
		}
		n := hits.Add(1)
		_ = json.NewEncoder(w).Encode(authResponse{
			AccessToken: fmt.Sprintf("tok-%d", n),
			ExpiresIn:   expiresIn,
		})
	}))
}

func newTestClient(t *testing.T, apiURL, authURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:   apiURL,
		AuthURL:   authURL,
		APIKey:    "k",
		APISecret: "s",
		Timeout:   5 * time.Second,
		PageSize:  100,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestTokenRefreshIsSingleFlight(t *testing.T) {
	var authHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	tm := NewTokenManager(auth.Client(), auth.URL, "k", "s", zerolog.Nop())

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := tm.Token(context.Background())
			if err != nil {
				t.Errorf("Token: %v", err)
			}
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	if got := authHits.Load(); got != 1 {
		t.Fatalf("want exactly 1 credential exchange, got %d", got)
	}
	for _, tok := range tokens {
		if tok != "tok-1" {
			t.Fatalf("caller saw token %q, want tok-1", tok)
		}
	}
}

func TestTokenExpiryTriggersRefresh(t *testing.T) {
	var authHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	tm := NewTokenManager(auth.Client(), auth.URL, "k", "s", zerolog.Nop())
	now := time.Now()
	tm.now = func() time.Time { return now }

	if _, err := tm.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	// still inside lifetime minus skew
	now = now.Add(3600*time.Second - defaultSkew - time.Second)
	if _, err := tm.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if authHits.Load() != 1 {
		t.Fatalf("valid token must be reused, got %d exchanges", authHits.Load())
	}
	// past the skewed deadline
	now = now.Add(2 * time.Second)
	tok, err := tm.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok != "tok-2" || authHits.Load() != 2 {
		t.Fatalf("expired token must refresh: tok=%s exchanges=%d", tok, authHits.Load())
	}
}

func TestUnauthorizedRetriesExactlyOnce(t *testing.T) {
	var authHits, apiHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := apiHits.Add(1)
		if r.Header.Get("Authorization") == "Bearer tok-1" || n == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(pageResponse{Data: []map[string]any{{"id": "P-1"}}})
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)
	recs, err := c.getAllPages(context.Background(), epTransactions, nil)
	if err != nil {
		t.Fatalf("getAllPages: %v", err)
	}
	if len(recs) != 1 || recs[0]["id"] != "P-1" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if apiHits.Load() != 2 {
		t.Fatalf("want exactly 2 API calls (401 then retry), got %d", apiHits.Load())
	}
	if authHits.Load() != 2 {
		t.Fatalf("want 2 exchanges (initial + post-401 refresh), got %d", authHits.Load())
	}
}

func TestPersistentUnauthorizedIsAuthFailure(t *testing.T) {
	var authHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)
	_, err := c.getAllPages(context.Background(), epTransactions, nil)
	if err == nil {
		t.Fatal("want error")
	}
	if !perr.IsCode(err, perr.ErrorCodeAuthFailed) {
		t.Fatalf("want auth failure, got %v (code %d)", err, perr.CodeOf(err))
	}
}

func TestServerErrorIsUpstreamWithoutRetry(t *testing.T) {
	var authHits, apiHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)
	_, err := c.getAllPages(context.Background(), epTransactions, nil)
	if !perr.IsCode(err, perr.ErrorCodeUpstream) {
		t.Fatalf("want upstream error, got %v", err)
	}
	if apiHits.Load() != 1 {
		t.Fatalf("non-auth failures must not retry, got %d calls", apiHits.Load())
	}
}

func TestPaginationWalksUntilShortPage(t *testing.T) {
	var authHits atomic.Int64
	auth := authServer(t, &authHits, 3600)
	defer auth.Close()

	// page 1 full (2 records), page 2 short (1 record)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "1":
			_ = json.NewEncoder(w).Encode(pageResponse{Data: []map[string]any{{"id": "a"}, {"id": "b"}}})
		case "2":
			_ = json.NewEncoder(w).Encode(pageResponse{Data: []map[string]any{{"id": "c"}}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer api.Close()

	c := newTestClient(t, api.URL, auth.URL)
	c.pageSize = 2

	recs, err := c.getAllPages(context.Background(), epRentals, nil)
	if err != nil {
		t.Fatalf("getAllPages: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("want 3 records across pages, got %d", len(recs))
	}
}
