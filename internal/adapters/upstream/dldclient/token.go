package dldclient

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	perr "marketpulse/internal/platform/errors"
	"marketpulse/internal/platform/logger"
	"marketpulse/internal/platform/metrics"
)

// defaultSkew is subtracted from the advertised token lifetime so a token is
// never presented moments before the upstream stops honoring it
const defaultSkew = 30 * time.Second

// TokenManager owns the bearer token for the upstream API. Refresh is
// single-flight: concurrent callers that find the token expired serialize on
// the mutex and all but the first reuse the fresh token.
type TokenManager struct {
	httpc   *http.Client
	authURL string
	key     string
	secret  string
	skew    time.Duration
	log     logger.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenManager builds a manager; httpc may be shared with the client
func NewTokenManager(httpc *http.Client, authURL, key, secret string, log logger.Logger) *TokenManager {
	return &TokenManager{
		httpc:   httpc,
		authURL: authURL,
		key:     key,
		secret:  secret,
		skew:    defaultSkew,
		log:     log,
		now:     time.Now,
	}
}

type authRequest struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
}

type authResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Token returns a valid bearer token, refreshing it if missing or expired
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt) {
		return m.token, nil
	}
	return m.refreshLocked(ctx)
}

// Invalidate drops tok if it is still the current token. A stale tok (already
// replaced by a concurrent refresh) is ignored so the fresh token survives.
func (m *TokenManager) Invalidate(tok string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == tok {
		m.token = ""
		m.expiresAt = time.Time{}
	}
}

func (m *TokenManager) refreshLocked(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{APIKey: m.key, APISecret: m.secret})
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeAuthFailed, "marshal auth request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, bytes.NewReader(body))
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeAuthFailed, "build auth request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeAuthFailed, "auth request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", perr.Newf(perr.ErrorCodeAuthFailed, "auth endpoint returned %d", resp.StatusCode)
	}

	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeAuthFailed, "decode auth response")
	}
	if ar.AccessToken == "" || ar.ExpiresIn <= 0 {
		return "", perr.New(perr.ErrorCodeAuthFailed, "auth response missing token or lifetime")
	}

	m.token = ar.AccessToken
	m.expiresAt = m.now().Add(time.Duration(ar.ExpiresIn)*time.Second - m.skew)
	metrics.TokenRefreshes.Inc()
	m.log.Debug().Time("expires_at", m.expiresAt).Msg("bearer token refreshed")
	return m.token, nil
}
