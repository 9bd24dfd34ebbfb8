// Package auth keeps the companion API's bearer token fresh.
//
// [Source] is an oauth2.TokenSource holding the current access token. It
// refreshes through POST <api-root>/auth/refresh when the token has expired
// or was rejected. [Transport] attaches the token to every outgoing request
// and, when the API answers 401, refreshes once and replays the request once.
// If no fresh token can be obtained the caller gets [ErrLoginRequired]: the
// user has to sign in again.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrLoginRequired is returned when the session cannot be renewed: there is
// no refresh token, or the API rejected it.
var ErrLoginRequired = errors.New("auth: login required")

const (
	refreshPath    = "/auth/refresh"
	refreshTimeout = 15 * time.Second

	// expiryDelta renews tokens slightly before they expire.
	expiryDelta = 10 * time.Second
)

// Compile-time interface assertion.
var _ oauth2.TokenSource = (*Source)(nil)

// Option is a functional option for [NewSource].
type Option func(*Source)

// WithHTTPClient sets the client used for refresh calls. It must not route
// through a [Transport] backed by the same Source.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) {
		if hc != nil {
			s.hc = hc
		}
	}
}

// WithOnRefresh registers fn to be called with every newly issued token, for
// example to persist it.
func WithOnRefresh(fn func(*oauth2.Token)) Option {
	return func(s *Source) {
		s.onRefresh = fn
	}
}

// Source is a refreshing oauth2.TokenSource. It is safe for concurrent use;
// concurrent callers share a single refresh.
type Source struct {
	refreshURL string
	hc         *http.Client
	onRefresh  func(*oauth2.Token)

	mu      sync.Mutex
	tok     *oauth2.Token
	refresh string
}

// NewSource creates a Source for the API rooted at apiRoot. accessToken may
// be empty, in which case the first Token call refreshes.
func NewSource(apiRoot, accessToken, refreshToken string, opts ...Option) *Source {
	s := &Source{
		refreshURL: strings.TrimRight(apiRoot, "/") + refreshPath,
		hc:         &http.Client{Timeout: refreshTimeout},
		refresh:    refreshToken,
	}
	if accessToken != "" {
		s.tok = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Token returns a valid access token, refreshing it if necessary.
func (s *Source) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok != nil && s.tok.Valid() {
		return s.tok, nil
	}
	return s.refreshLocked(context.Background())
}

// Invalidate marks stale as rejected so the next Token call refreshes. It is
// a no-op when the current token has already been replaced.
func (s *Source) Invalidate(stale *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tok != nil && stale != nil && s.tok.AccessToken == stale.AccessToken {
		s.tok = nil
	}
}

// refreshResponse is the JSON body returned by POST /auth/refresh.
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// refreshLocked exchanges the refresh token for a new access token. s.mu must
// be held.
func (s *Source) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	if s.refresh == "" {
		return nil, ErrLoginRequired
	}

	body, err := json.Marshal(map[string]string{"refresh_token": s.refresh})
	if err != nil {
		return nil, fmt.Errorf("auth: encode refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("auth: build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: refresh: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusBadRequest:
		slog.Warn("auth: refresh token rejected", "status", resp.StatusCode)
		s.refresh = ""
		return nil, ErrLoginRequired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("auth: refresh: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("auth: decode refresh response: %w", err)
	}
	if rr.AccessToken == "" {
		return nil, errors.New("auth: refresh response has no access_token")
	}

	tok := &oauth2.Token{AccessToken: rr.AccessToken, TokenType: rr.TokenType}
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}
	if rr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(rr.ExpiresIn)*time.Second - expiryDelta)
	}
	if rr.RefreshToken != "" {
		s.refresh = rr.RefreshToken
		tok.RefreshToken = rr.RefreshToken
	}
	s.tok = tok
	slog.Debug("auth: access token refreshed", "expiry", tok.Expiry)
	if s.onRefresh != nil {
		s.onRefresh(tok)
	}
	return tok, nil
}
