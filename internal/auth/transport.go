package auth

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Compile-time interface assertion.
var _ http.RoundTripper = (*Transport)(nil)

// Transport is an http.RoundTripper that authenticates requests with tokens
// from a [Source] and recovers once from a 401.
type Transport struct {
	Source *Source

	// Base is the underlying transport. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// NewTransport returns a Transport over base.
func NewTransport(src *Source, base http.RoundTripper) *Transport {
	return &Transport{Source: src, Base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer req.Body.Close()
	}

	tok, err := t.Source.Token()
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(authorize(req, tok.AccessToken, tok.Type()))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	// A request whose body cannot be rewound is not replayed.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	t.Source.Invalidate(tok)
	fresh, err := t.Source.Token()
	if err != nil {
		if errors.Is(err, ErrLoginRequired) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLoginRequired, err)
	}

	retry := authorize(req, fresh.AccessToken, fresh.Type())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("auth: rewind request body: %w", err)
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// authorize returns a shallow clone of req carrying the bearer header.
// RoundTrippers must not modify the caller's request.
func authorize(req *http.Request, access, typ string) *http.Request {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", typ+" "+access)
	return r
}
