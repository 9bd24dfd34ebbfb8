// Package remote provides the tts.Synthesizer backed by the companion API's
// speech endpoint:
//
//	POST <api-root>/voice/generate
//	Authorization: Bearer <access-token>
//	Content-Type: application/json
//
//	{"text": "...", "personality": "business_mentor", "gender": "female",
//	 "model": "...", "output_format": "mp3", "instructions": "..."}
//
// A 2xx response carries the binary audio payload; anything else is surfaced
// as a [tts.SynthesisError] with the status and body unchanged.
//
// Typical usage:
//
//	c, err := remote.New("https://api.example.com",
//	    remote.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})),
//	    remote.WithOutputFormat("mp3"),
//	)
//	audio, err := c.Synthesize(ctx, tts.Request{Text: "Hello there", ...})
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrWong99/murmur/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Client)(nil)

const (
	generatePath   = "/voice/generate"
	defaultTimeout = 30 * time.Second

	// maxAudioBytes bounds a single audio payload.
	maxAudioBytes = 32 << 20

	// maxErrorBody bounds the error body kept in a SynthesisError.
	maxErrorBody = 64 << 10
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Use it to install an
// authenticating transport that refreshes tokens. The client's Timeout is
// left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource attaches a bearer token to every request via
// [oauth2.Transport] layered over the current HTTP client transport.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithModel sets the optional synthesis model identifier.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithOutputFormat sets the optional output format (e.g. "mp3", "wav").
func WithOutputFormat(format string) Option {
	return func(c *Client) {
		c.outputFormat = format
	}
}

// WithInstructions sets fixed tone guidance sent with every request. When
// unset, the resolved voice profile's description is sent instead.
func WithInstructions(instructions string) Option {
	return func(c *Client) {
		c.instructions = instructions
	}
}

// Client implements tts.Synthesizer against the companion API.
// It is safe for concurrent use.
type Client struct {
	endpoint     string
	httpClient   *http.Client
	tokens       oauth2.TokenSource
	timeout      time.Duration
	model        string
	outputFormat string
	instructions string
}

// New creates a Client for the API rooted at apiRoot (e.g.
// "https://api.example.com/api"). apiRoot must be non-empty.
func New(apiRoot string, opts ...Option) (*Client, error) {
	if apiRoot == "" {
		return nil, errors.New("remote: apiRoot must not be empty")
	}
	c := &Client{
		endpoint:   strings.TrimRight(apiRoot, "/") + generatePath,
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if c.tokens != nil {
		base := c.httpClient.Transport
		hc := *c.httpClient
		hc.Transport = &oauth2.Transport{Source: c.tokens, Base: base}
		c.httpClient = &hc
	}
	return c, nil
}

// generateRequest is the JSON body of POST /voice/generate.
type generateRequest struct {
	Text         string `json:"text"`
	Personality  string `json:"personality"`
	Gender       string `json:"gender"`
	Model        string `json:"model,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Synthesize sends req to the speech endpoint and returns the audio payload.
// Exactly one HTTP request is made per call.
func (c *Client) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if err := tts.ValidateRequest(req); err != nil {
		return tts.Audio{}, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("remote: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return tts.Audio{}, fmt.Errorf("remote: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/*")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return tts.Audio{}, &tts.TransportError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return tts.Audio{}, &tts.TransportError{Op: "read error body", Err: err}
		}
		return tts.Audio{}, &tts.SynthesisError{
			HTTPStatus: resp.StatusCode,
			Body:       string(msg),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return tts.Audio{}, &tts.TransportError{Op: "read body", Err: err}
	}
	if len(data) > maxAudioBytes {
		return tts.Audio{}, &tts.SynthesisError{
			HTTPStatus: resp.StatusCode,
			Body:       fmt.Sprintf("audio exceeds size limit of %d bytes", maxAudioBytes),
		}
	}
	return tts.Audio{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// buildBody assembles the wire body for req.
func (c *Client) buildBody(req tts.Request) generateRequest {
	instructions := c.instructions
	if instructions == "" {
		instructions = req.Voice.Description
	}
	return generateRequest{
		Text:         req.Text,
		Personality:  string(req.Personality),
		Gender:       string(req.Gender),
		Model:        c.model,
		OutputFormat: c.outputFormat,
		Instructions: instructions,
	}
}
