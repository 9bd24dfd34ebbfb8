// Package openai provides a tts.Synthesizer backed by the OpenAI speech
// endpoint. It bypasses the companion API and is meant for local use and
// development when only an OpenAI key is at hand.
//
// The OpenAI catalogue does not know the companion's voice IDs, so the
// requested gender picks one of two configured OpenAI voices, and the
// resolved profile description is passed as tone instructions.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

const (
	// DefaultModel is the speech model used when none is configured.
	DefaultModel = oai.SpeechModelGPT4oMiniTTS

	// DefaultMaleVoice and DefaultFemaleVoice are the voices picked by gender
	// when none are configured.
	DefaultMaleVoice   = "onyx"
	DefaultFemaleVoice = "nova"

	defaultTimeout = 30 * time.Second
	maxAudioBytes  = 32 << 20
)

// Ensure Synthesizer implements the tts.Synthesizer interface.
var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer implements tts.Synthesizer using the OpenAI API.
type Synthesizer struct {
	client       oai.Client
	model        string
	maleVoice    string
	femaleVoice  string
	format       string
	instructions string
}

// config holds optional configuration for the synthesizer.
type config struct {
	baseURL      string
	timeout      time.Duration
	maleVoice    string
	femaleVoice  string
	format       string
	instructions string
}

// Option is a functional option for Synthesizer.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithVoices sets the OpenAI voices used for male and female requests.
func WithVoices(male, female string) Option {
	return func(c *config) {
		if male != "" {
			c.maleVoice = male
		}
		if female != "" {
			c.femaleVoice = female
		}
	}
}

// WithResponseFormat sets the audio format ("mp3" or "wav"). Defaults to mp3.
func WithResponseFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithInstructions sets fixed tone instructions, overriding the profile
// description.
func WithInstructions(instructions string) Option {
	return func(c *config) {
		c.instructions = instructions
	}
}

// New constructs a Synthesizer. If model is empty, DefaultModel is used.
// Retries inside the OpenAI client are disabled: one Synthesize call is one
// HTTP request.
func New(apiKey string, model string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{
		timeout:     defaultTimeout,
		maleVoice:   DefaultMaleVoice,
		femaleVoice: DefaultFemaleVoice,
		format:      string(oai.AudioSpeechNewParamsResponseFormatMP3),
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Synthesizer{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		maleVoice:    cfg.maleVoice,
		femaleVoice:  cfg.femaleVoice,
		format:       cfg.format,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if err := tts.ValidateRequest(req); err != nil {
		return tts.Audio{}, err
	}

	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          oai.SpeechModel(s.model),
		Voice:          oai.AudioSpeechNewParamsVoice(s.voiceFor(req.Gender)),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(s.format),
	}
	if instr := s.instructionsFor(req); instr != "" {
		params.Instructions = oai.String(instr)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return tts.Audio{}, &tts.SynthesisError{
				HTTPStatus: apiErr.StatusCode,
				Body:       strings.TrimSpace(apiErr.RawJSON()),
			}
		}
		return tts.Audio{}, &tts.TransportError{Op: "send", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return tts.Audio{}, &tts.TransportError{Op: "read body", Err: err}
	}
	if len(data) == 0 {
		return tts.Audio{}, fmt.Errorf("openai tts: empty audio response")
	}
	return tts.Audio{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

func (s *Synthesizer) voiceFor(g voice.Gender) string {
	if g == voice.GenderMale {
		return s.maleVoice
	}
	return s.femaleVoice
}

func (s *Synthesizer) instructionsFor(req tts.Request) string {
	if s.instructions != "" {
		return s.instructions
	}
	return req.Voice.Description
}
