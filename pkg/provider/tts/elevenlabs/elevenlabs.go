// Package elevenlabs provides an ElevenLabs-backed tts.Synthesizer using the
// ElevenLabs stream-input WebSocket API.
//
// One Synthesize call opens one WebSocket, sends the whole text followed by a
// flush, and collects every audio frame until the server marks the stream
// final. PCM output formats are returned wrapped in a WAV container so the
// player can read the sample rate; other formats are returned as-is.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/murmur/pkg/audio"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	"github.com/MrWong99/murmur/pkg/voice"
)

const (
	defaultBaseURL   = "wss://api.elevenlabs.io"
	streamPathFmt    = "/v1/text-to-speech/%s/stream-input"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_24000"
	defaultTimeout   = 30 * time.Second

	// DefaultMaleVoice and DefaultFemaleVoice are ElevenLabs premade voices
	// ("Adam" and "Rachel").
	DefaultMaleVoice   = "pNInz6obpgDQGcFmaJgB"
	DefaultFemaleVoice = "21m00Tcm4TlvDq8ikWAM"

	// maxAudioBytes bounds the decoded payload of one request.
	maxAudioBytes = 32 << 20

	// maxFrameBytes bounds a single WebSocket frame. Frames carry base64
	// audio and regularly exceed the library's 32 KiB default.
	maxFrameBytes = 4 << 20
)

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Option is a functional option for configuring the ElevenLabs Synthesizer.
type Option func(*Synthesizer)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(s *Synthesizer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithOutputFormat sets the audio output format (e.g., "pcm_24000",
// "mp3_44100_128"). Defaults to pcm_24000.
func WithOutputFormat(format string) Option {
	return func(s *Synthesizer) {
		if format != "" {
			s.outputFormat = format
		}
	}
}

// WithVoices sets the ElevenLabs voice IDs used for male and female requests.
// Empty values keep the defaults.
func WithVoices(male, female string) Option {
	return func(s *Synthesizer) {
		if male != "" {
			s.maleVoice = male
		}
		if female != "" {
			s.femaleVoice = female
		}
	}
}

// WithBaseURL overrides the WebSocket base URL (e.g. "ws://127.0.0.1:9000").
func WithBaseURL(u string) Option {
	return func(s *Synthesizer) {
		if u != "" {
			s.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds one Synthesize call. Defaults to 30 s; zero disables.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.timeout = d
	}
}

// Synthesizer implements tts.Synthesizer backed by the ElevenLabs streaming
// API. It is safe for concurrent use.
type Synthesizer struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	maleVoice    string
	femaleVoice  string
	timeout      time.Duration
}

// New creates a new ElevenLabs Synthesizer. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Synthesizer, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	s := &Synthesizer{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		maleVoice:    DefaultMaleVoice,
		femaleVoice:  DefaultFemaleVoice,
		timeout:      defaultTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

var defaultSettings = &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (tts.Audio, error) {
	if err := tts.ValidateRequest(req); err != nil {
		return tts.Audio{}, err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("xi-api-key", s.apiKey)
	conn, resp, err := websocket.Dial(ctx, s.streamURL(s.voiceFor(req.Gender)), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return tts.Audio{}, &tts.SynthesisError{HTTPStatus: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
		}
		return tts.Audio{}, &tts.TransportError{Op: "dial", Err: err}
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	// Begin of input, the text, then an empty text to flush the stream.
	for _, msg := range []any{
		boiMessage{Text: " ", VoiceSettings: defaultSettings, XiAPIKey: s.apiKey},
		textMessage{Text: req.Text + " "},
		textMessage{Text: ""},
	} {
		data, _ := json.Marshal(msg)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return tts.Audio{}, &tts.TransportError{Op: "send", Err: err}
		}
	}

	data, err := s.collect(ctx, conn)
	if err != nil {
		return tts.Audio{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return s.wrap(data), nil
}

// collect reads audio frames until the stream is final or the server closes
// the connection normally.
func (s *Synthesizer) collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var out []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &tts.TransportError{Op: "read", Err: ctx.Err()}
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				if ce.Code == websocket.StatusNormalClosure && len(out) > 0 {
					return out, nil
				}
				if ce.Code != websocket.StatusNormalClosure {
					return nil, &tts.SynthesisError{Body: fmt.Sprintf("connection closed (%d): %s", ce.Code, ce.Reason)}
				}
				return nil, &tts.SynthesisError{Body: "stream closed without audio"}
			}
			return nil, &tts.TransportError{Op: "read", Err: err}
		}

		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			body := resp.Error
			if resp.Message != "" {
				body += ": " + resp.Message
			}
			return nil, &tts.SynthesisError{Body: body}
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return nil, &tts.SynthesisError{Body: "invalid audio frame: " + err.Error()}
			}
			if len(out)+len(chunk) > maxAudioBytes {
				return nil, &tts.SynthesisError{Body: "audio exceeds size limit"}
			}
			out = append(out, chunk...)
		}
		if resp.IsFinal {
			if len(out) == 0 {
				return nil, &tts.SynthesisError{Body: "stream finished without audio"}
			}
			return out, nil
		}
	}
}

// wrap packages raw PCM formats as WAV and passes everything else through.
func (s *Synthesizer) wrap(data []byte) tts.Audio {
	if rate, ok := pcmRate(s.outputFormat); ok {
		return tts.Audio{
			Data:        audio.EncodeWAV(audio.PCM{Data: data, Format: audio.Format{SampleRate: rate, Channels: 1}}),
			ContentType: "audio/wav",
		}
	}
	ct := ""
	if strings.HasPrefix(s.outputFormat, "mp3") {
		ct = "audio/mpeg"
	}
	return tts.Audio{Data: data, ContentType: ct}
}

func (s *Synthesizer) voiceFor(g voice.Gender) string {
	if g == voice.GenderMale {
		return s.maleVoice
	}
	return s.femaleVoice
}

// streamURL constructs the WebSocket URL for a given voice.
func (s *Synthesizer) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", s.model)
	q.Set("output_format", s.outputFormat)
	return s.baseURL + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// pcmRate extracts the sample rate from formats like "pcm_24000".
func pcmRate(format string) (int, bool) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}
