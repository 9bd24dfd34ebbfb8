package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/go-cmp/cmp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/murmur/internal/api"
	"github.com/MrWong99/murmur/internal/health"
	"github.com/MrWong99/murmur/internal/observe"
	"github.com/MrWong99/murmur/internal/voicequeue"
	audiomock "github.com/MrWong99/murmur/pkg/audio/mock"
	"github.com/MrWong99/murmur/pkg/provider/tts"
	ttsmock "github.com/MrWong99/murmur/pkg/provider/tts/mock"
	"github.com/MrWong99/murmur/pkg/voice"
)

// ─── fake queue ───────────────────────────────────────────────────────────────

type speakCall struct {
	Text   string
	Mode   voice.Mode
	Gender voice.Gender
}

type fakeQueue struct {
	mu      sync.Mutex
	calls   []speakCall
	id      string
	err     error
	stops   int
	pauses  int
	resumes int
	status  voicequeue.Status
	updates chan voicequeue.Status
	policy  *voice.Policy
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		id:      "req-1",
		updates: make(chan voicequeue.Status, 8),
		policy:  voice.MustDefaultPolicy(),
	}
}

func (q *fakeQueue) Speak(text string, mode voice.Mode, gender voice.Gender) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, speakCall{Text: text, Mode: mode, Gender: gender})
	if q.err != nil {
		return "", q.err
	}
	if !q.policy.IsVoiceEnabled(mode) {
		return "", nil
	}
	return q.id, nil
}

func (q *fakeQueue) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *fakeQueue) Stop()   { q.mu.Lock(); q.stops++; q.mu.Unlock() }
func (q *fakeQueue) Pause()  { q.mu.Lock(); q.pauses++; q.mu.Unlock() }
func (q *fakeQueue) Resume() { q.mu.Lock(); q.resumes++; q.mu.Unlock() }

func (q *fakeQueue) Status() voicequeue.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

func (q *fakeQueue) Subscribe() (<-chan voicequeue.Status, func()) {
	return q.updates, func() {}
}

func (q *fakeQueue) Policy() *voice.Policy { return q.policy }

// ─── helpers ──────────────────────────────────────────────────────────────────

func newTestServer(t *testing.T, q api.Queue, opts ...api.Option) *httptest.Server {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	srv := httptest.NewServer(api.New(q, append([]api.Option{api.WithMetrics(met)}, opts...)...))
	t.Cleanup(srv.Close)
	return srv
}

type liveManager struct {
	*voicequeue.Manager
	player *audiomock.Handle
}

// newLiveManager builds a real queue whose synthesizer echoes the request
// text and whose player holds each item until the gate is released.
func newLiveManager(t *testing.T) liveManager {
	t.Helper()
	synth := &ttsmock.Synthesizer{
		SynthesizeFunc: func(_ context.Context, req tts.Request) (tts.Audio, error) {
			return tts.Audio{Data: []byte(req.Text)}, nil
		},
	}
	player := &audiomock.Handle{Gate: make(chan struct{})}
	m := voicequeue.New(voice.MustDefaultPolicy(), synth, player)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return liveManager{Manager: m, player: player}
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// ─── /v1/speak ────────────────────────────────────────────────────────────────

func TestSpeak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		queueErr   error
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:       "queued",
			body:       `{"text":"Hello there","personality":"business_mentor","gender":"female"}`,
			wantStatus: http.StatusAccepted,
			wantBody:   map[string]any{"id": "req-1"},
		},
		{
			name:       "disabled mode is dropped",
			body:       `{"text":"Hi","personality":"student_tutor","gender":"male"}`,
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"dropped": true},
		},
		{
			name:       "gender is normalised",
			body:       `{"text":"Hi","personality":"life_coach","gender":" Male "}`,
			wantStatus: http.StatusAccepted,
			wantBody:   map[string]any{"id": "req-1"},
		},
		{
			name:       "invalid gender",
			body:       `{"text":"Hi","personality":"life_coach","gender":"robot"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": `voice: invalid gender "robot": must be male or female`, "field": "gender"},
		},
		{
			name:       "validation error from queue",
			body:       `{"text":"","personality":"life_coach","gender":"male"}`,
			queueErr:   &voice.ValidationError{Field: "text", Reason: "must not be empty"},
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "voice: invalid text: must not be empty", "field": "text"},
		},
		{
			name:       "malformed json",
			body:       `{"text":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "invalid request body"},
		},
		{
			name:       "unknown field",
			body:       `{"text":"Hi","gender":"male","volume":11}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   map[string]any{"error": "invalid request body"},
		},
		{
			name:       "closed queue",
			body:       `{"text":"Hi","personality":"life_coach","gender":"male"}`,
			queueErr:   voicequeue.ErrClosed,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]any{"error": voicequeue.ErrClosed.Error()},
		},
		{
			name:       "unexpected error",
			body:       `{"text":"Hi","personality":"life_coach","gender":"male"}`,
			queueErr:   errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   map[string]any{"error": "internal error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := newFakeQueue()
			q.err = tt.queueErr
			srv := newTestServer(t, q)

			resp := post(t, srv, "/v1/speak", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q", ct)
			}
			got := decode[map[string]any](t, resp)
			if diff := cmp.Diff(tt.wantBody, got); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpeak_ForwardsRequest(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	srv := newTestServer(t, q)

	post(t, srv, "/v1/speak", `{"text":"Plan the week","personality":"business_mentor","gender":"FEMALE"}`)

	want := []speakCall{{Text: "Plan the week", Mode: voice.ModeBusinessMentor, Gender: voice.GenderFemale}}
	q.mu.Lock()
	defer q.mu.Unlock()
	if diff := cmp.Diff(want, q.calls); diff != "" {
		t.Errorf("Speak calls mismatch (-want +got):\n%s", diff)
	}
}

func TestSpeak_BodyTooLarge(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	srv := newTestServer(t, q)

	body := `{"text":"` + strings.Repeat("a", 70<<10) + `","gender":"male"}`
	resp := post(t, srv, "/v1/speak", body)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
	if n := q.callCount(); n != 0 {
		t.Errorf("Speak called %d times, want 0", n)
	}
}

func TestSpeak_RateLimited(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	srv := newTestServer(t, q, api.WithRateLimit(0.001, 2))

	body := `{"text":"Hi","personality":"life_coach","gender":"male"}`
	for i := range 2 {
		if resp := post(t, srv, "/v1/speak", body); resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: status = %d, want 202", i, resp.StatusCode)
		}
	}
	resp := post(t, srv, "/v1/speak", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if n := q.callCount(); n != 2 {
		t.Errorf("Speak called %d times, want 2", n)
	}
}

// ─── controls ─────────────────────────────────────────────────────────────────

func TestControls(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	srv := newTestServer(t, q)

	for _, path := range []string{"/v1/stop", "/v1/pause", "/v1/resume", "/v1/resume"} {
		if resp := post(t, srv, path, ""); resp.StatusCode != http.StatusNoContent {
			t.Errorf("POST %s: status = %d, want 204", path, resp.StatusCode)
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stops != 1 || q.pauses != 1 || q.resumes != 2 {
		t.Errorf("stops=%d pauses=%d resumes=%d, want 1/1/2", q.stops, q.pauses, q.resumes)
	}
}

func TestControls_WrongMethod(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeQueue())

	resp, err := http.Get(srv.URL + "/v1/stop")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", resp.StatusCode)
	}
}

// ─── status / voices ──────────────────────────────────────────────────────────

func TestStatus(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.status = voicequeue.Status{
		Processing: true,
		Playing:    true,
		Pending:    2,
		Current:    &voicequeue.Item{ID: "abc", Text: "Hello", Mode: voice.ModeLifeCoach, Gender: voice.GenderMale},
	}
	srv := newTestServer(t, q)

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	got := decode[voicequeue.Status](t, resp)
	if diff := cmp.Diff(q.status, got); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestVoices(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeQueue())

	resp, err := http.Get(srv.URL + "/v1/voices")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got struct {
		DefaultMode string `json:"default_mode"`
		Modes       []struct {
			Mode    string         `json:"mode"`
			Enabled bool           `json:"enabled"`
			Male    *voice.Profile `json:"male"`
			Female  *voice.Profile `json:"female"`
		} `json:"modes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DefaultMode != string(voice.ModePersonalFriend) {
		t.Errorf("default_mode = %q", got.DefaultMode)
	}
	if len(got.Modes) != 5 {
		t.Fatalf("modes = %d, want 5", len(got.Modes))
	}
	enabled := map[string]bool{}
	for _, m := range got.Modes {
		enabled[m.Mode] = m.Enabled
		if m.Male == nil || m.Female == nil {
			t.Errorf("mode %q missing voices", m.Mode)
		}
	}
	want := map[string]bool{
		"business_mentor":  true,
		"creative_partner": true,
		"life_coach":       true,
		"personal_friend":  true,
		"student_tutor":    false,
	}
	if diff := cmp.Diff(want, enabled); diff != "" {
		t.Errorf("enabled mismatch (-want +got):\n%s", diff)
	}
}

// ─── mounted handlers ─────────────────────────────────────────────────────────

func TestMountedHandlers(t *testing.T) {
	t.Parallel()
	var metricsHit, mcpHit atomic.Bool
	srv := newTestServer(t, newFakeQueue(),
		api.WithHealth(health.New(health.Checker{Name: "ok", Check: func(context.Context) error { return nil }})),
		api.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			metricsHit.Store(true)
			w.WriteHeader(http.StatusOK)
		})),
		api.WithMCPHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mcpHit.Store(true)
			w.WriteHeader(http.StatusAccepted)
		})),
	)

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusOK,
		"/metrics": http.StatusOK,
	} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("GET %s: status = %d, want %d", path, resp.StatusCode, want)
		}
	}
	if resp := post(t, srv, "/mcp", "{}"); resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST /mcp: status = %d, want 202", resp.StatusCode)
	}
	if !metricsHit.Load() || !mcpHit.Load() {
		t.Errorf("metricsHit=%v mcpHit=%v, want both", metricsHit.Load(), mcpHit.Load())
	}
}

func TestUnmountedHandlers(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeQueue())

	for _, path := range []string{"/healthz", "/metrics", "/mcp"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s: status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestCorrelationHeader(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, newFakeQueue())

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/status", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Correlation-ID"); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("X-Correlation-ID = %q", got)
	}
}

// ─── /v1/events ───────────────────────────────────────────────────────────────

func dialEvents(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/events", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) voicequeue.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var st voicequeue.Status
	if err := wsjson.Read(ctx, conn, &st); err != nil {
		t.Fatalf("read status: %v", err)
	}
	return st
}

func TestEvents_StreamsStatus(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	q.status = voicequeue.Status{Pending: 1}
	srv := newTestServer(t, q)
	conn := dialEvents(t, srv)

	if got := readStatus(t, conn); got.Pending != 1 {
		t.Errorf("initial Pending = %d, want 1", got.Pending)
	}

	q.updates <- voicequeue.Status{Processing: true, Playing: true}
	if got := readStatus(t, conn); !got.Playing {
		t.Errorf("update = %+v, want Playing", got)
	}
}

func TestEvents_ClosedOnShutdown(t *testing.T) {
	t.Parallel()
	q := newFakeQueue()
	srv := newTestServer(t, q)
	conn := dialEvents(t, srv)
	readStatus(t, conn)

	close(q.updates)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v (err %v), want StatusGoingAway", got, err)
	}
}

func TestEvents_RealQueue(t *testing.T) {
	t.Parallel()
	m := newLiveManager(t)
	srv := newTestServer(t, m.Manager)
	conn := dialEvents(t, srv)

	if got := readStatus(t, conn); got.Active() {
		t.Fatalf("initial status = %+v, want idle", got)
	}

	resp := post(t, srv, "/v1/speak", `{"text":"Hello","personality":"life_coach","gender":"male"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("speak status = %d", resp.StatusCode)
	}

	for st := readStatus(t, conn); !st.Playing; st = readStatus(t, conn) {
	}
	close(m.player.Gate)
	for st := readStatus(t, conn); st.Active(); st = readStatus(t, conn) {
	}

	if got := m.player.PlayCount(); got != 1 {
		t.Errorf("PlayCount = %d, want 1", got)
	}
	if !bytes.Equal(m.player.Played()[0], []byte("Hello")) {
		t.Errorf("played %q, want %q", m.player.Played()[0], "Hello")
	}
}
