package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aifiesta/internal/config"
	"aifiesta/internal/core"
	logpkg "aifiesta/internal/log"
	"aifiesta/internal/storage"
	"aifiesta/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream answers OpenRouter-style completions keyed by the requested model.
type fakeUpstream struct {
	*httptest.Server
	calls atomic.Int32
}

func newFakeUpstream(t *testing.T, handlers map[string]http.HandlerFunc) *fakeUpstream {
	t.Helper()
	up := &fakeUpstream{}
	up.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up.calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		var req core.CompletionRequest
		if err := util.UnmarshalJSON(body, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if h, ok := handlers[req.Model]; ok {
			h(w, r)
			return
		}
		_, _ = fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"echo %s"}}]}`, req.Model)
	}))
	t.Cleanup(up.Close)
	return up
}

type serverOption func(*config.ServerConfig)

func withClientKeys(keys ...string) serverOption {
	return func(c *config.ServerConfig) { c.ClientAPIKeys = keys }
}

func withRateLimit(n int) serverOption {
	return func(c *config.ServerConfig) { c.RateLimit = n }
}

func withAPIKey(key string) serverOption {
	return func(c *config.ServerConfig) { c.Upstream.APIKey = key }
}

func withStorage(st core.StorageInterface) serverOption {
	return func(c *config.ServerConfig) { c.Storage = st }
}

func newTestServer(t *testing.T, upstreamURL string, opts ...serverOption) *Server {
	t.Helper()

	dir := t.TempDir()
	upstream := config.DefaultUpstreamSettings()
	upstream.APIKey = "sk-or-test"
	upstream.Endpoint = upstreamURL
	upstream.Timeout = 2 * time.Second

	cfg := config.ServerConfig{
		Port:               "0",
		GinMode:            "test",
		RateLimit:          1000,
		ModelsConfigPath:   filepath.Join(dir, "models.json"),
		Upstream:           upstream,
		HTTPClientSettings: config.DefaultHTTPClientSettings(),
		Storage:            storage.NewFileStorage(filepath.Join(dir, "stats.json")),
		Logger:             &core.NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	server, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func postCompare(t *testing.T, s *Server, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/compare", strings.NewReader(body))
	req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) core.ComparisonResult {
	t.Helper()
	var result core.ComparisonResult
	require.NoError(t, util.UnmarshalJSON(w.Body.Bytes(), &result), w.Body.String())
	return result
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, util.UnmarshalJSON(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func modelList(n int) string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf(`"m%d"`, i+1)
	}
	return "[" + strings.Join(ids, ",") + "]"
}

func TestNewServer_RequiresLoggerAndStorage(t *testing.T) {
	_, err := NewServer(config.ServerConfig{})
	assert.ErrorContains(t, err, "logger")

	_, err = NewServer(config.ServerConfig{Logger: &core.NopLogger{}})
	assert.ErrorContains(t, err, "storage")
}

func TestCompare_EndToEnd(t *testing.T) {
	up := newFakeUpstream(t, map[string]http.HandlerFunc{
		"modelA": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Hello!"}}],"usage":{"total_tokens":5}}`)
		},
		"modelB": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, "invalid key")
		},
	})
	s := newTestServer(t, up.URL)

	w := postCompare(t, s, `{"prompt":"Say hi","selectedModels":["modelA","modelB"]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decodeResult(t, w)
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, result.Responses, 2)

	assert.Equal(t, "modelA", result.Responses[0].ModelID)
	assert.Equal(t, "Hello!", result.Responses[0].Content)
	require.NotNil(t, result.Responses[0].Tokens)
	assert.Equal(t, 5, *result.Responses[0].Tokens)
	assert.Empty(t, result.Responses[0].Error)

	assert.Equal(t, "modelB", result.Responses[1].ModelID)
	assert.Empty(t, result.Responses[1].Content)
	assert.Equal(t, "API Error (401): invalid key", result.Responses[1].Error)

	assert.NotContains(t, w.Body.String(), `"tokens":null`)
}

func TestCompare_AllModelsFailingIsStill200(t *testing.T) {
	fail := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "down")
	}
	up := newFakeUpstream(t, map[string]http.HandlerFunc{"a": fail, "b": fail})
	s := newTestServer(t, up.URL)

	w := postCompare(t, s, `{"prompt":"hi","selectedModels":["a","b"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	for _, out := range result.Responses {
		assert.Equal(t, "API Error (500): down", out.Error)
	}
}

func TestCompare_MaxModelsBoundary(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	w := postCompare(t, s, `{"prompt":"hi","selectedModels":`+modelList(9)+`}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, core.ErrMsgTooManyModels, decodeError(t, w)["error"])
	assert.Zero(t, up.calls.Load(), "rejected request must not reach upstream")

	w = postCompare(t, s, `{"prompt":"hi","selectedModels":`+modelList(8)+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	require.Len(t, result.Responses, 8)
	for i, out := range result.Responses {
		assert.Equal(t, fmt.Sprintf("m%d", i+1), out.ModelID)
		assert.Equal(t, "echo "+out.ModelID, out.Content)
	}
	assert.EqualValues(t, 8, up.calls.Load())
}

func TestCompare_MissingFields(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	bodies := []string{
		`{"prompt":"","selectedModels":["a"]}`,
		`{"prompt":"hi","selectedModels":[]}`,
		`{"prompt":"hi"}`,
		`{}`,
		`{"prompt":"","selectedModels":` + modelList(9) + `}`,
	}
	for _, body := range bodies {
		w := postCompare(t, s, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, core.ErrMsgMissingFields, decodeError(t, w)["error"], body)
	}
	assert.Zero(t, up.calls.Load())
}

func TestCompare_MalformedBody(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	for _, body := range []string{`{"prompt":`, `not json`, `{"prompt":"hi","selectedModels":"a"}`} {
		w := postCompare(t, s, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, core.ErrMsgInvalidBody, decodeError(t, w)["error"], body)
	}
	assert.Zero(t, up.calls.Load())
}

func TestCompare_OversizedBodyRejected(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	huge := `{"prompt":"` + strings.Repeat("x", core.MaxRequestBodySize) + `","selectedModels":["a"]}`
	w := postCompare(t, s, huge)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, up.calls.Load())
}

func TestCompare_MissingCredentialReportedPerModel(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL, withAPIKey(""))

	w := postCompare(t, s, `{"prompt":"hi","selectedModels":["a","b"]}`)

	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	require.Len(t, result.Responses, 2)
	for _, out := range result.Responses {
		assert.Equal(t, core.ErrMsgAPIKeyMissing, out.Error)
	}
	assert.Zero(t, up.calls.Load())
}

type panickingComparer struct{}

func (panickingComparer) Compare(_ context.Context, _ string, _ []string) core.ComparisonResult {
	panic("dispatcher exploded")
}

func TestCompare_UnexpectedFailureIs500(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)
	s.comparer = panickingComparer{}

	w := postCompare(t, s, `{"prompt":"hi","selectedModels":["a"]}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, core.ErrMsgInternal, body["error"])
	assert.Equal(t, "dispatcher exploded", body["details"])
}

func TestCompare_ClientKeys(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL, withClientKeys("client-1"))
	body := `{"prompt":"hi","selectedModels":["a"]}`

	assert.Equal(t, http.StatusUnauthorized, postCompare(t, s, body).Code)
	assert.Equal(t, http.StatusForbidden, postCompare(t, s, body, core.HeaderXAPIKey, "nope").Code)
	assert.Equal(t, http.StatusOK, postCompare(t, s, body, core.HeaderAuthorization, core.AuthBearerPrefix+"client-1").Code)
	assert.EqualValues(t, 1, up.calls.Load())
}

func TestCompare_RateLimited(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL, withRateLimit(2))
	body := `{"prompt":"hi","selectedModels":["a"]}`

	assert.Equal(t, http.StatusOK, postCompare(t, s, body).Code)
	assert.Equal(t, http.StatusOK, postCompare(t, s, body).Code)
	assert.Equal(t, http.StatusTooManyRequests, postCompare(t, s, body).Code)
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL, withClientKeys("client-1"))

	cases := []struct {
		path     string
		status   int
		contains string
	}{
		{"/health", http.StatusOK, `"healthy"`},
		{"/api/models", http.StatusOK, `"openai/gpt-4o"`},
		{"/api/models/anthropic/claude-3.5-sonnet", http.StatusOK, `"Claude 3.5 Sonnet"`},
		{"/api/models/nobody/nothing", http.StatusNotFound, "nobody/nothing"},
		{"/api/stats", http.StatusOK, `"stats24h"`},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.path)
		assert.Contains(t, w.Body.String(), tc.contains, tc.path)
	}
}

func TestStats_ReflectComparisons(t *testing.T) {
	up := newFakeUpstream(t, map[string]http.HandlerFunc{
		"bad": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
	})
	s := newTestServer(t, up.URL)

	require.Equal(t, http.StatusOK, postCompare(t, s, `{"prompt":"hi","selectedModels":["good","bad"]}`).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		TotalComparisons int64             `json:"totalComparisons"`
		TotalRequests    int64             `json:"totalRequests"`
		FailedRequests   int64             `json:"failedRequests"`
		Models           []core.ModelStats `json:"models"`
		HTTP             struct {
			Requests int64 `json:"requests"`
		} `json:"http"`
	}
	require.NoError(t, util.UnmarshalJSON(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.TotalComparisons)
	assert.GreaterOrEqual(t, stats.HTTP.Requests, int64(1), "inbound requests are counted")
	assert.EqualValues(t, 2, stats.TotalRequests)
	assert.EqualValues(t, 1, stats.FailedRequests)
	assert.Len(t, stats.Models, 2)
}

type spyStorage struct {
	mu       sync.Mutex
	saveCall int
	lastStat core.RequestStats
}

func (s *spyStorage) SaveStats(stats *core.RequestStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveCall++
	if stats != nil {
		s.lastStat = *stats
		s.lastStat.RequestHistory = append([]core.RequestRecord(nil), stats.RequestHistory...)
	}
	return nil
}

func (s *spyStorage) LoadStats() (*core.RequestStats, error) {
	return &core.RequestStats{}, nil
}

func (s *spyStorage) Close() error {
	return nil
}

func (s *spyStorage) snapshot() (int, core.RequestStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statsCopy := s.lastStat
	statsCopy.RequestHistory = append([]core.RequestRecord(nil), s.lastStat.RequestHistory...)
	return s.saveCall, statsCopy
}

func TestServerClose_PersistsBufferedMetrics(t *testing.T) {
	up := newFakeUpstream(t, nil)
	st := &spyStorage{}
	s := newTestServer(t, up.URL, withStorage(st))

	s.metricsService.RecordUpstreamCall("openai/gpt-4o", "req_1_a", true, 10*time.Millisecond)
	s.metricsService.RecordUpstreamCall("openai/gpt-4o", "req_1_a", false, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		saves, _ := st.snapshot()
		return saves == 1
	}, time.Second, 10*time.Millisecond, "the first record triggers a background save")
	beforeSaves, beforeStats := st.snapshot()
	require.Less(t, beforeStats.TotalRequests, int64(3))

	require.NoError(t, s.Close())

	afterSaves, afterStats := st.snapshot()
	assert.Greater(t, afterSaves, beforeSaves)
	assert.EqualValues(t, 2, afterStats.TotalRequests)
	assert.Len(t, afterStats.RequestHistory, 2)
}

func TestServerClose_Idempotent(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestCompare_ConcurrentRequests(t *testing.T) {
	up := newFakeUpstream(t, nil)
	s := newTestServer(t, up.URL)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"prompt":"p%d","selectedModels":["x%d","y%d"]}`, n, n, n)
			req := httptest.NewRequest(http.MethodPost, "/api/compare", bytes.NewBufferString(body))
			req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)
			if w.Code != http.StatusOK {
				t.Errorf("request %d: status %d", n, w.Code)
				return
			}
			var result core.ComparisonResult
			if err := util.UnmarshalJSON(w.Body.Bytes(), &result); err != nil {
				t.Errorf("request %d: %v", n, err)
				return
			}
			if len(result.Responses) != 2 || result.Responses[0].ModelID != fmt.Sprintf("x%d", n) {
				t.Errorf("request %d: unexpected responses %+v", n, result.Responses)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 20, up.calls.Load())
}

func withUpstreamTimeout(d time.Duration) serverOption {
	return func(c *config.ServerConfig) { c.Upstream.Timeout = d }
}

func withLogger(l core.Logger) serverOption {
	return func(c *config.ServerConfig) { c.Logger = l }
}

func TestHTTPTimeoutsFollowUpstreamTimeout(t *testing.T) {
	up := newFakeUpstream(t, nil)

	cases := []struct {
		name     string
		upstream time.Duration
		write    time.Duration
	}{
		{"disabled", 0, 0},
		{"above a minute", 90 * time.Second, 90*time.Second + core.ServerWriteMargin},
		{"default", core.DefaultUpstreamTimeout, core.DefaultUpstreamTimeout + core.ServerWriteMargin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, up.URL, withUpstreamTimeout(tc.upstream))

			assert.Equal(t, tc.write, s.newHTTPServer().WriteTimeout)
			assert.Zero(t, s.httpClient.Timeout, "client must not cut legs short of the per-call deadline")
			transport, ok := s.httpClient.Transport.(*http.Transport)
			require.True(t, ok)
			assert.Zero(t, transport.ResponseHeaderTimeout)
		})
	}
}

func TestCompare_SlowHeadersReportActualDeadline(t *testing.T) {
	up := newFakeUpstream(t, map[string]http.HandlerFunc{
		"slow": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		},
	})
	s := newTestServer(t, up.URL, withUpstreamTimeout(300*time.Millisecond))

	start := time.Now()
	w := postCompare(t, s, `{"prompt":"hi","selectedModels":["slow","fast"]}`)
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, w.Code)
	result := decodeResult(t, w)
	assert.Equal(t, "Request timed out after 300ms", result.Responses[0].Error)
	assert.Equal(t, "echo fast", result.Responses[1].Content)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRun_UnboundedUpstreamStillDeliversResponse(t *testing.T) {
	up := newFakeUpstream(t, map[string]http.HandlerFunc{
		"slow": func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"eventually"}}]}`)
		},
	})
	s := newTestServer(t, up.URL, withUpstreamTimeout(0))

	front := httptest.NewUnstartedServer(s.router)
	front.Config = s.newHTTPServer()
	front.Start()
	defer front.Close()

	resp, err := http.Post(front.URL+"/api/compare", core.ContentTypeJSON,
		strings.NewReader(`{"prompt":"hi","selectedModels":["slow"]}`))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var result core.ComparisonResult
	require.NoError(t, util.UnmarshalJSON(body, &result))
	require.Len(t, result.Responses, 1)
	assert.Equal(t, "eventually", result.Responses[0].Content)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAccessLogGoesThroughAppLogger(t *testing.T) {
	up := newFakeUpstream(t, nil)
	out := &lockedBuffer{}
	s := newTestServer(t, up.URL, withLogger(logpkg.NewAppLoggerWithConfig(out, false)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)

	assert.Eventually(t, func() bool {
		line := out.String()
		return strings.Contains(line, "/health") && strings.Contains(line, "level=info")
	}, time.Second, 10*time.Millisecond)
}
