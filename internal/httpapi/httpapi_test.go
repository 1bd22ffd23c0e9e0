// Package httpapi_test tests the public HTTP surface.
package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-service/internal/cache"
	"github.com/book-expert/speech-service/internal/core"
	"github.com/book-expert/speech-service/internal/httpapi"
	"github.com/book-expert/speech-service/internal/jobstore"
	"github.com/book-expert/speech-service/internal/service"
)

type fixture struct {
	handler http.Handler
	store   *jobstore.Store
	cache   *cache.ContentCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)

	conn, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		server.Shutdown()
	})

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	store := jobstore.New()
	contentCache := cache.New(t.TempDir())
	svc := service.New(store, contentCache, conn, "speech.synthesize.jobs", testLogger)

	return &fixture{
		handler: httpapi.NewServer(svc, testLogger).Routes(),
		store:   store,
		cache:   contentCache,
	}
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, req)

	return recorder
}

func postGenerate(t *testing.T, fix *fixture, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")

	return fix.do(t, req)
}

func TestGenerateValidation(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	resp := postGenerate(t, fix, map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postGenerate(t, fix, map[string]any{"videoId": "v1"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = postGenerate(t, fix, map[string]any{
		"videoId": "v1",
		"text":    strings.Repeat("a", core.MaxTextLength+1),
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestGenerateQueuesJob(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	resp := postGenerate(t, fix, map[string]any{
		"videoId": "v1",
		"text":    "hello",
		"lang":    "en",
		"format":  "mp3",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var result map[string]string

	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "queued", result["status"])
	assert.NotEmpty(t, result["jobId"])
}

func TestGenerateReadyOnCacheHit(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	req := core.SynthesisRequest{
		VideoID:  "v1",
		Text:     "hello",
		Language: "en",
		Voice:    "",
		Speed:    1.0,
		Format:   "mp3",
	}
	require.NoError(t, fix.cache.EnsureDir(req))
	require.NoError(t, os.WriteFile(fix.cache.Path(req), []byte("mp3"), 0o600))

	resp := postGenerate(t, fix, map[string]any{
		"videoId": "v1",
		"text":    "hello",
		"lang":    "en",
		"format":  "mp3",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	var result map[string]string

	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	assert.Equal(t, "ready", result["status"])
	assert.Equal(t, fix.cache.Path(req), result["filePath"])
	assert.Contains(t, result["url"], "/stream?path=")
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	resp := fix.do(t, httptest.NewRequest(http.MethodGet, "/status/unknown", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	job := core.Job{
		JobID:    "job-1",
		CacheKey: "key-1",
		Status:   core.StatusInProgress,
		Progress: 5,
		FilePath: "/data/v1/key-1.mp3",
		Error:    "",
		Request: core.SynthesisRequest{
			VideoID: "v1", Text: "hello",
			Language: "en", Voice: "", Speed: 1.0, Format: "mp3",
		},
	}
	require.NoError(t, fix.store.Create(job))

	resp = fix.do(t, httptest.NewRequest(http.MethodGet, "/status/job-1", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]any

	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "in-progress", body["status"])
	assert.InDelta(t, 5, body["progress"], 0.01)
	assert.Nil(t, body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	resp := fix.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func writeStreamFile(t *testing.T, name string, size int) string {
	t.Helper()

	data := bytes.Repeat([]byte{'x'}, size)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func streamRequest(path, rangeHeader string) *http.Request {
	req := httptest.NewRequest(
		http.MethodGet,
		"/stream?path="+url.QueryEscape(path),
		nil,
	)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	return req
}

func TestStreamFullFile(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	path := writeStreamFile(t, "audio.mp3", 1000)

	resp := fix.do(t, streamRequest(path, ""))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "audio/mpeg", resp.Header().Get("Content-Type"))
	assert.Equal(t, "1000", resp.Header().Get("Content-Length"))
	assert.Len(t, resp.Body.Bytes(), 1000)
}

func TestStreamWAVContentType(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	path := writeStreamFile(t, "audio.wav", 10)

	resp := fix.do(t, streamRequest(path, ""))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "audio/wav", resp.Header().Get("Content-Type"))
}

func TestStreamByteRange(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	path := writeStreamFile(t, "audio.mp3", 1000)

	resp := fix.do(t, streamRequest(path, "bytes=0-99"))

	require.Equal(t, http.StatusPartialContent, resp.Code)
	assert.Equal(t, "bytes 0-99/1000", resp.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", resp.Header().Get("Accept-Ranges"))
	assert.Equal(t, "100", resp.Header().Get("Content-Length"))
	assert.Len(t, resp.Body.Bytes(), 100)
}

func TestStreamOpenEndedRange(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	path := writeStreamFile(t, "audio.mp3", 1000)

	resp := fix.do(t, streamRequest(path, "bytes=900-"))

	require.Equal(t, http.StatusPartialContent, resp.Code)
	assert.Equal(t, "bytes 900-999/1000", resp.Header().Get("Content-Range"))
	assert.Len(t, resp.Body.Bytes(), 100)
}

func TestStreamErrors(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	resp := fix.do(t, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = fix.do(t, streamRequest("/no/such/file.mp3", ""))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	path := writeStreamFile(t, "audio.mp3", 100)

	resp = fix.do(t, streamRequest(path, "bytes=500-600"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.Code)

	resp = fix.do(t, streamRequest(path, "bytes=0-10,20-30"))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.Code)
}
