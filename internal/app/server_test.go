package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *SQLiteStore, *Runner) {
	t.Helper()
	store := newTestStore(t)
	processor := &Processor{
		Ledger:      store,
		Limiter:     &RateLimiter{Ledger: store},
		Dedup:       &Deduplicator{Ledger: store},
		Source:      &fakeSource{},
		Publisher:   &fakePublisher{sessionOK: true},
		Notifier:    &fakeNotifier{},
		DownloadDir: t.TempDir(),
		Now:         func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
		Shuffle:     identityShuffle,
	}
	runner := NewRunner(store, processor)
	stats := NewStatsService(store, store)
	server := NewServer(store, store, runner, stats, &fakeNotifier{})
	return server, store, runner
}

func doJSON(t *testing.T, server *Server, method, target string, body any) *http.Response {
	t.Helper()
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, target, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	resp, err := server.app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestServerHealthAndStatus(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, server, http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var status JobStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.False(t, status.Running)
}

func TestServerChannelCRUD(t *testing.T) {
	server, store, _ := newTestServer(t)

	ch := Channel{
		ChannelName:   "api_chan",
		Mode:          ModeSource,
		UploadsPerDay: 2,
		Sources:       []string{"creator"},
		Password:      "secret",
	}
	resp := doJSON(t, server, http.MethodPost, "/channel", ch)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, server, http.MethodGet, "/channel/api_chan", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got Channel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "api_chan", got.ChannelName)
	assert.Empty(t, got.Password, "credentials must not leak through the API")

	// The password is still stored, only the response strips it.
	stored, err := store.GetChannel(context.Background(), "api_chan")
	require.NoError(t, err)
	assert.Equal(t, "secret", stored.Password)

	resp = doJSON(t, server, http.MethodGet, "/channel/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, server, http.MethodDelete, "/channel/api_chan", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, server, http.MethodDelete, "/channel/api_chan", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerRejectsInvalidChannelPayload(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/channel", Channel{Mode: ModeSource})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/channel", Channel{ChannelName: "x", Mode: "bogus"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServerRunReturns429WhileBusy(t *testing.T) {
	server, store, runner := newTestServer(t)
	require.NoError(t, store.UpsertChannel(context.Background(),
		Channel{ChannelName: "busy_chan", Mode: ModeSource}))

	runner.runMu.Lock()
	defer runner.runMu.Unlock()

	resp := doJSON(t, server, http.MethodPost, "/run/all", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp = doJSON(t, server, http.MethodPost, "/run/channel/busy_chan", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

// A trigger acknowledges with 202 and runs in the background; the request
// must not be held open for the duration of the cycle.
func TestServerRunAllAccepted(t *testing.T) {
	server, _, runner := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/run/all", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "cycle", body["started"])

	waitForIdle(t, runner)
}

func TestServerRunUnknownChannel(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := doJSON(t, server, http.MethodPost, "/run/channel/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerHistoryReset(t *testing.T) {
	server, store, _ := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertChannel(ctx, Channel{ChannelName: "c1", Mode: ModeSource}))
	require.NoError(t, store.Record(ctx, "c1", "v1", time.Now().UTC()))

	resp := doJSON(t, server, http.MethodPost, "/history/reset?channel=c1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	exists, err := store.Exists(ctx, "c1", "v1")
	require.NoError(t, err)
	assert.False(t, exists)
}
