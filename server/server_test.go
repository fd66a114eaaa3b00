package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uranury/bme680mon/monitor"
	"github.com/Uranury/bme680mon/store"
)

var fixedNow = time.Date(2025, 4, 12, 9, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu      sync.Mutex
	samples []monitor.Sample
	err     error
}

func (s *recordingSink) Record(_ context.Context, sample monitor.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return s.err
}

func (s *recordingSink) all() []monitor.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]monitor.Sample(nil), s.samples...)
}

func newTestServer(t *testing.T, sinks ...Sink) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	hub := NewHub()
	srv := New(st, hub, sinks...)
	srv.now = func() time.Time { return fixedNow }

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		st.Close()
	})
	return ts, hub
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func rawClient(t *testing.T, ts *httptest.Server) *monitor.Client {
	t.Helper()
	c, err := monitor.NewClient(ts.Listener.Addr().String())
	require.NoError(t, err)
	return c
}

func TestHealthCheckFromAgentClient(t *testing.T) {
	ts, _ := newTestServer(t)

	ack, err := rawClient(t, ts).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, ack.OK())
}

func TestPutDataFromAgentClient(t *testing.T) {
	sink := &recordingSink{}
	ts, _ := newTestServer(t, sink)

	ack, err := rawClient(t, ts).PutData(context.Background(), 21.5, 45.25)
	require.NoError(t, err)
	assert.True(t, ack.Confirmed())

	code, body := do(t, http.MethodGet, ts.URL+monitor.CurrentPath, "")
	assert.Equal(t, http.StatusOK, code)
	var current monitor.Sample
	require.NoError(t, json.Unmarshal([]byte(body), &current))
	assert.Equal(t, 21.5, current.Temperature)
	assert.Equal(t, 45.25, current.Humidity)
	assert.True(t, current.Timestamp.Equal(fixedNow))

	mirrored := sink.all()
	require.Len(t, mirrored, 1)
	assert.Equal(t, 21.5, mirrored[0].Temperature)
}

func TestCurrentBeforeAnyData(t *testing.T) {
	ts, _ := newTestServer(t)

	code, body := do(t, http.MethodGet, ts.URL+monitor.CurrentPath, "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"temperature":null,"humidity":null,"timestamp":null}`, body)
}

func TestPutDataRejectsBadBodies(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, body := range []string{
		`{"temperature": 21.5}`,
		`{"humidity": 40}`,
		`{"temperature": "warm", "humidity": 40}`,
		`not json`,
	} {
		code, _ := do(t, http.MethodPut, ts.URL+monitor.DataPath, body)
		assert.Equal(t, http.StatusBadRequest, code, body)
	}

	code, _ := do(t, http.MethodPost, ts.URL+monitor.DataPath, `{"temperature": 1, "humidity": 2}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPutDataAcceptsZero(t *testing.T) {
	ts, _ := newTestServer(t)
	code, body := do(t, http.MethodPut, ts.URL+monitor.DataPath, `{"temperature": 0, "humidity": 0}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, monitor.SuccessMessage)
}

func TestFailingSinkDoesNotRejectData(t *testing.T) {
	sink := &recordingSink{err: errors.New("influx down")}
	ts, _ := newTestServer(t, sink)

	code, _ := do(t, http.MethodPut, ts.URL+monitor.DataPath, `{"temperature": 20, "humidity": 50}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, sink.all(), 1)
}

func TestHistory(t *testing.T) {
	ts, _ := newTestServer(t)
	for _, body := range []string{
		`{"temperature": 20, "humidity": 50}`,
		`{"temperature": 21, "humidity": 51}`,
		`{"temperature": 22, "humidity": 52}`,
	} {
		code, _ := do(t, http.MethodPut, ts.URL+monitor.DataPath, body)
		require.Equal(t, http.StatusOK, code)
	}

	code, body := do(t, http.MethodGet, ts.URL+monitor.HistoryPath+"?limit=2", "")
	require.Equal(t, http.StatusOK, code)
	var samples []monitor.Sample
	require.NoError(t, json.Unmarshal([]byte(body), &samples))
	require.Len(t, samples, 2)
	assert.Equal(t, 22.0, samples[0].Temperature)
	assert.Equal(t, 21.0, samples[1].Temperature)

	for _, limit := range []string{"0", "-1", "abc", "1001"} {
		code, _ := do(t, http.MethodGet, ts.URL+monitor.HistoryPath+"?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, code, limit)
	}
}

func TestWebSocketFeed(t *testing.T) {
	ts, hub := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	code, _ := do(t, http.MethodPut, ts.URL+monitor.DataPath, `{"temperature": 23.5, "humidity": 48}`)
	require.Equal(t, http.StatusOK, code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got monitor.Sample
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, 23.5, got.Temperature)
	assert.Equal(t, 48.0, got.Humidity)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
