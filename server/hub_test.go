package server

import (
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
)

func hubServer(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub()
	r := gin.New()
	r.GET("/ws", hub.Handle)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func subscribe(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return hub.Clients() == want }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestBroadcastConcurrent(t *testing.T) {
	hub, url := hubServer(t)
	a := subscribe(t, hub, url, 1)
	b := subscribe(t, hub, url, 2)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hub.Broadcast(monitor.Sample{Temperature: float64(i), Humidity: 50})
		}(i)
	}
	wg.Wait()

	for _, conn := range []*websocket.Conn{a, b} {
		seen := map[float64]bool{}
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for i := 0; i < n; i++ {
			var got monitor.Sample
			require.NoError(t, conn.ReadJSON(&got))
			assert.Equal(t, 50.0, got.Humidity)
			seen[got.Temperature] = true
		}
		assert.Len(t, seen, n)
	}
}

func TestBroadcastStuckSubscriberDoesNotHoldHub(t *testing.T) {
	hub, url := hubServer(t)
	subscribe(t, hub, url, 1)

	// Hold the only subscriber's write lock as a write that never finishes.
	stuck := hub.snapshot()[0]
	stuck.mu.Lock()

	done := make(chan struct{})
	go func() {
		hub.Broadcast(monitor.Sample{Temperature: 20})
		close(done)
	}()

	counted := make(chan int, 1)
	go func() { counted <- hub.Clients() }()
	select {
	case n := <-counted:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("hub lock held during a subscriber write")
	}

	stuck.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast did not finish")
	}
}
