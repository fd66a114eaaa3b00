package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Uranury/bme680mon/monitor"
)

func TestInfluxSinkWritesLineProtocol(t *testing.T) {
	type write struct {
		path, org, bucket, body string
	}
	got := make(chan write, 1)
	influx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- write{
			path:   r.URL.Path,
			org:    r.URL.Query().Get("org"),
			bucket: r.URL.Query().Get("bucket"),
			body:   string(body),
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer influx.Close()

	sink := NewInfluxSink(influx.URL, "token", "home", "sensors")
	defer sink.Close()

	ts := time.Unix(1744450200, 0)
	require.NoError(t, sink.Record(context.Background(), monitor.Sample{
		Temperature: 21.5,
		Humidity:    45.25,
		Timestamp:   ts,
	}))

	w := <-got
	assert.Equal(t, "/api/v2/write", w.path)
	assert.Equal(t, "home", w.org)
	assert.Equal(t, "sensors", w.bucket)
	assert.Contains(t, w.body, "sensor_data,sensor=bme680 ")
	assert.Contains(t, w.body, "temperature=21.5")
	assert.Contains(t, w.body, "humidity=45.25")
	assert.Contains(t, w.body, "1744450200000000000")
}

func TestInfluxSinkReportsServerErrors(t *testing.T) {
	influx := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"code":"unauthorized","message":"unauthorized access"}`)
	}))
	defer influx.Close()

	sink := NewInfluxSink(influx.URL, "bad", "home", "sensors")
	defer sink.Close()

	err := sink.Record(context.Background(), monitor.Sample{Temperature: 1, Humidity: 2, Timestamp: time.Now()})
	assert.Error(t, err)
}
