package server

import (
	"context"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/Uranury/bme680mon/monitor"
)

// InfluxSink mirrors accepted samples into an InfluxDB bucket.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

func (s *InfluxSink) Record(ctx context.Context, sample monitor.Sample) error {
	p := influxdb2.NewPointWithMeasurement("sensor_data").
		AddTag("sensor", "bme680").
		AddField("temperature", sample.Temperature).
		AddField("humidity", sample.Humidity).
		SetTime(sample.Timestamp)
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) Close() {
	s.client.Close()
}
