package monitor

import "time"

// Sample is one temperature/humidity report as the API stores and serves
// it.
type Sample struct {
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Timestamp   time.Time `json:"timestamp"`
}
