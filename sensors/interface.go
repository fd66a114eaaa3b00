package sensors

import "time"

// Keys used in SensorData.Fields.
const (
	FieldTemperature = "temperature"
	FieldPressure    = "pressure"
	FieldHumidity    = "humidity"
)

// SensorData is one sample in the unified shape every sensor reports.
type SensorData struct {
	SensorType string             `json:"sensor_type"`
	Fields     map[string]float64 `json:"fields"`
	Timestamp  time.Time          `json:"timestamp"`
}
