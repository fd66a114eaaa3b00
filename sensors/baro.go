package sensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// BaroSize is sizeof(struct sensor_baro).
const BaroSize = 16

// ErrShortRecord is returned when a buffer is smaller than the record it
// should hold.
var ErrShortRecord = errors.New("sensors: short record")

// Baro is one sample from the barometer lowerhalf (sensor_baro). When the
// pressure measurement is enabled the BME680 reports temperature here.
type Baro struct {
	Timestamp   uint64  // µs since boot
	Pressure    float32 // hPa
	Temperature float32 // °C
}

// UnmarshalBinary decodes the little-endian driver layout.
func (b *Baro) UnmarshalBinary(data []byte) error {
	if len(data) < BaroSize {
		return fmt.Errorf("%w: baro needs %d bytes, got %d", ErrShortRecord, BaroSize, len(data))
	}
	b.Timestamp = binary.LittleEndian.Uint64(data[0:8])
	b.Pressure = math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))
	b.Temperature = math.Float32frombits(binary.LittleEndian.Uint32(data[12:16]))
	return nil
}

// MarshalBinary encodes b in the driver layout.
func (b Baro) MarshalBinary() ([]byte, error) {
	buf := make([]byte, BaroSize)
	binary.LittleEndian.PutUint64(buf[0:8], b.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(b.Pressure))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(b.Temperature))
	return buf, nil
}
