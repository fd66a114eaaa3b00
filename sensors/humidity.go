package sensors

import (
	"encoding/binary"
	"fmt"
	"math"
)

// HumiSize is sizeof(struct sensor_humi): the trailing 4 bytes are padding.
const HumiSize = 16

// Humi is one sample from the humidity lowerhalf (sensor_humi).
type Humi struct {
	Timestamp uint64  // µs since boot
	Humidity  float32 // %rH
}

func (h *Humi) UnmarshalBinary(data []byte) error {
	if len(data) < HumiSize {
		return fmt.Errorf("%w: humi needs %d bytes, got %d", ErrShortRecord, HumiSize, len(data))
	}
	h.Timestamp = binary.LittleEndian.Uint64(data[0:8])
	h.Humidity = math.Float32frombits(binary.LittleEndian.Uint32(data[8:12]))
	return nil
}

func (h Humi) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HumiSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(h.Humidity))
	return buf, nil
}
