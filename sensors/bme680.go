package sensors

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// ErrNoFinalReading is returned when no attempt produced both sub-sensor
// records.
var ErrNoFinalReading = errors.New("sensors: no final reading")

// poll is swapped out in tests to make poll(2) fail.
var poll = Poll

// Timing controls the stabilization and final read loops.
type Timing struct {
	Stabilize      time.Duration // total settle period, readings discarded
	StabilizePoll  time.Duration
	StabilizeDelay time.Duration
	FinalAttempts  int
	FinalPoll      time.Duration
	FinalDelay     time.Duration
}

var DefaultTiming = Timing{
	Stabilize:      15 * time.Second,
	StabilizePoll:  time.Second,
	StabilizeDelay: 200 * time.Millisecond,
	FinalAttempts:  5,
	FinalPoll:      500 * time.Millisecond,
	FinalDelay:     100 * time.Millisecond,
}

// Reading is the final measurement of a BME680.
type Reading struct {
	Temperature   float64 // °C, from the barometer lowerhalf
	Pressure      float64 // hPa
	Humidity      float64 // %rH
	BaroTimestamp uint64
	HumiTimestamp uint64
	Time          time.Time
}

// SensorData converts r to the unified sample shape.
func (r Reading) SensorData() *SensorData {
	return &SensorData{
		SensorType: "bme680",
		Fields: map[string]float64{
			FieldTemperature: r.Temperature,
			FieldPressure:    r.Pressure,
			FieldHumidity:    r.Humidity,
		},
		Timestamp: r.Time,
	}
}

// BME680 polls the barometer and humidity lowerhalves of one BME680.
type BME680 struct {
	Timing Timing

	baro *Node
	humi *Node

	baroBuf  [BaroSize]byte
	humiBuf  [HumiSize]byte
	baroData Baro
	humiData Humi
}

// OpenBME680 opens both lowerhalves. Nothing is left open on failure.
func OpenBME680(baroPath, humiPath string) (*BME680, error) {
	baro, err := OpenNode(baroPath)
	if err != nil {
		return nil, fmt.Errorf("barometer lowerhalf: %w", err)
	}
	humi, err := OpenNode(humiPath)
	if err != nil {
		baro.Close()
		return nil, fmt.Errorf("humidity lowerhalf: %w", err)
	}
	return NewBME680(baro, humi), nil
}

// NewBME680 builds a station from already open nodes.
func NewBME680(baro, humi *Node) *BME680 {
	return &BME680{Timing: DefaultTiming, baro: baro, humi: humi}
}

func (d *BME680) Name() string {
	return "BME680"
}

// Calibrate sends the single calibration request through the barometer node.
func (d *BME680) Calibrate(req uint, cfg Calibration) error {
	buf, err := cfg.MarshalBinary()
	if err != nil {
		return err
	}
	if err := d.baro.Ioctl(req, buf); err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}
	return nil
}

// Stabilize reads and discards samples for Timing.Stabilize so the sensor
// can settle, writing a dot to progress on every poll that had data. It
// returns the number of complete records read.
func (d *BME680) Stabilize(ctx context.Context, progress io.Writer) (int, error) {
	if progress == nil {
		progress = io.Discard
	}
	d.baroData, d.humiData = Baro{}, Humi{}

	reads := 0
	deadline := time.Now().Add(d.Timing.Stabilize)
	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return reads, err
		}
		ready, err := poll(d.nodes(), d.Timing.StabilizePoll)
		if err != nil {
			log.Printf("Could not poll sensor during stabilization: %v", err)
		} else if anyReady(ready) {
			for i, n := range d.nodes() {
				if !ready[i] {
					continue
				}
				ok, err := d.readNode(i)
				if err != nil {
					log.Printf("Error reading %s during stabilization: %v", n.Path(), err)
				}
				if ok {
					reads++
				}
			}
			fmt.Fprint(progress, ".")
		}
		if err := sleep(ctx, d.Timing.StabilizeDelay); err != nil {
			return reads, err
		}
	}
	return reads, nil
}

// FinalRead makes up to Timing.FinalAttempts attempts to read both
// sub-sensors within a single poll. A failed poll ends the attempts.
func (d *BME680) FinalRead(ctx context.Context) (Reading, error) {
	for attempt := 0; attempt < d.Timing.FinalAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.Timing.FinalDelay); err != nil {
				return Reading{}, err
			}
		}
		ready, err := poll(d.nodes(), d.Timing.FinalPoll)
		if err != nil {
			return Reading{}, fmt.Errorf("%w: %w", ErrNoFinalReading, err)
		}

		var got [2]bool
		for i, n := range d.nodes() {
			if !ready[i] {
				continue
			}
			ok, err := d.readNode(i)
			if err != nil {
				log.Printf("Final read error %s: %v", n.Path(), err)
			}
			got[i] = ok
		}
		if got[0] && got[1] {
			return d.reading(), nil
		}
	}
	return Reading{}, ErrNoFinalReading
}

// Close closes both lowerhalves. It is safe to call more than once.
func (d *BME680) Close() error {
	return errors.Join(d.baro.Close(), d.humi.Close())
}

func (d *BME680) nodes() []*Node {
	return []*Node{d.baro, d.humi}
}

func (d *BME680) readNode(i int) (bool, error) {
	if i == 0 {
		return readRecord(d.baro, d.baroBuf[:], &d.baroData)
	}
	return readRecord(d.humi, d.humiBuf[:], &d.humiData)
}

func (d *BME680) reading() Reading {
	return Reading{
		Temperature:   float64(d.baroData.Temperature),
		Pressure:      float64(d.baroData.Pressure),
		Humidity:      float64(d.humiData.Humidity),
		BaroTimestamp: d.baroData.Timestamp,
		HumiTimestamp: d.humiData.Timestamp,
		Time:          time.Now(),
	}
}

// readRecord reads one record into rec. Only a full-size read counts.
func readRecord(n *Node, buf []byte, rec encoding.BinaryUnmarshaler) (bool, error) {
	m, err := n.Read(buf)
	if errors.Is(err, ErrNotReady) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m != len(buf) {
		return false, nil
	}
	return true, rec.UnmarshalBinary(buf)
}

func anyReady(ready []bool) bool {
	for _, r := range ready {
		if r {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
