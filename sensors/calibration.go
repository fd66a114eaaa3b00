package sensors

import "encoding/binary"

// Oversampling settings accepted by the driver.
const (
	OversamplingSkip uint8 = iota
	Oversampling1X
	Oversampling2X
	Oversampling4X
	Oversampling8X
	Oversampling16X
)

// IIR filter coefficients.
const (
	FilterCoef0 uint8 = iota
	FilterCoef1
	FilterCoef3
	FilterCoef7
	FilterCoef15
	FilterCoef31
	FilterCoef63
	FilterCoef127
)

// CalibrateRequest is the default SNIOC_CALIBRATE request code. It is
// board specific, so the agent lets it be overridden.
const CalibrateRequest uint = 0x2100 | 0x0085

// CalibrationSize is sizeof(struct bme680_config_s) with natural alignment.
const CalibrationSize = 12

// Calibration configures oversampling and the gas heater before measurement
// begins.
type Calibration struct {
	TempOversampling  uint8
	PressOversampling uint8
	FilterCoef        uint8
	HumOversampling   uint8
	TargetTemp        int16  // heater target, °C
	AmbientTemp       int8   // °C
	HeaterDuration    uint16 // ms
	Conversions       uint8
}

// DefaultCalibration is the profile used by the monitor agent.
var DefaultCalibration = Calibration{
	TempOversampling:  Oversampling2X,
	PressOversampling: Oversampling16X,
	FilterCoef:        FilterCoef3,
	HumOversampling:   Oversampling1X,
	TargetTemp:        300,
	AmbientTemp:       30,
	HeaterDuration:    100,
	Conversions:       0,
}

// MarshalBinary lays c out the way the driver expects it.
//
//	0 temp_os  1 press_os  2 filter_coef  3 hum_os
//	4-5 target_temp  6 amb_temp  7 pad
//	8-9 heater_duration  10 nb_conv  11 pad
func (c Calibration) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CalibrationSize)
	buf[0] = c.TempOversampling
	buf[1] = c.PressOversampling
	buf[2] = c.FilterCoef
	buf[3] = c.HumOversampling
	binary.LittleEndian.PutUint16(buf[4:6], uint16(c.TargetTemp))
	buf[6] = byte(c.AmbientTemp)
	binary.LittleEndian.PutUint16(buf[8:10], c.HeaterDuration)
	buf[10] = c.Conversions
	return buf, nil
}
