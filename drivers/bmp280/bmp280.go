// Package bmp280 provides a driver for the Bosch BMP280 pressure and
// temperature sensor. The register layout is declared as a regmap device
// descriptor; this file adds the typed, validated register APIs on top.
//
// Typical bring-up:
//
//	d, err := bmp280.New(bus, 0)
//	err = d.Reset()
//	err = d.SetConfig(bmp280.Config{PeriodMs: 1000, FilterConst: 2})
//	temp, press, err := d.Measure()
package bmp280

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"airsense-go/regmap"
)

// Errors returned by the driver.
var (
	ErrBadChipID      = errors.New("bmp280: unexpected chip id")
	ErrBadAddressPin  = errors.New("bmp280: address pin level must be 0 or 1")
	ErrTimeout        = errors.New("bmp280: measurement timeout")
	ErrOversampling   = errors.New("bmp280: oversampling must be one of 0,1,2,4,8,16")
	ErrMode           = errors.New("bmp280: mode must be trigger, interval or sleep")
	ErrPeriod         = errors.New("bmp280: period must be one of 0.5,62.5,125,250,500,1000,2000,4000 ms")
	ErrFilter         = errors.New("bmp280: filter constant must be one of 0,2,4,8,16")
	ErrNoCalibration  = errors.New("bmp280: calibration not read")
	ErrPressureSkipped = errors.New("bmp280: pressure measurement skipped (oversampling 0)")
)

// Mode selects how measurements are acquired.
type Mode string

const (
	// ModeTrigger takes one measurement when prompted, then sleeps.
	ModeTrigger Mode = "trigger"
	// ModeInterval measures continuously every configured standby period.
	ModeInterval Mode = "interval"
	// ModeSleep stops measuring.
	ModeSleep Mode = "sleep"
)

// hardware power-mode codes behind the public mode names.
var modeCodes = map[Mode]string{
	ModeTrigger:  "forced",
	ModeInterval: "normal",
	ModeSleep:    "sleep",
}

// Sampling holds the data-acquisition options of the ctrl_meas register.
// Oversampling 0 skips that measurement entirely.
type Sampling struct {
	PressureOversampling    int
	TemperatureOversampling int
	Mode                    Mode
}

// DefaultSampling matches the datasheet's "weather monitoring" suggestion.
func DefaultSampling() Sampling {
	return Sampling{PressureOversampling: 16, TemperatureOversampling: 2, Mode: ModeTrigger}
}

// Config holds the config-register options.
type Config struct {
	// PeriodMs is the standby period between interval-mode measurements.
	PeriodMs float64
	// FilterConst is the IIR smoothing coefficient; higher is smoother.
	FilterConst int
	// DisableI2C switches the device to 3-wire SPI, after which this driver
	// cannot talk to it. Present for completeness.
	DisableI2C bool
}

var oversamplingValues = map[int]bool{0: true, 1: true, 2: true, 4: true, 8: true, 16: true}
var periodValues = map[float64]bool{0.5: true, 62.5: true, 125: true, 250: true, 500: true, 1000: true, 2000: true, 4000: true}
var filterValues = map[int]bool{0: true, 2: true, 4: true, 8: true, 16: true}

// Calibration holds the factory trimming constants.
type Calibration struct {
	T1         uint16
	T2, T3     int16
	P1         uint16
	P2, P3, P4 int16
	P5, P6, P7 int16
	P8, P9     int16
}

// Device is one BMP280 instance on an I²C bus.
type Device struct {
	chipID      *regmap.Access
	reset       *regmap.Access
	status      *regmap.Access
	ctrlMeas    *regmap.Access
	config      *regmap.Access
	data        *regmap.Access
	calibration *regmap.Access

	cal    Calibration
	hasCal bool

	sampling Sampling

	// PollInterval and MeasureTimeout bound the status polling in Measure.
	PollInterval   time.Duration
	MeasureTimeout time.Duration
}

// New binds a BMP280 on the given bus at the address selected by the SDO
// strap pin level (0 or 1). Only the object is created; the device is not
// touched.
func New(bus drivers.I2C, addrPinLevel int) (*Device, error) {
	addr, ok := hardware.Address(addrPinLevel)
	if !ok {
		return nil, ErrBadAddressPin
	}
	tr := regmap.NewI2C(bus, addr)
	return &Device{
		chipID:         regmap.NewAccess(hardware.MustRegister("chip_id"), tr),
		reset:          regmap.NewAccess(hardware.MustRegister("reset"), tr),
		status:         regmap.NewAccess(hardware.MustRegister("status"), tr),
		ctrlMeas:       regmap.NewAccess(hardware.MustRegister("ctrl_meas"), tr),
		config:         regmap.NewAccess(hardware.MustRegister("config"), tr),
		data:           regmap.NewAccess(hardware.MustRegister("data"), tr),
		calibration:    regmap.NewAccess(hardware.MustRegister("calibration"), tr),
		sampling:       DefaultSampling(),
		PollInterval:   time.Millisecond,
		MeasureTimeout: 500 * time.Millisecond,
	}, nil
}

// Connected reads the chip id register and checks it against the expected
// constant. The id register is non-volatile, so repeated calls are served
// from cache.
func (d *Device) Connected() error {
	vals, err := d.chipID.Read(false)
	if err != nil {
		return err
	}
	if vals["id"].(uint64) != ChipID {
		return ErrBadChipID
	}
	return nil
}

// Reset sends the soft-reset magic. The logic circuitry and register values
// reset and the sensor enters sleep mode.
func (d *Device) Reset() error {
	if err := d.reset.Write(regmap.Values{"reset": 0xB6}); err != nil {
		return err
	}
	d.hasCal = false
	d.InvalidateCache()
	time.Sleep(2 * time.Millisecond) // startup time, per datasheet
	return nil
}

// SetSampling writes the ctrl_meas register. In trigger mode this also
// starts a measurement. Out-of-enum values are rejected before any bus I/O.
func (d *Device) SetSampling(s Sampling) error {
	if !oversamplingValues[s.PressureOversampling] {
		return ErrOversampling
	}
	if !oversamplingValues[s.TemperatureOversampling] {
		return ErrOversampling
	}
	code, ok := modeCodes[s.Mode]
	if !ok {
		return ErrMode
	}
	err := d.ctrlMeas.WriteCached(regmap.Values{
		"osrs_t": s.TemperatureOversampling,
		"osrs_p": s.PressureOversampling,
		"mode":   code,
	})
	if err != nil {
		return err
	}
	d.sampling = s
	return nil
}

// SetConfig writes the config register. Writes may be ignored by the
// hardware while a measurement runs; put the device in sleep mode first to
// guarantee them.
func (d *Device) SetConfig(c Config) error {
	if !periodValues[c.PeriodMs] {
		return ErrPeriod
	}
	if !filterValues[c.FilterConst] {
		return ErrFilter
	}
	return d.config.WriteCached(regmap.Values{
		"t_sb":     c.PeriodMs,
		"filter":   c.FilterConst,
		"spi3w_en": c.DisableI2C,
	})
}

// Status holds the decoded status register.
type Status struct {
	Measuring bool // a conversion is running
	IMUpdate  bool // NVM data is being copied
}

// ReadStatus reads the (volatile) status register.
func (d *Device) ReadStatus() (Status, error) {
	vals, err := d.status.Read(false)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Measuring: vals["measuring"].(uint64) != 0,
		IMUpdate:  vals["im_update"].(uint64) != 0,
	}, nil
}

// ReadCalibration fetches and caches the factory trimming constants. The
// register is non-volatile; after the first call this is free.
func (d *Device) ReadCalibration() (Calibration, error) {
	vals, err := d.calibration.Read(false)
	if err != nil {
		return Calibration{}, err
	}
	d.cal = Calibration{
		T1: uint16(vals["dig_t1"].(uint64)),
		T2: int16(vals["dig_t2"].(int64)),
		T3: int16(vals["dig_t3"].(int64)),
		P1: uint16(vals["dig_p1"].(uint64)),
		P2: int16(vals["dig_p2"].(int64)),
		P3: int16(vals["dig_p3"].(int64)),
		P4: int16(vals["dig_p4"].(int64)),
		P5: int16(vals["dig_p5"].(int64)),
		P6: int16(vals["dig_p6"].(int64)),
		P7: int16(vals["dig_p7"].(int64)),
		P8: int16(vals["dig_p8"].(int64)),
		P9: int16(vals["dig_p9"].(int64)),
	}
	d.hasCal = true
	return d.cal, nil
}

// ReadRaw reads the data register and returns the raw 20-bit ADC values.
func (d *Device) ReadRaw() (rawTemp, rawPress uint32, err error) {
	vals, err := d.data.Read(false)
	if err != nil {
		return 0, 0, err
	}
	return uint32(vals["temperature"].(uint64)), uint32(vals["pressure"].(uint64)), nil
}

// Measure runs one full forced-mode cycle: trigger, poll status until the
// conversion finishes, read and compensate. Returns °C and Pa.
func (d *Device) Measure() (tempC, pressPa float64, err error) {
	if !d.hasCal {
		if _, err := d.ReadCalibration(); err != nil {
			return 0, 0, err
		}
	}
	s := d.sampling
	s.Mode = ModeTrigger
	if err := d.SetSampling(s); err != nil {
		return 0, 0, err
	}
	deadline := time.Now().Add(d.MeasureTimeout)
	for {
		st, err := d.ReadStatus()
		if err != nil {
			return 0, 0, err
		}
		if !st.Measuring {
			break
		}
		if time.Now().After(deadline) {
			return 0, 0, ErrTimeout
		}
		time.Sleep(d.PollInterval)
	}
	return d.ReadMeasurement()
}

// ReadMeasurement reads and compensates the data register without waiting
// for a conversion. Use after Measure-style sequencing, or in interval mode
// where the register always holds the latest result.
func (d *Device) ReadMeasurement() (tempC, pressPa float64, err error) {
	if !d.hasCal {
		if _, err := d.ReadCalibration(); err != nil {
			return 0, 0, err
		}
	}
	rawT, rawP, err := d.ReadRaw()
	if err != nil {
		return 0, 0, err
	}
	t, tFine := compensateTemp(int32(rawT), d.cal)
	tempC = float64(t) / 100
	if d.sampling.PressureOversampling == 0 {
		return tempC, 0, ErrPressureSkipped
	}
	pressPa = float64(compensatePress(int32(rawP), tFine, d.cal)) / 256
	return tempC, pressPa, nil
}

// InvalidateCache resets every register cache to unknown. Called by the
// sampling layer when its retry budget for this device is exhausted.
func (d *Device) InvalidateCache() {
	for _, a := range []*regmap.Access{d.chipID, d.status, d.ctrlMeas, d.config, d.data, d.calibration} {
		a.Invalidate()
	}
}
