// Package hdc1080 provides a driver for the TI HDC1080 humidity and
// temperature sensor.
//
// The part has one acquisition quirk: writing a measurement register's
// pointer starts the conversion, and the result must be collected with a
// separate read transaction after the conversion time has passed. A
// repeated-start read (the usual register idiom) NAKs. The driver hides
// this behind a dedicated transport for the measurement registers.
package hdc1080

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"airsense-go/errcode"
	"airsense-go/regmap"
)

// Errors returned by the driver.
var (
	ErrBadChipID          = errors.New("hdc1080: unexpected device id")
	ErrTempResolution     = errors.New("hdc1080: temperature resolution must be 11 or 14 bits")
	ErrHumidityResolution = errors.New("hdc1080: humidity resolution must be 8, 11 or 14 bits")
	ErrAcquisitionMode    = errors.New("hdc1080: wrong acquisition mode for this read")
)

// Worst-case conversion times per datasheet section 6.5, by resolution bits.
var (
	tempConvTime = map[int]time.Duration{14: 6350 * time.Microsecond, 11: 3650 * time.Microsecond}
	rhConvTime   = map[int]time.Duration{14: 6500 * time.Microsecond, 11: 3850 * time.Microsecond, 8: 2500 * time.Microsecond}
)

// convMargin pads the datasheet conversion times.
const convMargin = time.Millisecond

// Config holds the config-register options.
type Config struct {
	// SoftReset self-clears after the device reinitialises.
	SoftReset bool
	// HeaterOn enables the on-die heater to drive off condensation.
	HeaterOn bool
	// MeasureBoth acquires temperature and humidity in one transaction;
	// when false each is triggered and read on its own.
	MeasureBoth bool
	// TemperatureResolutionBits is 11 or 14.
	TemperatureResolutionBits int
	// HumidityResolutionBits is 8, 11 or 14.
	HumidityResolutionBits int
}

// DefaultConfig is full resolution, combined acquisition, heater off.
func DefaultConfig() Config {
	return Config{MeasureBoth: true, TemperatureResolutionBits: 14, HumidityResolutionBits: 14}
}

// Device is one HDC1080 instance on an I²C bus.
type Device struct {
	config         *regmap.Access
	deviceID       *regmap.Access
	manufacturerID *regmap.Access
	serialID       *regmap.Access
	temperature    *regmap.Access
	humidity       *regmap.Access
	data           *regmap.Access

	cfg Config
}

// New binds an HDC1080 on the given bus. The device has a fixed address, so
// unlike other chips there is no strap pin argument. Only the object is
// created; the device is not touched, and the driver assumes the power-on
// configuration until SetConfig is called.
func New(bus drivers.I2C) *Device {
	d := &Device{cfg: DefaultConfig()}
	plain := regmap.NewI2C(bus, Address)
	measure := &triggerTransport{bus: bus, addr: Address, delay: d.conversionTime}
	d.config = regmap.NewAccess(hardware.MustRegister("config"), plain)
	d.deviceID = regmap.NewAccess(hardware.MustRegister("device_id"), plain)
	d.manufacturerID = regmap.NewAccess(hardware.MustRegister("manufacturer_id"), plain)
	d.serialID = regmap.NewAccess(hardware.MustRegister("serial_id"), plain)
	d.temperature = regmap.NewAccess(hardware.MustRegister("temperature"), measure)
	d.humidity = regmap.NewAccess(hardware.MustRegister("humidity"), measure)
	d.data = regmap.NewAccess(hardware.MustRegister("data"), measure)
	return d
}

// Connected reads the device id register and checks it against the expected
// constant. Non-volatile, so repeated calls are served from cache.
func (d *Device) Connected() error {
	vals, err := d.deviceID.Read(false)
	if err != nil {
		return err
	}
	if vals["device_id"].(uint64) != DeviceID {
		return ErrBadChipID
	}
	return nil
}

// ManufacturerID reads the TI manufacturer id word (0x5449, "TI").
func (d *Device) ManufacturerID() (uint16, error) {
	vals, err := d.manufacturerID.Read(false)
	if err != nil {
		return 0, err
	}
	return uint16(vals["manufacturer_id"].(uint64)), nil
}

// SerialID reads the 40-bit factory serial number.
func (d *Device) SerialID() (uint64, error) {
	vals, err := d.serialID.Read(false)
	if err != nil {
		return 0, err
	}
	return vals["serial_id"].(uint64), nil
}

// SetConfig writes the config register. Out-of-enum resolutions are rejected
// before any bus I/O. A soft reset invalidates every cache and waits out the
// device's startup time.
func (d *Device) SetConfig(c Config) error {
	if _, ok := tempConvTime[c.TemperatureResolutionBits]; !ok {
		return ErrTempResolution
	}
	if _, ok := rhConvTime[c.HumidityResolutionBits]; !ok {
		return ErrHumidityResolution
	}
	err := d.config.WriteCached(regmap.Values{
		"reset":         c.SoftReset,
		"heater_on":     c.HeaterOn,
		"measure_both":  c.MeasureBoth,
		"battery_low":   false,
		"temp_res_bits": c.TemperatureResolutionBits,
		"rh_res_bits":   c.HumidityResolutionBits,
		"reserved":      0,
	})
	if err != nil {
		return err
	}
	d.cfg = c
	d.cfg.SoftReset = false
	if c.SoftReset {
		d.InvalidateCache()
		time.Sleep(15 * time.Millisecond) // startup time, per datasheet
	}
	return nil
}

// BatteryLow re-reads the config register and reports whether the supply has
// dropped below 2.8 V.
func (d *Device) BatteryLow() (bool, error) {
	vals, err := d.config.Read(true)
	if err != nil {
		return false, err
	}
	return vals["battery_low"].(uint64) != 0, nil
}

// ReadData triggers a combined acquisition and returns °C and %RH. Requires
// MeasureBoth mode.
func (d *Device) ReadData() (tempC, humidity float64, err error) {
	if !d.cfg.MeasureBoth {
		return 0, 0, ErrAcquisitionMode
	}
	vals, err := d.data.Read(false)
	if err != nil {
		return 0, 0, err
	}
	return vals["temperature"].(float64), vals["humidity"].(float64), nil
}

// ReadTemperature triggers a temperature-only acquisition. Requires
// independent acquisition mode.
func (d *Device) ReadTemperature() (float64, error) {
	if d.cfg.MeasureBoth {
		return 0, ErrAcquisitionMode
	}
	vals, err := d.temperature.Read(false)
	if err != nil {
		return 0, err
	}
	return vals["temperature"].(float64), nil
}

// ReadHumidity triggers a humidity-only acquisition. Requires independent
// acquisition mode.
func (d *Device) ReadHumidity() (float64, error) {
	if d.cfg.MeasureBoth {
		return 0, ErrAcquisitionMode
	}
	vals, err := d.humidity.Read(false)
	if err != nil {
		return 0, err
	}
	return vals["humidity"].(float64), nil
}

// InvalidateCache resets every register cache to unknown. Called by the
// sampling layer when its retry budget for this device is exhausted.
func (d *Device) InvalidateCache() {
	for _, a := range []*regmap.Access{d.config, d.deviceID, d.manufacturerID, d.serialID, d.temperature, d.humidity, d.data} {
		a.Invalidate()
	}
}

// conversionTime is the wait between trigger and collection for the current
// configuration.
func (d *Device) conversionTime() time.Duration {
	t := tempConvTime[d.cfg.TemperatureResolutionBits]
	rh := rhConvTime[d.cfg.HumidityResolutionBits]
	if d.cfg.MeasureBoth {
		return t + rh + convMargin
	}
	if t > rh {
		return t + convMargin
	}
	return rh + convMargin
}

// triggerTransport implements the trigger-wait-collect acquisition sequence:
// a bare pointer write, a conversion delay, then a plain read with no
// register pointer.
type triggerTransport struct {
	bus   drivers.I2C
	addr  uint16
	delay func() time.Duration
}

func (t *triggerTransport) ReadRegister(reg uint8, n int) ([]byte, error) {
	if err := t.bus.Tx(t.addr, []byte{reg}, nil); err != nil {
		return nil, err
	}
	time.Sleep(t.delay())
	buf := make([]byte, n)
	if err := t.bus.Tx(t.addr, nil, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *triggerTransport) WriteRegister(reg uint8, payload []byte) error {
	return errcode.New(errcode.Unsupported, "hdc1080", "measurement registers are read only")
}
