// Package ccs811 provides a driver for the ScioSense CCS811 eCO₂/eTVOC gas
// sensor. The chip boots into a bootloader; Start must move it into
// application mode before any measurement mode is set.
package ccs811

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"airsense-go/regmap"
	"airsense-go/x/mathx"
)

// Errors returned by the driver.
var (
	ErrBadChipID     = errors.New("ccs811: unexpected chip id")
	ErrBadAddressPin = errors.New("ccs811: address pin level must be 0 or 1")
	ErrAppInvalid    = errors.New("ccs811: no valid application firmware")
	ErrSamplePeriod  = errors.New("ccs811: sample period must be one of 0, 0.25, 1, 10, 60 s")
	ErrNotReady      = errors.New("ccs811: no new sample ready")
	ErrSensor        = errors.New("ccs811: sensor error flagged, see ReadErrors")
)

// MeasureMode holds the meas_mode register options. A sample period of 0
// puts the sensor to sleep.
type MeasureMode struct {
	SamplePeriodS        float64
	InterruptsOn         bool
	InterruptOnThreshold bool
}

// Status holds the decoded status register.
type Status struct {
	AppOn     bool // application firmware running
	AppErase  bool
	AppVerify bool
	AppValid  bool
	DataReady bool
	Error     bool // details in the error_id register
}

// ErrorFlags holds the decoded error_id register.
type ErrorFlags struct {
	InvalidWrite  bool
	InvalidRead   bool
	InvalidMode   bool
	MaxResistance bool
	HeaterFault   bool
	HeaterSupply  bool
}

// Measurement is one equivalent-CO₂ / total-VOC sample.
type Measurement struct {
	ECO2PPM uint16
	TVOCPPB uint16
}

// Device is one CCS811 instance on an I²C bus.
type Device struct {
	bus  drivers.I2C
	addr uint16

	status   *regmap.Access
	measMode *regmap.Access
	data     *regmap.Access
	rawData  *regmap.Access
	envData  *regmap.Access
	baseline *regmap.Access
	chipID   *regmap.Access
	errorID  *regmap.Access
	reset    *regmap.Access
}

// New binds a CCS811 on the given bus at the address selected by the ADDR
// strap pin level (0 or 1). Only the object is created; the device is not
// touched.
func New(bus drivers.I2C, addrPinLevel int) (*Device, error) {
	addr, ok := hardware.Address(addrPinLevel)
	if !ok {
		return nil, ErrBadAddressPin
	}
	tr := regmap.NewI2C(bus, addr)
	return &Device{
		bus:      bus,
		addr:     addr,
		status:   regmap.NewAccess(hardware.MustRegister("status"), tr),
		measMode: regmap.NewAccess(hardware.MustRegister("meas_mode"), tr),
		data:     regmap.NewAccess(hardware.MustRegister("data"), tr),
		rawData:  regmap.NewAccess(hardware.MustRegister("raw_data"), tr),
		envData:  regmap.NewAccess(hardware.MustRegister("env_data"), tr),
		baseline: regmap.NewAccess(hardware.MustRegister("baseline"), tr),
		chipID:   regmap.NewAccess(hardware.MustRegister("chip_id"), tr),
		errorID:  regmap.NewAccess(hardware.MustRegister("error_id"), tr),
		reset:    regmap.NewAccess(hardware.MustRegister("reset"), tr),
	}, nil
}

// Connected reads the chip id register and checks it against the expected
// constant. Non-volatile, so repeated calls are served from cache.
func (d *Device) Connected() error {
	vals, err := d.chipID.Read(false)
	if err != nil {
		return err
	}
	if vals["chip_id"].(uint64) != ChipID {
		return ErrBadChipID
	}
	return nil
}

// Start boots the application firmware. The app-start mailbox takes a bare
// one-byte write with no payload, outside the register codec.
func (d *Device) Start() error {
	st, err := d.ReadStatus()
	if err != nil {
		return err
	}
	if !st.AppValid {
		return ErrAppInvalid
	}
	if err := d.bus.Tx(d.addr, []byte{appStart}, nil); err != nil {
		return err
	}
	time.Sleep(time.Millisecond) // bootloader-to-app transition
	return nil
}

// SetMeasureMode writes the meas_mode register. Out-of-enum periods are
// rejected before any bus I/O.
func (d *Device) SetMeasureMode(m MeasureMode) error {
	switch m.SamplePeriodS {
	case 0, 0.25, 1, 10, 60:
	default:
		return ErrSamplePeriod
	}
	return d.measMode.WriteCached(regmap.Values{
		"sample_period":       m.SamplePeriodS,
		"interrupts_on":       m.InterruptsOn,
		"interrupt_on_thresh": m.InterruptOnThreshold,
	})
}

// ReadStatus reads the (volatile) status register.
func (d *Device) ReadStatus() (Status, error) {
	vals, err := d.status.Read(false)
	if err != nil {
		return Status{}, err
	}
	flag := func(name string) bool { return vals[name].(uint64) != 0 }
	return Status{
		AppOn:     flag("app_on"),
		AppErase:  flag("app_erase"),
		AppVerify: flag("app_verify"),
		AppValid:  flag("app_valid"),
		DataReady: flag("data_ready"),
		Error:     flag("error"),
	}, nil
}

// Measure returns the latest sample. ErrNotReady means the current period
// has not produced a new sample yet; callers retry on their own schedule.
// ErrSensor means the chip has latched a fault, detailed by ReadErrors.
func (d *Device) Measure() (Measurement, error) {
	st, err := d.ReadStatus()
	if err != nil {
		return Measurement{}, err
	}
	if st.Error {
		return Measurement{}, ErrSensor
	}
	if !st.DataReady {
		return Measurement{}, ErrNotReady
	}
	vals, err := d.data.Read(false)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		ECO2PPM: uint16(vals["co2"].(uint64)),
		TVOCPPB: uint16(vals["tvoc"].(uint64)),
	}, nil
}

// ReadRaw reads the heater drive point: current in µA and the raw 10-bit
// sense voltage code (1023 ≙ 1.65 V).
func (d *Device) ReadRaw() (currentUA uint8, voltageRaw uint16, err error) {
	vals, err := d.rawData.Read(false)
	if err != nil {
		return 0, 0, err
	}
	return uint8(vals["current"].(uint64)), uint16(vals["voltage"].(uint64)), nil
}

// SetEnvironment feeds ambient compensation data from a companion
// temperature/humidity sensor into the gas algorithm. Humidity is clamped
// to 0..100; the register encoding clamps temperature on its own.
func (d *Device) SetEnvironment(tempC, humidity float64) error {
	return d.envData.Write(regmap.Values{
		"humidity":    mathx.Clamp(humidity, 0, 100),
		"temperature": tempC,
	})
}

// Baseline reads the gas algorithm's baseline word for persistence across
// power cycles.
func (d *Device) Baseline() (uint16, error) {
	vals, err := d.baseline.Read(false)
	if err != nil {
		return 0, err
	}
	return uint16(vals["baseline"].(uint64)), nil
}

// RestoreBaseline writes back a previously saved baseline word.
func (d *Device) RestoreBaseline(b uint16) error {
	return d.baseline.Write(regmap.Values{"baseline": b})
}

// ReadErrors reads and decodes the error_id register. Reading it clears the
// status error flag.
func (d *Device) ReadErrors() (ErrorFlags, error) {
	vals, err := d.errorID.Read(false)
	if err != nil {
		return ErrorFlags{}, err
	}
	flag := func(name string) bool { return vals[name].(uint64) != 0 }
	return ErrorFlags{
		InvalidWrite:  flag("invalid_write"),
		InvalidRead:   flag("invalid_read"),
		InvalidMode:   flag("invalid_mode"),
		MaxResistance: flag("max_resistance"),
		HeaterFault:   flag("heater_fault"),
		HeaterSupply:  flag("heater_supply"),
	}, nil
}

// Reset writes the magic sequence to the soft-reset mailbox, dropping the
// chip back into the bootloader.
func (d *Device) Reset() error {
	if err := d.reset.Write(regmap.Values{"reset": uint64(0x11E5728A)}); err != nil {
		return err
	}
	d.InvalidateCache()
	time.Sleep(2 * time.Millisecond) // reset time, per datasheet
	return nil
}

// InvalidateCache resets every register cache to unknown. Called by the
// sampling layer when its retry budget for this device is exhausted.
func (d *Device) InvalidateCache() {
	for _, a := range []*regmap.Access{d.status, d.measMode, d.data, d.rawData, d.baseline, d.chipID, d.errorID} {
		a.Invalidate()
	}
}
