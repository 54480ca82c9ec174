// Package s8 provides a driver for the SenseAir S8 Low Power CO₂ sensor, a
// Modbus RTU device on a 9600 baud serial line. The sensor answers on the
// "any sensor" unit id 0xFE, so a line must carry exactly one S8.
package s8

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

// Errors returned by the driver.
var (
	ErrRecalibration = errors.New("s8: recalibration not acknowledged, CO2 possibly unstable")
)

// unitID is the address every S8 answers on.
const unitID = 0xFE

// Input registers.
const (
	regErrorCode = 0x00
	regCO2       = 0x03
	regTypeID    = 0x19 // two words
	regFWVersion = 0x1C
	regSerial    = 0x1D // two words
)

// Holding registers.
const (
	regAck       = 0x00
	regCalibrate = 0x01
	regABCPeriod = 0x1F
)

// backgroundCalibration is the regCalibrate command word for a fresh-air
// (400 ppm) background calibration.
const backgroundCalibration = 0x7C06

// ackBackgroundDone is the regAck bit the sensor sets when a background
// calibration has completed.
const ackBackgroundDone = 1 << 5

// Error-code register bit flags, per datasheet.
const (
	ErrFlagFatal      = 1 << 0
	ErrFlagOffset     = 1 << 1
	ErrFlagAlgorithm  = 1 << 2
	ErrFlagOutput     = 1 << 3
	ErrFlagSelfDiag   = 1 << 4
	ErrFlagOutOfRange = 1 << 5
	ErrFlagMemory     = 1 << 6
)

// DefaultABCPeriodHours is the factory automatic-baseline-correction period
// (8 days).
const DefaultABCPeriodHours = 192

// client is the slice of the Modbus client the driver consumes.
type client interface {
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(addr uint16, value uint16) error
}

// Device is one S8 on a Modbus RTU line.
type Device struct {
	c      client
	closer interface{ Close() error }

	// ClearDelay and CalibrationDelay pace the recalibration sequence: the
	// first after clearing the acknowledgement register, the second covers
	// a full measurement cycle before the result is checked.
	ClearDelay       time.Duration
	CalibrationDelay time.Duration
}

// Open dials the serial device as a Modbus RTU master and binds the sensor.
func Open(device string) (*Device, error) {
	c, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      "rtu://" + device,
		Speed:    9600,
		DataBits: 8,
		Parity:   modbus.PARITY_NONE,
		StopBits: 1,
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("s8: configure %s: %w", device, err)
	}
	if err := c.Open(); err != nil {
		return nil, fmt.Errorf("s8: open %s: %w", device, err)
	}
	if err := c.SetUnitId(unitID); err != nil {
		c.Close()
		return nil, fmt.Errorf("s8: set unit id: %w", err)
	}
	d := New(c)
	d.closer = c
	return d, nil
}

// New binds an already-configured Modbus client.
func New(c client) *Device {
	return &Device{
		c:                c,
		ClearDelay:       180 * time.Millisecond,
		CalibrationDelay: 4500 * time.Millisecond,
	}
}

// Close releases the serial line if this Device opened it.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// ReadCO2 returns the current CO₂ concentration in ppm.
func (d *Device) ReadCO2() (uint16, error) {
	return d.c.ReadRegister(regCO2, modbus.INPUT_REGISTER)
}

// ReadErrorFlags returns the error-code register bit flags (ErrFlag*).
// Zero means no fault.
func (d *Device) ReadErrorFlags() (uint16, error) {
	return d.c.ReadRegister(regErrorCode, modbus.INPUT_REGISTER)
}

// TypeID returns the 32-bit device model number.
func (d *Device) TypeID() (uint32, error) {
	return d.readU32(regTypeID)
}

// SerialNumber returns the 32-bit factory serial number.
func (d *Device) SerialNumber() (uint32, error) {
	return d.readU32(regSerial)
}

func (d *Device) readU32(addr uint16) (uint32, error) {
	words, err := d.c.ReadRegisters(addr, 2, modbus.INPUT_REGISTER)
	if err != nil {
		return 0, err
	}
	return uint32(words[0])<<16 | uint32(words[1]), nil
}

// FirmwareVersion returns the operating firmware version as "major.minor".
func (d *Device) FirmwareVersion() (string, error) {
	w, err := d.c.ReadRegister(regFWVersion, modbus.INPUT_REGISTER)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d", w>>8, w&0xFF), nil
}

// ABCPeriod returns the automatic-baseline-correction period in hours.
// Zero means ABC is disabled.
func (d *Device) ABCPeriod() (uint16, error) {
	return d.c.ReadRegister(regABCPeriod, modbus.HOLDING_REGISTER)
}

// SetABCPeriod sets the maximum time between automatic recalibrations, in
// hours.
func (d *Device) SetABCPeriod(hours uint16) error {
	return d.c.WriteRegister(regABCPeriod, hours)
}

// DisableABC turns the automatic baseline correction off entirely, for
// environments that never see fresh air.
func (d *Device) DisableABC() error {
	return d.c.WriteRegister(regABCPeriod, 0)
}

// Recalibrate forces a background calibration against fresh air (400 ppm):
// clear the acknowledgement register, issue the calibration command, wait
// out a full measurement cycle and confirm the done bit. ErrRecalibration
// usually means the concentration was not stable; the caller may retry.
func (d *Device) Recalibrate() error {
	if err := d.c.WriteRegister(regAck, 0); err != nil {
		return fmt.Errorf("s8: clear acknowledgement: %w", err)
	}
	time.Sleep(d.ClearDelay)
	if err := d.c.WriteRegister(regCalibrate, backgroundCalibration); err != nil {
		return fmt.Errorf("s8: start calibration: %w", err)
	}
	time.Sleep(d.CalibrationDelay)
	ack, err := d.c.ReadRegister(regAck, modbus.HOLDING_REGISTER)
	if err != nil {
		return fmt.Errorf("s8: read acknowledgement: %w", err)
	}
	if ack&ackBackgroundDone == 0 {
		return ErrRecalibration
	}
	return nil
}
