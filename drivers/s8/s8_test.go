package s8

import (
	"testing"

	"github.com/simonvetter/modbus"
)

// fakeClient models the two register files of the sensor.
type fakeClient struct {
	input   map[uint16]uint16
	holding map[uint16]uint16
	writes  int
}

func (c *fakeClient) file(regType modbus.RegType) map[uint16]uint16 {
	if regType == modbus.INPUT_REGISTER {
		return c.input
	}
	return c.holding
}

func (c *fakeClient) ReadRegister(addr uint16, regType modbus.RegType) (uint16, error) {
	return c.file(regType)[addr], nil
}

func (c *fakeClient) ReadRegisters(addr, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	file := c.file(regType)
	out := make([]uint16, quantity)
	for i := range out {
		out[i] = file[addr+uint16(i)]
	}
	return out, nil
}

func (c *fakeClient) WriteRegister(addr uint16, value uint16) error {
	c.writes++
	if addr == regCalibrate && value == backgroundCalibration {
		// The sensor acknowledges a completed background calibration.
		c.holding[regAck] = ackBackgroundDone
		return nil
	}
	c.holding[addr] = value
	return nil
}

func newTestDevice(c *fakeClient) *Device {
	if c.input == nil {
		c.input = map[uint16]uint16{}
	}
	if c.holding == nil {
		c.holding = map[uint16]uint16{}
	}
	d := New(c)
	d.ClearDelay = 0
	d.CalibrationDelay = 0
	return d
}

func TestReadCO2(t *testing.T) {
	c := &fakeClient{input: map[uint16]uint16{regCO2: 612}}
	d := newTestDevice(c)
	ppm, err := d.ReadCO2()
	if err != nil {
		t.Fatal(err)
	}
	if ppm != 612 {
		t.Fatalf("co2 = %d, want 612", ppm)
	}
}

func TestIdentityRegisters(t *testing.T) {
	c := &fakeClient{input: map[uint16]uint16{
		regTypeID: 0x0001, regTypeID + 1: 0x0035,
		regSerial: 0x12AB, regSerial + 1: 0x34CD,
		regFWVersion: 0x010A,
	}}
	d := newTestDevice(c)

	id, err := d.TypeID()
	if err != nil {
		t.Fatal(err)
	}
	if id != 0x00010035 {
		t.Errorf("type id = %#x, want 0x10035", id)
	}
	sn, err := d.SerialNumber()
	if err != nil {
		t.Fatal(err)
	}
	if sn != 0x12AB34CD {
		t.Errorf("serial = %#x, want 0x12ab34cd", sn)
	}
	fw, err := d.FirmwareVersion()
	if err != nil {
		t.Fatal(err)
	}
	if fw != "1.10" {
		t.Errorf("firmware = %q, want 1.10", fw)
	}
}

func TestABCPeriod(t *testing.T) {
	c := &fakeClient{holding: map[uint16]uint16{regABCPeriod: DefaultABCPeriodHours}}
	d := newTestDevice(c)

	hours, err := d.ABCPeriod()
	if err != nil {
		t.Fatal(err)
	}
	if hours != DefaultABCPeriodHours {
		t.Fatalf("abc period = %d, want %d", hours, DefaultABCPeriodHours)
	}
	if err := d.SetABCPeriod(24); err != nil {
		t.Fatal(err)
	}
	if c.holding[regABCPeriod] != 24 {
		t.Fatalf("abc period register = %d, want 24", c.holding[regABCPeriod])
	}
	if err := d.DisableABC(); err != nil {
		t.Fatal(err)
	}
	if c.holding[regABCPeriod] != 0 {
		t.Fatalf("abc period register = %d, want 0", c.holding[regABCPeriod])
	}
}

func TestRecalibrate(t *testing.T) {
	c := &fakeClient{}
	d := newTestDevice(c)
	if err := d.Recalibrate(); err != nil {
		t.Fatal(err)
	}
}

func TestRecalibrateNotAcknowledged(t *testing.T) {
	c := &fakeClient{}
	d := newTestDevice(c)
	// Swallow the calibration command so the done bit never appears.
	c.input = map[uint16]uint16{}
	c.holding = map[uint16]uint16{}
	d.c = &silentClient{c}
	if err := d.Recalibrate(); err != ErrRecalibration {
		t.Fatalf("err = %v, want ErrRecalibration", err)
	}
}

// silentClient accepts writes without the calibration side effect.
type silentClient struct {
	*fakeClient
}

func (c *silentClient) WriteRegister(addr uint16, value uint16) error {
	c.holding[addr] = value
	return nil
}

func TestErrorFlags(t *testing.T) {
	c := &fakeClient{input: map[uint16]uint16{regErrorCode: ErrFlagOutOfRange}}
	d := newTestDevice(c)
	flags, err := d.ReadErrorFlags()
	if err != nil {
		t.Fatal(err)
	}
	if flags&ErrFlagOutOfRange == 0 {
		t.Fatal("out-of-range flag not set")
	}
}
