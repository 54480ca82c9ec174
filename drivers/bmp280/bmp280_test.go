package bmp280

import (
	"math"
	"testing"
)

// fakeBus scripts register contents behind the drivers.I2C Tx contract.
type fakeBus struct {
	regs      map[uint8][]byte
	statusSeq [][]byte // consumed one per status read, then regs[0xF3]
	reads     int
	writes    int
	lastReg   uint8
	lastData  []byte
}

func (b *fakeBus) Tx(addr uint16, w, r []byte) error {
	if len(w) == 1 && len(r) > 0 {
		b.reads++
		reg := w[0]
		if reg == 0xF3 && len(b.statusSeq) > 0 {
			copy(r, b.statusSeq[0])
			b.statusSeq = b.statusSeq[1:]
			return nil
		}
		copy(r, b.regs[reg])
		return nil
	}
	b.writes++
	b.lastReg = w[0]
	b.lastData = append([]byte(nil), w[1:]...)
	return nil
}

// Datasheet example values (section 3.12): adc_T=519888, adc_P=415148
// with this trimming set yields 25.08 degC and 100653.27 Pa.
var testCal = Calibration{
	T1: 27504, T2: 26435, T3: -1000,
	P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140, P6: -7,
	P7: 15500, P8: -14600, P9: 6000,
}

func le16(v uint16) (byte, byte) { return byte(v), byte(v >> 8) }

func calBytes(c Calibration) []byte {
	words := []uint16{
		c.T1, uint16(c.T2), uint16(c.T3),
		c.P1, uint16(c.P2), uint16(c.P3), uint16(c.P4), uint16(c.P5),
		uint16(c.P6), uint16(c.P7), uint16(c.P8), uint16(c.P9),
	}
	out := make([]byte, 0, 24)
	for _, w := range words {
		lo, hi := le16(w)
		out = append(out, lo, hi)
	}
	return out
}

func newTestDevice(t *testing.T, bus *fakeBus) *Device {
	t.Helper()
	if bus.regs == nil {
		bus.regs = map[uint8][]byte{}
	}
	if _, ok := bus.regs[0xD0]; !ok {
		bus.regs[0xD0] = []byte{ChipID}
	}
	if _, ok := bus.regs[0x88]; !ok {
		bus.regs[0x88] = calBytes(testCal)
	}
	d, err := New(bus, 0)
	if err != nil {
		t.Fatal(err)
	}
	d.PollInterval = 0
	return d
}

func TestConnectedUsesChipIDCache(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus)
	if err := d.Connected(); err != nil {
		t.Fatal(err)
	}
	n := bus.reads
	if err := d.Connected(); err != nil {
		t.Fatal(err)
	}
	if bus.reads != n {
		t.Fatalf("second Connected hit the bus: %d -> %d reads", n, bus.reads)
	}
}

func TestConnectedBadID(t *testing.T) {
	bus := &fakeBus{regs: map[uint8][]byte{0xD0: {0x60}}}
	d := newTestDevice(t, bus)
	if err := d.Connected(); err != ErrBadChipID {
		t.Fatalf("err = %v, want ErrBadChipID", err)
	}
}

func TestSetSamplingPayload(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus)
	err := d.SetSampling(Sampling{
		PressureOversampling:    16,
		TemperatureOversampling: 2,
		Mode:                    ModeTrigger,
	})
	if err != nil {
		t.Fatal(err)
	}
	if bus.lastReg != 0xF4 {
		t.Fatalf("wrote register %#x, want 0xF4", bus.lastReg)
	}
	// osrs_t=2 -> 010 in bits 7:5, osrs_p=16 -> 101 in bits 4:2, forced -> 10.
	if want := byte(0b01010110); bus.lastData[0] != want {
		t.Fatalf("ctrl_meas = %08b, want %08b", bus.lastData[0], want)
	}
}

func TestSetSamplingRejectsBeforeIO(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus)
	if err := d.SetSampling(Sampling{PressureOversampling: 3, Mode: ModeTrigger}); err != ErrOversampling {
		t.Fatalf("err = %v, want ErrOversampling", err)
	}
	if err := d.SetSampling(Sampling{PressureOversampling: 16, TemperatureOversampling: 2, Mode: "fast"}); err != ErrMode {
		t.Fatalf("err = %v, want ErrMode", err)
	}
	if bus.writes != 0 {
		t.Fatalf("invalid sampling reached the bus: %d writes", bus.writes)
	}
}

func TestSetConfigRejectsBeforeIO(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus)
	if err := d.SetConfig(Config{PeriodMs: 300, FilterConst: 2}); err != ErrPeriod {
		t.Fatalf("err = %v, want ErrPeriod", err)
	}
	if err := d.SetConfig(Config{PeriodMs: 250, FilterConst: 3}); err != ErrFilter {
		t.Fatalf("err = %v, want ErrFilter", err)
	}
	if bus.writes != 0 {
		t.Fatalf("invalid config reached the bus: %d writes", bus.writes)
	}
	if err := d.SetConfig(Config{PeriodMs: 250, FilterConst: 2}); err != nil {
		t.Fatal(err)
	}
	// t_sb=250 -> 011 in bits 7:5, filter=2 -> 001 in bits 4:2.
	if want := byte(0b01100100); bus.lastData[0] != want {
		t.Fatalf("config = %08b, want %08b", bus.lastData[0], want)
	}
}

func TestReadCalibrationDecodesSigned(t *testing.T) {
	bus := &fakeBus{}
	d := newTestDevice(t, bus)
	cal, err := d.ReadCalibration()
	if err != nil {
		t.Fatal(err)
	}
	if cal != testCal {
		t.Fatalf("cal = %+v, want %+v", cal, testCal)
	}
}

func TestMeasureDatasheetExample(t *testing.T) {
	// adc_T=519888 and adc_P=415148, left-aligned 20-bit in three bytes.
	bus := &fakeBus{
		regs: map[uint8][]byte{
			0xF7: {0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00},
		},
		statusSeq: [][]byte{{0b00001000}, {0b00001000}, {0x00}},
	}
	d := newTestDevice(t, bus)
	temp, press, err := d.Measure()
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(temp-25.08) > 0.01 {
		t.Errorf("temp = %v, want 25.08", temp)
	}
	if math.Abs(press-100653.27) > 1.0 {
		t.Errorf("press = %v, want 100653.27", press)
	}
}

func TestCompensateTemp(t *testing.T) {
	centiC, tFine := compensateTemp(519888, testCal)
	if centiC != 2508 {
		t.Fatalf("centiC = %d, want 2508", centiC)
	}
	if tFine != 128422 {
		t.Fatalf("tFine = %d, want 128422", tFine)
	}
}

func TestBadAddressPin(t *testing.T) {
	if _, err := New(&fakeBus{}, 2); err != ErrBadAddressPin {
		t.Fatalf("err = %v, want ErrBadAddressPin", err)
	}
}
