// Package pms7003 provides a driver for the Plantower PMS7003 particulate
// matter sensor, a UART device speaking a fixed 32-byte framed protocol at
// 9600 baud.
//
// The sensor has two synchronization modes: in active mode it streams
// frames on its own dynamic schedule (0.2 s to 2.3 s), in passive mode the
// host requests each frame. Listen serves the former, Read the latter.
package pms7003

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// Errors returned by the driver.
var (
	ErrWrongMode   = errors.New("pms7003: operation not valid in current mode")
	ErrChecksum    = errors.New("pms7003: frame checksum mismatch")
	ErrFrameLength = errors.New("pms7003: short frame")
	ErrNoSync      = errors.New("pms7003: could not sync to frame start")
)

// Mode is the device's synchronization state, tracked host-side; the sensor
// has no way to report it.
type Mode int

const (
	ModeUnknown Mode = iota
	// ModePassive waits for the host to request each measurement.
	ModePassive
	// ModeActive streams measurements on the device's own schedule.
	ModeActive
	// ModeSleep stops measuring with the fan off.
	ModeSleep
)

func (m Mode) String() string {
	switch m {
	case ModePassive:
		return "passive"
	case ModeActive:
		return "active"
	case ModeSleep:
		return "sleep"
	}
	return "unknown"
}

// Every frame and command opens with these two bytes.
var startBytes = []byte{0x42, 0x4D}

// Host commands: start bytes, command, 16-bit argument, 16-bit checksum.
var (
	cmdHostSync   = []byte{0x42, 0x4D, 0xE1, 0x00, 0x00, 0x01, 0x70}
	cmdDeviceSync = []byte{0x42, 0x4D, 0xE1, 0x00, 0x01, 0x01, 0x71}
	cmdSleep      = []byte{0x42, 0x4D, 0xE4, 0x00, 0x00, 0x01, 0x73}
	cmdWake       = []byte{0x42, 0x4D, 0xE4, 0x00, 0x01, 0x01, 0x74}
	cmdMeasure    = []byte{0x42, 0x4D, 0xE2, 0x00, 0x00, 0x01, 0x71}
)

// frameBodyLen is the frame length after the start bytes.
const frameBodyLen = 30

// maxSyncScan bounds how many bytes Listen will discard hunting for a frame
// start before giving up.
const maxSyncScan = 4 * (frameBodyLen + 2)

// Reading is one decoded measurement frame. Concentrations are µg/m³;
// counts are particles per 0.1 L of air above the named size in µm.
type Reading struct {
	// Standard-particle calibration ("CF=1", factory conditions).
	PM1, PM2_5, PM10 uint16
	// Atmospheric-environment calibration.
	PM1Atm, PM2_5Atm, PM10Atm uint16

	Count0_3, Count0_5, Count1_0 uint16
	Count2_5, Count5_0, Count10  uint16

	Version   uint8
	ErrorCode uint8
}

// Device is one PMS7003 on a serial line.
type Device struct {
	port   io.ReadWriter
	closer io.Closer
	mode   Mode
}

// Open dials the serial device and brings the sensor into passive mode.
// The datasheet requires 9600 8N1 and a read timeout covering the 2.3 s
// worst-case sample period.
func Open(device string) (*Device, error) {
	port, err := serial.Open(&serial.Config{
		Address:  device,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("pms7003: open %s: %w", device, err)
	}
	d := New(port)
	d.closer = port
	if err := d.Wake(); err != nil {
		port.Close()
		return nil, err
	}
	if err := d.SetHostSync(); err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

// New binds an already-open serial line. The mode is unknown until one of
// the mode commands is sent.
func New(port io.ReadWriter) *Device {
	return &Device{port: port, mode: ModeUnknown}
}

// Mode reports the host-tracked synchronization state.
func (d *Device) Mode() Mode { return d.mode }

// Close releases the serial line if this Device opened it.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// SetHostSync puts the sensor in passive mode.
func (d *Device) SetHostSync() error { return d.command(cmdHostSync, ModePassive) }

// SetDeviceSync puts the sensor in active mode.
func (d *Device) SetDeviceSync() error { return d.command(cmdDeviceSync, ModeActive) }

// Sleep stops measurements and turns the fan off.
func (d *Device) Sleep() error { return d.command(cmdSleep, ModeSleep) }

// Wake restarts the fan and leaves the sensor in passive mode. Allow ~30 s
// of fan spin-up before trusting readings.
func (d *Device) Wake() error { return d.command(cmdWake, ModePassive) }

func (d *Device) command(cmd []byte, next Mode) error {
	if _, err := d.port.Write(cmd); err != nil {
		return fmt.Errorf("pms7003: send command: %w", err)
	}
	d.mode = next
	return nil
}

// Read requests and decodes one measurement. Passive mode only.
func (d *Device) Read() (Reading, error) {
	if d.mode != ModePassive {
		return Reading{}, fmt.Errorf("%w: need passive, in %s", ErrWrongMode, d.mode)
	}
	if _, err := d.port.Write(cmdMeasure); err != nil {
		return Reading{}, fmt.Errorf("pms7003: request measurement: %w", err)
	}
	frame := make([]byte, frameBodyLen+2)
	if _, err := io.ReadFull(d.port, frame); err != nil {
		return Reading{}, fmt.Errorf("pms7003: read frame: %w", err)
	}
	if !bytes.Equal(frame[:2], startBytes) {
		return Reading{}, ErrNoSync
	}
	return parseFrame(frame[2:])
}

// Listen waits for the next streamed frame. Active mode only. Scans the
// byte stream for the frame start, so it recovers from joining mid-frame.
func (d *Device) Listen() (Reading, error) {
	if d.mode != ModeActive {
		return Reading{}, fmt.Errorf("%w: need active, in %s", ErrWrongMode, d.mode)
	}
	if err := d.sync(); err != nil {
		return Reading{}, err
	}
	frame := make([]byte, frameBodyLen)
	if _, err := io.ReadFull(d.port, frame); err != nil {
		return Reading{}, fmt.Errorf("pms7003: read frame: %w", err)
	}
	return parseFrame(frame)
}

// sync consumes bytes until the two start bytes have just been read.
func (d *Device) sync() error {
	var b [1]byte
	seen := 0
	for scanned := 0; scanned < maxSyncScan; scanned++ {
		if _, err := io.ReadFull(d.port, b[:]); err != nil {
			return fmt.Errorf("pms7003: sync: %w", err)
		}
		switch {
		case b[0] == startBytes[0]:
			seen = 1
		case seen == 1 && b[0] == startBytes[1]:
			return nil
		default:
			seen = 0
		}
	}
	return ErrNoSync
}

// parseFrame decodes and checksums the 30 bytes after the start bytes. The
// checksum is the byte-wise sum of everything before it, start bytes
// included.
func parseFrame(body []byte) (Reading, error) {
	if len(body) != frameBodyLen {
		return Reading{}, ErrFrameLength
	}
	var sum uint16 = uint16(startBytes[0]) + uint16(startBytes[1])
	for _, b := range body[:frameBodyLen-2] {
		sum += uint16(b)
	}
	if got := binary.BigEndian.Uint16(body[frameBodyLen-2:]); got != sum {
		return Reading{}, fmt.Errorf("%w: got %#04x, calculated %#04x", ErrChecksum, got, sum)
	}
	u16 := func(i int) uint16 { return binary.BigEndian.Uint16(body[i:]) }
	return Reading{
		PM1:       u16(2),
		PM2_5:     u16(4),
		PM10:      u16(6),
		PM1Atm:    u16(8),
		PM2_5Atm:  u16(10),
		PM10Atm:   u16(12),
		Count0_3:  u16(14),
		Count0_5:  u16(16),
		Count1_0:  u16(18),
		Count2_5:  u16(20),
		Count5_0:  u16(22),
		Count10:   u16(24),
		Version:   body[26],
		ErrorCode: body[27],
	}, nil
}
