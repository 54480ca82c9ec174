// Package hosti2c exposes a Linux i2c-dev bus through the same Tx interface
// the chip drivers consume, so the drivers run unchanged on host and MCU.
package hosti2c

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	i2c "github.com/d2r2/go-i2c"
)

// Bus multiplexes one /dev/i2c-N device across target addresses. The kernel
// binds an fd to a single slave address, so a connection is opened per
// address on first use and reused after that.
type Bus struct {
	busNo int

	mu    sync.Mutex
	conns map[uint16]*i2c.I2C
}

// Open parses a device path like "/dev/i2c-1" and returns the bus. The fd
// itself is opened lazily on the first transaction.
func Open(device string) (*Bus, error) {
	idx := strings.LastIndex(device, "-")
	if idx < 0 {
		return nil, fmt.Errorf("hosti2c: %q is not an i2c-dev path", device)
	}
	n, err := strconv.Atoi(device[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("hosti2c: %q is not an i2c-dev path", device)
	}
	return &Bus{busNo: n, conns: map[uint16]*i2c.I2C{}}, nil
}

// Tx writes w then reads len(r) bytes from addr. Either slice may be empty.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	conn, err := b.conn(addr)
	if err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := conn.WriteBytes(w); err != nil {
			return err
		}
	}
	if len(r) > 0 {
		if _, err := conn.ReadBytes(r); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) conn(addr uint16) (*i2c.I2C, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.conns[addr]; ok {
		return c, nil
	}
	c, err := i2c.NewI2C(uint8(addr), b.busNo)
	if err != nil {
		return nil, fmt.Errorf("hosti2c: open bus %d addr %#02x: %w", b.busNo, addr, err)
	}
	b.conns[addr] = c
	return c, nil
}

// Close releases every per-address connection.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for addr, c := range b.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
		delete(b.conns, addr)
	}
	return first
}
