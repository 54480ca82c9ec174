package regmap

import "tinygo.org/x/drivers"

// I2CTransport adapts a 7-bit I²C target to the Transport interface using
// the drivers.I2C Tx contract: a register-pointer write followed by a
// repeated-start read, without releasing the bus.
type I2CTransport struct {
	bus  drivers.I2C
	addr uint16
}

// NewI2C binds a configured I²C bus and target address.
func NewI2C(bus drivers.I2C, addr uint16) *I2CTransport {
	return &I2CTransport{bus: bus, addr: addr}
}

// Addr reports the bound target address.
func (t *I2CTransport) Addr() uint16 { return t.addr }

func (t *I2CTransport) ReadRegister(reg uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := t.bus.Tx(t.addr, []byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (t *I2CTransport) WriteRegister(reg uint8, payload []byte) error {
	w := make([]byte, 1+len(payload))
	w[0] = reg
	copy(w[1:], payload)
	return t.bus.Tx(t.addr, w, nil)
}
