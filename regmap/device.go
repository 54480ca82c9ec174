package regmap

import "airsense-go/errcode"

// Device is the static, immutable description of one hardware device model:
// its chip identifier, the strap-pin-level to bus-address map, and its
// registers. One Device value exists per sensor model and is shared by
// reference across every instance of that model.
type Device struct {
	Name   string
	ChipID uint32

	// Addresses maps the address strap pin level (0 or 1) to the bus address
	// selected by that strap.
	Addresses map[int]uint16

	Registers []Register

	byName map[string]*Register
}

// NewDevice validates a declarative descriptor and computes the per-field
// derived state. Any error is a bug in the static hardware description, not
// a runtime condition; the descriptor is unusable if construction fails.
func NewDevice(d Device) (*Device, error) {
	op := "regmap: " + d.Name
	if d.Name == "" {
		return nil, errcode.New(errcode.Config, "regmap", "device with empty name")
	}
	if d.ChipID == 0 {
		return nil, errcode.New(errcode.Config, op, "chip id not set")
	}
	if len(d.Addresses) == 0 {
		return nil, errcode.New(errcode.Config, op, "address map is empty")
	}
	if len(d.Registers) == 0 {
		return nil, errcode.New(errcode.Config, op, "no registers")
	}
	d.byName = make(map[string]*Register, len(d.Registers))
	for i := range d.Registers {
		r := &d.Registers[i]
		if err := r.init(d.Name); err != nil {
			return nil, err
		}
		if _, dup := d.byName[r.Name]; dup {
			return nil, errcode.New(errcode.Config, op, "duplicate register "+r.Name)
		}
		d.byName[r.Name] = r
	}
	return &d, nil
}

// MustDevice is NewDevice for package-level descriptor tables; it panics on
// a malformed descriptor.
func MustDevice(d Device) *Device {
	dev, err := NewDevice(d)
	if err != nil {
		panic(err)
	}
	return dev
}

// Register looks up a register by name.
func (d *Device) Register(name string) (*Register, bool) {
	r, ok := d.byName[name]
	return r, ok
}

// MustRegister is Register for driver construction paths where the name is
// a literal from the same descriptor; it panics on a miss.
func (d *Device) MustRegister(name string) *Register {
	r, ok := d.byName[name]
	if !ok {
		panic(errcode.New(errcode.Config, "regmap: "+d.Name, "no register "+name))
	}
	return r
}

// Address resolves the bus address for an address strap pin level.
func (d *Device) Address(pinLevel int) (uint16, bool) {
	a, ok := d.Addresses[pinLevel]
	return a, ok
}
