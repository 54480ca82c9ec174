// Package regmap is a declarative model for hardware registers: named,
// bit-packed fields with pluggable value encodings, plus the machinery to
// serialize human-readable values into raw register bytes and back.
//
// A sensor driver declares one immutable Device descriptor (registers and
// their fields) and binds per-register Access values to it. The framework
// owns the bit masking, shifting and multi-field byte merging; byte-level
// bus I/O is supplied by the caller through the Transport interface.
package regmap

import (
	"math/bits"
	"strconv"

	"airsense-go/errcode"
)

// ByteOrder selects the integer byte order of a field's encoder. Masking
// and shifting always operate big-endian, matching datasheet bit diagrams.
type ByteOrder uint8

const (
	BigEndian ByteOrder = iota
	LittleEndian
)

// Values maps field names to decoded, human-readable values. It is the sole
// interchange format between the codec framework and its callers.
type Values map[string]any

// Field describes one logical value inside a register. The exported members
// form the declarative table a driver writes down; everything else is
// computed and validated when the enclosing Device is constructed. A Field
// is immutable after that and is never mutated by reads or writes.
type Field struct {
	Name string

	// Bytes lists the byte offsets the field occupies within the register's
	// raw byte string. Offsets must be strictly increasing but need not be
	// contiguous. Nil means byte 0.
	Bytes []int

	// Mask is the bit mask within the field's byte span, or 0 when the field
	// occupies its full span unshifted. A non-zero mask must fit the span's
	// bit width, and masked fields may span at most 8 bytes.
	Mask uint64

	// Enc transforms between raw bytes and human values. Nil means UInt.
	Enc Encoder

	// ReadOnly marks fields the hardware will not accept writes for. It is
	// descriptor metadata consumed by typed driver APIs; encoders decide
	// whether encoding is supported (see DecodeOnly).
	ReadOnly bool

	// Order is the encoder byte order. Default big-endian.
	Order ByteOrder

	start, end int
	shift      uint
}

// span is the byte width of the field's slice within the register.
func (f *Field) span() int { return f.end - f.start + 1 }

// Span reports the byte width of the field. Encoders size their output to it.
func (f *Field) Span() int { return f.span() }

func (f *Field) init(regName string) error {
	op := "regmap: " + regName + "." + f.Name
	if f.Name == "" {
		return errcode.New(errcode.Config, "regmap: "+regName, "field with empty name")
	}
	if len(f.Bytes) == 0 {
		f.Bytes = []int{0}
	}
	for i, idx := range f.Bytes {
		if idx < 0 {
			return errcode.New(errcode.Config, op, "negative byte index")
		}
		if i > 0 && idx <= f.Bytes[i-1] {
			return errcode.New(errcode.Config, op, "byte indices must be strictly increasing")
		}
	}
	f.start = f.Bytes[0]
	f.end = f.Bytes[len(f.Bytes)-1]
	if f.Mask != 0 {
		if f.span() > 8 {
			return errcode.New(errcode.Config, op, "masked field wider than 8 bytes")
		}
		if width := uint(f.span() * 8); width < 64 && f.Mask>>width != 0 {
			return errcode.New(errcode.Config, op, "mask exceeds field byte span")
		}
		shift, err := trailingZeros(f.Mask)
		if err != nil {
			return errcode.Wrap(errcode.Config, op, err)
		}
		f.shift = shift
	}
	if f.Enc == nil {
		f.Enc = UInt{}
	}
	return nil
}

// trailingZeros computes the shift amount for a mask. A zero mask can never
// describe a field and is a configuration error.
func trailingZeros(mask uint64) (uint, error) {
	if mask == 0 {
		return 0, errcode.New(errcode.Config, "regmap", "bit mask is all zeros")
	}
	return uint(bits.TrailingZeros64(mask)), nil
}

// decodeMask extracts the field's masked bits from its raw byte slice and
// right-aligns them, repacking to the input length. Without a mask the input
// passes through untouched.
func (f *Field) decodeMask(raw []byte) []byte {
	if f.Mask == 0 {
		return raw
	}
	v := beUint(raw)
	v &= f.Mask
	v >>= f.shift
	out := make([]byte, len(raw))
	bePut(out, v)
	return out
}

// encodeMask left-shifts encoder output into its final bit position and
// repacks to the field's span width. Shifted values that no longer fit the
// span indicate an encoder bug or a corrupt table.
func (f *Field) encodeMask(enc []byte) ([]byte, error) {
	if f.Mask == 0 {
		return enc, nil
	}
	v := beUint(enc)
	if f.shift > 0 && v > f.Mask>>f.shift {
		return nil, errcode.New(errcode.Codec, "regmap: "+f.Name,
			"encoded value "+strconv.FormatUint(v, 10)+" overflows mask")
	}
	v <<= f.shift
	out := make([]byte, f.span())
	bePut(out, v)
	return out, nil
}

// EncodeValue turns a human value into the field's raw, shifted byte string,
// sized to the field's span.
func (f *Field) EncodeValue(v any) ([]byte, error) {
	enc, err := f.Enc.Encode(v, f)
	if err != nil {
		return nil, err
	}
	return f.encodeMask(enc)
}

// DecodeBytes turns the field's slice of a raw register read back into a
// human value.
func (f *Field) DecodeBytes(raw []byte) (any, error) {
	return f.Enc.Decode(f.decodeMask(raw), f)
}

// beUint interprets up to 8 bytes as a big-endian unsigned integer.
func beUint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// bePut packs v big-endian into buf, most significant byte first.
func bePut(buf []byte, v uint64) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
}

// orderUint interprets b in the field's byte order.
func orderUint(b []byte, o ByteOrder) uint64 {
	if o == LittleEndian {
		var v uint64
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	return beUint(b)
}

// orderPut packs v into buf in the field's byte order.
func orderPut(buf []byte, v uint64, o ByteOrder) {
	if o == LittleEndian {
		for i := 0; i < len(buf); i++ {
			buf[i] = byte(v)
			v >>= 8
		}
		return
	}
	bePut(buf, v)
}
