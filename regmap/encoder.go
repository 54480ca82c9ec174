package regmap

import (
	"math"
	"strconv"

	"airsense-go/errcode"
)

// Encoder is a stateless bidirectional transform between human values and
// raw field bytes. Implementations must return exactly Span() bytes from
// Encode and must treat undecodable raw bytes as errors, never defaults.
// Encoder instances carry no per-read state and are safe to share across
// fields by reference.
type Encoder interface {
	Encode(v any, f *Field) ([]byte, error)
	Decode(raw []byte, f *Field) (any, error)
}

// asUint converts the integer-ish value types callers put in a Values map.
// Bools map to 0/1 so single-bit flag fields read naturally at call sites.
func asUint(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case uint32:
		return uint64(x), true
	case uint16:
		return uint64(x), true
	case uint8:
		return uint64(x), true
	case uint:
		return uint64(x), true
	case int:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int64:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case int32:
		if x < 0 {
			return 0, false
		}
		return uint64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint64:
		if x > math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint8:
		return int64(x), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// UInt interprets field bytes as an unsigned integer in the field's byte
// order. The default encoder.
type UInt struct{}

func (UInt) Encode(v any, f *Field) ([]byte, error) {
	u, ok := asUint(v)
	if !ok {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value is not an unsigned integer")
	}
	n := f.Span()
	if n < 8 && u>>(uint(n)*8) != 0 {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name,
			"value "+strconv.FormatUint(u, 10)+" does not fit in "+strconv.Itoa(n)+" bytes")
	}
	out := make([]byte, n)
	orderPut(out, u, f.Order)
	return out, nil
}

func (UInt) Decode(raw []byte, f *Field) (any, error) {
	return orderUint(raw, f.Order), nil
}

// SInt interprets field bytes as a two's-complement signed integer.
type SInt struct{}

func (SInt) Encode(v any, f *Field) ([]byte, error) {
	s, ok := asInt(v)
	if !ok {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value is not a signed integer")
	}
	n := f.Span()
	if n < 8 {
		lim := int64(1) << (uint(n)*8 - 1)
		if s < -lim || s >= lim {
			return nil, errcode.New(errcode.Validation, "regmap: "+f.Name,
				"value "+strconv.FormatInt(s, 10)+" does not fit in "+strconv.Itoa(n)+" signed bytes")
		}
	}
	out := make([]byte, n)
	orderPut(out, uint64(s), f.Order)
	return out, nil
}

func (SInt) Decode(raw []byte, f *Field) (any, error) {
	u := orderUint(raw, f.Order)
	n := len(raw)
	if n < 8 {
		sign := uint64(1) << (uint(n)*8 - 1)
		if u&sign != 0 {
			return int64(u) - int64(1)<<(uint(n)*8), nil
		}
	}
	return int64(u), nil
}

// Lookup maps human-readable keys (ints, floats, strings) to fixed-width
// integer codes. Decoding a code absent from the table is a codec error:
// it means corrupt or unsupported hardware state, never a silent default.
type Lookup struct {
	byKey  map[any]uint64
	byCode map[uint64]any
}

// NewLookup builds a Lookup from a key->code table. Duplicate codes would
// make decoding ambiguous and are rejected as a configuration error.
func NewLookup(table map[any]uint64) (*Lookup, error) {
	l := &Lookup{
		byKey:  make(map[any]uint64, len(table)),
		byCode: make(map[uint64]any, len(table)),
	}
	for k, code := range table {
		if _, dup := l.byCode[code]; dup {
			return nil, errcode.New(errcode.Config, "regmap",
				"lookup table has duplicate code "+strconv.FormatUint(code, 10))
		}
		l.byKey[k] = code
		l.byCode[code] = k
	}
	return l, nil
}

// MustLookup is NewLookup for static descriptor tables; it panics on a
// malformed table.
func MustLookup(table map[any]uint64) *Lookup {
	l, err := NewLookup(table)
	if err != nil {
		panic(err)
	}
	return l
}

func (l *Lookup) Encode(v any, f *Field) ([]byte, error) {
	code, ok := l.byKey[v]
	if !ok {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value not in lookup table")
	}
	out := make([]byte, f.Span())
	orderPut(out, code, f.Order)
	return out, nil
}

func (l *Lookup) Decode(raw []byte, f *Field) (any, error) {
	code := orderUint(raw, f.Order)
	v, ok := l.byCode[code]
	if !ok {
		return nil, errcode.New(errcode.Codec, "regmap: "+f.Name,
			"code "+strconv.FormatUint(code, 10)+" not in lookup table")
	}
	return v, nil
}

// FixedPoint is a linear transfer function between a physical quantity and
// an integer code:
//
//	code  = round((value + Offset) * Scale)
//	value = code/Scale - Offset
//
// With Floor set, negative codes clamp to zero on encode (the clamping
// policy is part of each encoder instance's contract, not a framework
// default). Round-trips are exact to within one least-significant code.
type FixedPoint struct {
	Scale  float64
	Offset float64
	Floor  bool
}

func (e FixedPoint) Encode(v any, f *Field) ([]byte, error) {
	x, ok := asFloat(v)
	if !ok {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value is not numeric")
	}
	code := math.Round((x + e.Offset) * e.Scale)
	if code < 0 {
		if !e.Floor {
			return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value below encodable range")
		}
		code = 0
	}
	n := f.Span()
	if n < 8 && code >= math.Ldexp(1, n*8) {
		return nil, errcode.New(errcode.Validation, "regmap: "+f.Name, "value above encodable range")
	}
	out := make([]byte, n)
	orderPut(out, uint64(code), f.Order)
	return out, nil
}

func (e FixedPoint) Decode(raw []byte, f *Field) (any, error) {
	return float64(orderUint(raw, f.Order))/e.Scale - e.Offset, nil
}

// DecodeOnly wires the encode direction of an encoder to fail. Used for
// measurement fields the hardware computes itself; writing them must fail
// loudly rather than emit bytes.
type DecodeOnly struct {
	Enc Encoder
}

func (d DecodeOnly) Encode(_ any, f *Field) ([]byte, error) {
	return nil, errcode.New(errcode.Unsupported, "regmap: "+f.Name, "field is read only")
}

func (d DecodeOnly) Decode(raw []byte, f *Field) (any, error) {
	return d.Enc.Decode(raw, f)
}
