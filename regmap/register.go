package regmap

import (
	"sort"
	"strconv"

	"airsense-go/errcode"
)

// Register is a named, address-tagged collection of fields that share one
// byte-address range in the device's register space. Immutable once the
// enclosing Device is constructed.
//
// Fields may overlap in byte range only when their masks are disjoint; the
// descriptor author is responsible for that, the framework does not check
// mask disjointness.
type Register struct {
	Name string
	Addr uint8

	// Bits is the register width in bits. 0 means 8.
	Bits int

	ReadOnly  bool
	WriteOnly bool

	// NonVolatile marks registers whose contents cannot change without an
	// explicit device reset (chip IDs, factory calibration). It governs the
	// Access cache policy, not transport behaviour.
	NonVolatile bool

	Fields []Field

	byName map[string]*Field
}

func (r *Register) init(devName string) error {
	op := "regmap: " + devName + "." + r.Name
	if r.Name == "" {
		return errcode.New(errcode.Config, "regmap: "+devName, "register with empty name")
	}
	if r.Bits == 0 {
		r.Bits = 8
	}
	if r.Bits%8 != 0 {
		return errcode.New(errcode.Config, op, "width must be a whole number of bytes")
	}
	if len(r.Fields) == 0 {
		return errcode.New(errcode.Config, op, "register has no fields")
	}
	r.byName = make(map[string]*Field, len(r.Fields))
	for i := range r.Fields {
		f := &r.Fields[i]
		if err := f.init(devName + "." + r.Name); err != nil {
			return err
		}
		if _, dup := r.byName[f.Name]; dup {
			return errcode.New(errcode.Config, op, "duplicate field "+f.Name)
		}
		if f.end >= r.Size() {
			return errcode.New(errcode.Config, op,
				"field "+f.Name+" exceeds register width")
		}
		r.byName[f.Name] = f
	}
	return nil
}

// Size is the register width in bytes; the transport read length.
func (r *Register) Size() int { return r.Bits / 8 }

// Field looks up a field by name.
func (r *Register) Field(name string) (*Field, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// DecodeAll slices a full register read into per-field byte ranges and
// decodes each. All-or-nothing: one field failing to decode fails the whole
// read, so a partial result never reaches the cache.
func (r *Register) DecodeAll(raw []byte) (Values, error) {
	if len(raw) != r.Size() {
		return nil, errcode.New(errcode.Codec, "regmap: "+r.Name,
			"expected "+strconv.Itoa(r.Size())+" bytes, got "+strconv.Itoa(len(raw)))
	}
	out := make(Values, len(r.Fields))
	for i := range r.Fields {
		f := &r.Fields[i]
		v, err := f.DecodeBytes(raw[f.start : f.end+1])
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

type byteSpan struct{ start, end int }

// EncodeFields turns a field-value map into the raw payload for a register
// write. Fields sharing a byte span arrive pre-shifted from their codecs and
// are merged by bitwise OR; the merged groups are then concatenated in
// ascending offset order.
//
// Bytes no supplied field touches are absent from the output, not
// zero-filled. Callers writing a partial register must either supply every
// field or arrange a read-modify-write at the transport layer.
func (r *Register) EncodeFields(vals Values) ([]byte, error) {
	groups := make(map[byteSpan][]byte, len(vals))
	for name, v := range vals {
		f, ok := r.byName[name]
		if !ok {
			return nil, errcode.New(errcode.NoSuchField, "regmap: "+r.Name, name)
		}
		enc, err := f.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		key := byteSpan{f.start, f.end}
		if prev, shared := groups[key]; shared {
			for i := range prev {
				prev[i] |= enc[i]
			}
		} else {
			groups[key] = enc
		}
	}
	spans := make([]byteSpan, 0, len(groups))
	for s := range groups {
		spans = append(spans, s)
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})
	var out []byte
	for _, s := range spans {
		out = append(out, groups[s]...)
	}
	return out, nil
}
