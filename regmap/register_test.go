package regmap

import (
	"bytes"
	"testing"

	"airsense-go/errcode"
)

func mkRegister(t *testing.T, r Register) *Register {
	t.Helper()
	if err := r.init("test"); err != nil {
		t.Fatalf("register %q init: %v", r.Name, err)
	}
	return &r
}

func TestEncodeFieldsMergesSharedByte(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "ctrl",
		Fields: []Field{
			{Name: "f1", Mask: 0xF0},
			{Name: "f2", Mask: 0x0F},
		},
	})
	raw, err := r.EncodeFields(Values{"f1": 0b0001, "f2": 0b1000})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0b00011000}) {
		t.Fatalf("merged byte = %08b, want 00011000", raw[0])
	}
}

func TestEncodeFieldsMergeCommutative(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "ctrl",
		Fields: []Field{
			{Name: "a", Mask: 0b11100000},
			{Name: "b", Mask: 0b00011100},
			{Name: "c", Mask: 0b00000011},
		},
	})
	want, err := r.EncodeFields(Values{"a": 0b101, "b": 0b011, "c": 0b10})
	if err != nil {
		t.Fatal(err)
	}
	// Insertion order of a Go map is irrelevant to iteration, but build the
	// map in different orders and repeat to shake out any order dependence.
	for i := 0; i < 20; i++ {
		vals := Values{}
		if i%2 == 0 {
			vals["c"] = 0b10
			vals["b"] = 0b011
			vals["a"] = 0b101
		} else {
			vals["b"] = 0b011
			vals["a"] = 0b101
			vals["c"] = 0b10
		}
		got, err := r.EncodeFields(vals)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("iteration %d: %08b != %08b", i, got, want)
		}
	}
}

func TestEncodeFieldsDisjointBytesSorted(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "env",
		Bits: 32,
		Fields: []Field{
			{Name: "temperature", Bytes: []int{2, 3}},
			{Name: "humidity", Bytes: []int{0, 1}},
		},
	})
	raw, err := r.EncodeFields(Values{"temperature": 0x0304, "humidity": 0x0102})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("payload = %x, want 01020304", raw)
	}
}

func TestEncodeFieldsOmittedBytesAbsent(t *testing.T) {
	// Bytes no field touches are not zero-filled; the payload holds only the
	// spans the caller supplied.
	r := mkRegister(t, Register{
		Name: "sparse",
		Bits: 48,
		Fields: []Field{
			{Name: "lo", Bytes: []int{0}},
			{Name: "hi", Bytes: []int{4, 5}},
		},
	})
	raw, err := r.EncodeFields(Values{"lo": 0xAA, "hi": 0xBBCC})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("payload = %x, want aabbcc (no zero fill)", raw)
	}
}

func TestEncodeFieldsUnknownField(t *testing.T) {
	r := mkRegister(t, Register{Name: "r", Fields: []Field{{Name: "f"}}})
	_, err := r.EncodeFields(Values{"nope": 1})
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	if errcode.Of(err) != errcode.NoSuchField {
		t.Fatalf("code = %v, want no_such_field", errcode.Of(err))
	}
}

func TestEncodeFieldsPropagatesEncoderFailure(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "r",
		Fields: []Field{{
			Name: "mode",
			Mask: 0b11,
			Enc:  MustLookup(map[any]uint64{"on": 1, "off": 0}),
		}},
	})
	if _, err := r.EncodeFields(Values{"mode": "standby"}); err == nil {
		t.Fatal("expected validation error from lookup encoder")
	}
}

func TestDecodeAll(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "status",
		Fields: []Field{
			{Name: "measuring", Mask: 0b00001000},
			{Name: "im_update", Mask: 0b00000001},
		},
	})
	vals, err := r.DecodeAll([]byte{0b00001001})
	if err != nil {
		t.Fatal(err)
	}
	if vals["measuring"].(uint64) != 1 || vals["im_update"].(uint64) != 1 {
		t.Fatalf("vals = %v", vals)
	}
}

func TestDecodeAllAllOrNothing(t *testing.T) {
	r := mkRegister(t, Register{
		Name: "r",
		Bits: 16,
		Fields: []Field{
			{Name: "ok", Bytes: []int{0}},
			{Name: "mode", Bytes: []int{1}, Enc: MustLookup(map[any]uint64{"on": 1})},
		},
	})
	if _, err := r.DecodeAll([]byte{0x07, 0x02}); err == nil {
		t.Fatal("expected codec error to fail the whole register read")
	}
}

func TestDecodeAllLengthMismatch(t *testing.T) {
	r := mkRegister(t, Register{Name: "r", Bits: 16, Fields: []Field{{Name: "f", Bytes: []int{0, 1}}}})
	if _, err := r.DecodeAll([]byte{0x01}); err == nil {
		t.Fatal("expected codec error for short read")
	}
}

func TestRegisterConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		r    Register
	}{
		{"no fields", Register{Name: "r"}},
		{"duplicate field", Register{Name: "r", Fields: []Field{{Name: "f"}, {Name: "f"}}}},
		{"field exceeds width", Register{Name: "r", Fields: []Field{{Name: "f", Bytes: []int{0, 1}}}}},
		{"ragged width", Register{Name: "r", Bits: 12, Fields: []Field{{Name: "f"}}}},
	}
	for _, tc := range cases {
		if err := tc.r.init("test"); err == nil {
			t.Errorf("%s: expected config error", tc.name)
		}
	}
}
