package hdc1080

import "airsense-go/regmap"

// Address is the only I2C address the HDC1080 answers on; there is no
// address strap.
const Address = 0x40

// DeviceID is the fixed id word at 0xFF.
const DeviceID = 0x1050

// Transfer functions per datasheet section 8.6:
//
//	temperature = raw * 165 / 2^16 - 40  [degC]
//	humidity    = raw * 100 / 2^16      [%RH]
//
// Both are measurement outputs; the encode direction is wired to fail.
var (
	temperatureTransfer = regmap.DecodeOnly{Enc: regmap.FixedPoint{Scale: 65536.0 / 165.0, Offset: 40}}
	humidityTransfer    = regmap.DecodeOnly{Enc: regmap.FixedPoint{Scale: 65536.0 / 100.0}}
)

var hardware = regmap.MustDevice(regmap.Device{
	Name:      "hdc1080",
	ChipID:    DeviceID,
	Addresses: map[int]uint16{0: Address, 1: Address},
	Registers: []regmap.Register{
		{
			Name: "device_id", Addr: 0xFF, Bits: 16, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{{Name: "device_id", Bytes: []int{0, 1}}},
		},
		{
			Name: "manufacturer_id", Addr: 0xFE, Bits: 16, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{{Name: "manufacturer_id", Bytes: []int{0, 1}}},
		},
		{
			// 40-bit factory serial in a 48-bit read.
			Name: "serial_id", Addr: 0xFB, Bits: 48, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{{Name: "serial_id", Bytes: []int{0, 1, 2, 3, 4}}},
		},
		{
			Name: "config", Addr: 0x02, Bits: 16,
			Fields: []regmap.Field{
				{Name: "reset", Mask: 0b10000000},
				{Name: "heater_on", Mask: 0b00100000},
				{Name: "measure_both", Mask: 0b00010000},
				{Name: "battery_low", Mask: 0b00001000, ReadOnly: true},
				{Name: "temp_res_bits", Mask: 0b00000100,
					Enc: regmap.MustLookup(map[any]uint64{14: 0, 11: 1})},
				{Name: "rh_res_bits", Mask: 0b00000011,
					Enc: regmap.MustLookup(map[any]uint64{14: 0b00, 11: 0b01, 8: 0b10})},
				// Second byte must stay null.
				{Name: "reserved", Bytes: []int{1}},
			},
		},
		{
			Name: "temperature", Addr: 0x00, Bits: 16, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "temperature", Bytes: []int{0, 1}, Enc: temperatureTransfer},
			},
		},
		{
			Name: "humidity", Addr: 0x01, Bits: 16, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "humidity", Bytes: []int{0, 1}, Enc: humidityTransfer},
			},
		},
		{
			// Simultaneous temperature + humidity acquisition.
			Name: "data", Addr: 0x00, Bits: 32, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "temperature", Bytes: []int{0, 1}, Enc: temperatureTransfer},
				{Name: "humidity", Bytes: []int{2, 3}, Enc: humidityTransfer},
			},
		},
	},
})

// Hardware exposes the descriptor for tooling and tests.
func Hardware() *regmap.Device { return hardware }
