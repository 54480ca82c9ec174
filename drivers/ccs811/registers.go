package ccs811

import "airsense-go/regmap"

// I2C addresses selected by the ADDR strap pin (GND = 0x5A, VDD = 0x5B).
const (
	AddressLow  = 0x5A
	AddressHigh = 0x5B
)

// ChipID is the fixed id byte at 0x20.
const ChipID = 0x81

// appStart is the pointerless mailbox write that boots the application
// firmware.
const appStart = 0xF4

// Drive-mode codes by sample period in seconds.
var samplePeriods = regmap.MustLookup(map[any]uint64{
	0.0: 0b000, 1.0: 0b001, 10.0: 0b010, 60.0: 0b011, 0.25: 0b100,
})

// Environment compensation words are %RH and °C in 1/512 steps; the
// temperature word is offset by -25 °C so the range starts below zero.
var (
	humidityWord    = regmap.FixedPoint{Scale: 512}
	temperatureWord = regmap.FixedPoint{Scale: 512, Offset: 25, Floor: true}
)

var hardware = regmap.MustDevice(regmap.Device{
	Name:      "ccs811",
	ChipID:    ChipID,
	Addresses: map[int]uint16{0: AddressLow, 1: AddressHigh},
	Registers: []regmap.Register{
		{
			Name: "status", Addr: 0x00, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "app_on", Mask: 0b10000000},
				{Name: "app_erase", Mask: 0b01000000},
				{Name: "app_verify", Mask: 0b00100000},
				{Name: "app_valid", Mask: 0b00010000},
				{Name: "data_ready", Mask: 0b00001000},
				{Name: "error", Mask: 0b00000001},
			},
		},
		{
			Name: "meas_mode", Addr: 0x01,
			Fields: []regmap.Field{
				{Name: "sample_period", Mask: 0b01110000, Enc: samplePeriods},
				{Name: "interrupts_on", Mask: 0b00001000},
				{Name: "interrupt_on_thresh", Mask: 0b00000100},
			},
		},
		{
			Name: "data", Addr: 0x02, Bits: 32, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "co2", Bytes: []int{0, 1}},
				{Name: "tvoc", Bytes: []int{2, 3}},
			},
		},
		{
			// Heater drive: 6-bit current in µA, 10-bit sense voltage code.
			Name: "raw_data", Addr: 0x03, Bits: 16, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "current", Mask: 0b11111100},
				{Name: "voltage", Bytes: []int{0, 1}, Mask: 0x03FF},
			},
		},
		{
			Name: "env_data", Addr: 0x05, Bits: 32, WriteOnly: true,
			Fields: []regmap.Field{
				{Name: "humidity", Bytes: []int{0, 1}, Enc: humidityWord},
				{Name: "temperature", Bytes: []int{2, 3}, Enc: temperatureWord},
			},
		},
		{
			Name: "baseline", Addr: 0x11, Bits: 16,
			Fields: []regmap.Field{{Name: "baseline", Bytes: []int{0, 1}}},
		},
		{
			Name: "chip_id", Addr: 0x20, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{{Name: "chip_id"}},
		},
		{
			Name: "error_id", Addr: 0xE0, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "invalid_write", Mask: 0b10000000},
				{Name: "invalid_read", Mask: 0b01000000},
				{Name: "invalid_mode", Mask: 0b00100000},
				{Name: "max_resistance", Mask: 0b00010000},
				{Name: "heater_fault", Mask: 0b00001000},
				{Name: "heater_supply", Mask: 0b00000100},
			},
		},
		{
			Name: "reset", Addr: 0xFF, Bits: 32, WriteOnly: true,
			Fields: []regmap.Field{{Name: "reset", Bytes: []int{0, 1, 2, 3}}},
		},
	},
})

// Hardware exposes the descriptor for tooling and tests.
func Hardware() *regmap.Device { return hardware }
