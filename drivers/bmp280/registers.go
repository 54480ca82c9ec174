package bmp280

import "airsense-go/regmap"

// I2C addresses selected by the SDO strap pin (GND = 0x76, VDDIO = 0x77).
const (
	AddressLow  = 0x76
	AddressHigh = 0x77
)

// ChipID is the fixed id byte at 0xD0.
const ChipID = 0x58

// Oversampling codes shared by osrs_t and osrs_p. 0 skips the measurement.
var oversampling = regmap.MustLookup(map[any]uint64{
	0: 0b000, 1: 0b001, 2: 0b010, 4: 0b011, 8: 0b100, 16: 0b101,
})

// hardware is the immutable register layout, per datasheet section 4.
var hardware = regmap.MustDevice(regmap.Device{
	Name:      "bmp280",
	ChipID:    ChipID,
	Addresses: map[int]uint16{0: AddressLow, 1: AddressHigh},
	Registers: []regmap.Register{
		{
			Name: "chip_id", Addr: 0xD0, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{{Name: "id"}},
		},
		{
			Name: "reset", Addr: 0xE0, WriteOnly: true,
			Fields: []regmap.Field{{Name: "reset"}},
		},
		{
			Name: "status", Addr: 0xF3, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "measuring", Mask: 0b00001000}, // conversion running
				{Name: "im_update", Mask: 0b00000001}, // NVM copy in progress
			},
		},
		{
			Name: "ctrl_meas", Addr: 0xF4,
			Fields: []regmap.Field{
				{Name: "osrs_t", Mask: 0b11100000, Enc: oversampling},
				{Name: "osrs_p", Mask: 0b00011100, Enc: oversampling},
				{Name: "mode", Mask: 0b00000011,
					Enc: regmap.MustLookup(map[any]uint64{
						"sleep": 0b00, "forced": 0b10, "normal": 0b11,
					})},
			},
		},
		{
			Name: "config", Addr: 0xF5,
			Fields: []regmap.Field{
				// Standby period between measurements in normal mode, ms.
				{Name: "t_sb", Mask: 0b11100000,
					Enc: regmap.MustLookup(map[any]uint64{
						0.5: 0b000, 62.5: 0b001, 125.0: 0b010, 250.0: 0b011,
						500.0: 0b100, 1000.0: 0b101, 2000.0: 0b110, 4000.0: 0b111,
					})},
				// IIR filter time constant.
				{Name: "filter", Mask: 0b00011100,
					Enc: regmap.MustLookup(map[any]uint64{
						0: 0b000, 2: 0b001, 4: 0b010, 8: 0b011, 16: 0b100,
					})},
				{Name: "spi3w_en", Mask: 0b00000001},
			},
		},
		{
			// Burst read of press_msb..temp_xlsb. Both readings are 20-bit
			// values left-aligned in three bytes.
			Name: "data", Addr: 0xF7, Bits: 48, ReadOnly: true,
			Fields: []regmap.Field{
				{Name: "pressure", Bytes: []int{0, 1, 2}, Mask: 0xFFFFF0},
				{Name: "temperature", Bytes: []int{3, 4, 5}, Mask: 0xFFFFF0},
			},
		},
		{
			// Factory trimming constants, low byte first.
			Name: "calibration", Addr: 0x88, Bits: 192, ReadOnly: true, NonVolatile: true,
			Fields: []regmap.Field{
				{Name: "dig_t1", Bytes: []int{0, 1}, Order: regmap.LittleEndian},
				{Name: "dig_t2", Bytes: []int{2, 3}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_t3", Bytes: []int{4, 5}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p1", Bytes: []int{6, 7}, Order: regmap.LittleEndian},
				{Name: "dig_p2", Bytes: []int{8, 9}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p3", Bytes: []int{10, 11}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p4", Bytes: []int{12, 13}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p5", Bytes: []int{14, 15}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p6", Bytes: []int{16, 17}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p7", Bytes: []int{18, 19}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p8", Bytes: []int{20, 21}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
				{Name: "dig_p9", Bytes: []int{22, 23}, Enc: regmap.SInt{}, Order: regmap.LittleEndian},
			},
		},
	},
})

// Hardware exposes the descriptor for tooling and tests.
func Hardware() *regmap.Device { return hardware }
