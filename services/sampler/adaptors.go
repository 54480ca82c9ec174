package sampler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"airsense-go/drivers/bmp280"
	"airsense-go/drivers/ccs811"
	"airsense-go/drivers/hdc1080"
	"airsense-go/drivers/pms7003"
	"airsense-go/drivers/s8"
)

// BMP280 adapts the pressure/temperature driver. Trigger forces one
// conversion; Collect refuses until the status register says it finished.
type BMP280 struct {
	id  string
	dev *bmp280.Device
}

func NewBMP280(id string, dev *bmp280.Device) *BMP280 {
	return &BMP280{id: id, dev: dev}
}

func (a *BMP280) ID() string { return a.id }

func (a *BMP280) Identity(ctx context.Context) (Info, error) {
	if err := a.dev.Connected(); err != nil {
		return nil, err
	}
	cal, err := a.dev.ReadCalibration()
	if err != nil {
		return nil, err
	}
	return Info{
		"model":   "bmp280",
		"chip_id": fmt.Sprintf("%#02x", bmp280.ChipID),
		"trimmed": cal.T1 != 0, // all-zero trimming means a broken part
	}, nil
}

func (a *BMP280) Trigger(ctx context.Context) (time.Duration, error) {
	s := bmp280.DefaultSampling()
	if err := a.dev.SetSampling(s); err != nil {
		return 0, err
	}
	// Worst-case conversion at 16x/2x oversampling.
	return 45 * time.Millisecond, nil
}

func (a *BMP280) Collect(ctx context.Context) (Sample, error) {
	st, err := a.dev.ReadStatus()
	if err != nil {
		return nil, err
	}
	if st.Measuring {
		return nil, ErrNotReady
	}
	temp, press, err := a.dev.ReadMeasurement()
	if errors.Is(err, bmp280.ErrPressureSkipped) {
		return Sample{reading("temperature", temp, "degC")}, nil
	}
	if err != nil {
		return nil, err
	}
	return Sample{
		reading("temperature", temp, "degC"),
		reading("pressure", press, "Pa"),
	}, nil
}

func (a *BMP280) InvalidateCache() { a.dev.InvalidateCache() }

// HDC1080 adapts the humidity/temperature driver. The driver waits out the
// conversion itself, so the cycle collapses into Collect.
type HDC1080 struct {
	id  string
	dev *hdc1080.Device
}

func NewHDC1080(id string, dev *hdc1080.Device) *HDC1080 {
	return &HDC1080{id: id, dev: dev}
}

func (a *HDC1080) ID() string { return a.id }

func (a *HDC1080) Identity(ctx context.Context) (Info, error) {
	if err := a.dev.Connected(); err != nil {
		return nil, err
	}
	serial, err := a.dev.SerialID()
	if err != nil {
		return nil, err
	}
	low, err := a.dev.BatteryLow()
	if err != nil {
		return nil, err
	}
	return Info{
		"model":       "hdc1080",
		"serial":      fmt.Sprintf("%010x", serial),
		"battery_low": low,
	}, nil
}

func (a *HDC1080) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *HDC1080) Collect(ctx context.Context) (Sample, error) {
	temp, rh, err := a.dev.ReadData()
	if err != nil {
		return nil, err
	}
	return Sample{
		reading("temperature", temp, "degC"),
		reading("humidity", rh, "%RH"),
	}, nil
}

func (a *HDC1080) InvalidateCache() { a.dev.InvalidateCache() }

// CCS811 adapts the gas sensor. The chip samples on its own drive-mode
// period; a cycle that lands between samples surfaces as ErrNotReady.
type CCS811 struct {
	id  string
	dev *ccs811.Device
}

func NewCCS811(id string, dev *ccs811.Device) *CCS811 {
	return &CCS811{id: id, dev: dev}
}

func (a *CCS811) ID() string { return a.id }

func (a *CCS811) Identity(ctx context.Context) (Info, error) {
	if err := a.dev.Connected(); err != nil {
		return nil, err
	}
	baseline, err := a.dev.Baseline()
	if err != nil {
		return nil, err
	}
	return Info{
		"model":    "ccs811",
		"chip_id":  fmt.Sprintf("%#02x", ccs811.ChipID),
		"baseline": baseline,
	}, nil
}

func (a *CCS811) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *CCS811) Collect(ctx context.Context) (Sample, error) {
	m, err := a.dev.Measure()
	if errors.Is(err, ccs811.ErrNotReady) {
		return nil, ErrNotReady
	}
	if err != nil {
		return nil, err
	}
	return Sample{
		reading("eco2", float64(m.ECO2PPM), "ppm"),
		reading("tvoc", float64(m.TVOCPPB), "ppb"),
	}, nil
}

// SetEnvironment forwards ambient compensation data; the service calls it
// when a humidity sample arrives from a companion sensor.
func (a *CCS811) SetEnvironment(tempC, humidity float64) error {
	return a.dev.SetEnvironment(tempC, humidity)
}

func (a *CCS811) InvalidateCache() { a.dev.InvalidateCache() }

// PMS7003 adapts the particulate sensor in passive mode.
type PMS7003 struct {
	id  string
	dev *pms7003.Device
}

func NewPMS7003(id string, dev *pms7003.Device) *PMS7003 {
	return &PMS7003{id: id, dev: dev}
}

func (a *PMS7003) ID() string { return a.id }

func (a *PMS7003) Identity(ctx context.Context) (Info, error) {
	r, err := a.dev.Read()
	if err != nil {
		return nil, err
	}
	return Info{
		"model":   "pms7003",
		"version": r.Version,
	}, nil
}

func (a *PMS7003) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *PMS7003) Collect(ctx context.Context) (Sample, error) {
	r, err := a.dev.Read()
	if err != nil {
		return nil, err
	}
	return Sample{
		reading("pm1_0", float64(r.PM1Atm), "ug/m3"),
		reading("pm2_5", float64(r.PM2_5Atm), "ug/m3"),
		reading("pm10_0", float64(r.PM10Atm), "ug/m3"),
		reading("count_0_3", float64(r.Count0_3), "per 0.1L"),
		reading("count_2_5", float64(r.Count2_5), "per 0.1L"),
	}, nil
}

// InvalidateCache is a no-op: the frame protocol carries no register cache.
func (a *PMS7003) InvalidateCache() {}

// S8 adapts the CO₂ sensor over Modbus.
type S8 struct {
	id  string
	dev *s8.Device
}

func NewS8(id string, dev *s8.Device) *S8 {
	return &S8{id: id, dev: dev}
}

func (a *S8) ID() string { return a.id }

func (a *S8) Identity(ctx context.Context) (Info, error) {
	typeID, err := a.dev.TypeID()
	if err != nil {
		return nil, err
	}
	serial, err := a.dev.SerialNumber()
	if err != nil {
		return nil, err
	}
	fw, err := a.dev.FirmwareVersion()
	if err != nil {
		return nil, err
	}
	abc, err := a.dev.ABCPeriod()
	if err != nil {
		return nil, err
	}
	return Info{
		"model":            "senseair-s8",
		"type_id":          fmt.Sprintf("%#08x", typeID),
		"serial":           fmt.Sprintf("%08x", serial),
		"firmware":         fw,
		"abc_period_hours": abc,
	}, nil
}

func (a *S8) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *S8) Collect(ctx context.Context) (Sample, error) {
	flags, err := a.dev.ReadErrorFlags()
	if err != nil {
		return nil, err
	}
	if flags != 0 {
		return nil, fmt.Errorf("s8: error flags %#04x", flags)
	}
	ppm, err := a.dev.ReadCO2()
	if err != nil {
		return nil, err
	}
	return Sample{reading("co2", float64(ppm), "ppm")}, nil
}

// InvalidateCache is a no-op: Modbus reads are never cached host-side.
func (a *S8) InvalidateCache() {}
