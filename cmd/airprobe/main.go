// cmd/airprobe/main.go
//
// Bring-up tool: probes one sensor, prints its identity document, and
// optionally takes a single measurement. Useful for checking wiring and
// address straps before committing a sensor to the node configuration.
//
//	airprobe -type bmp280 -bus /dev/i2c-1
//	airprobe -type s8 -port /dev/ttyUSB0 -sample
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	logger "github.com/d2r2/go-logger"

	"airsense-go/drivers/bmp280"
	"airsense-go/drivers/ccs811"
	"airsense-go/drivers/hdc1080"
	"airsense-go/drivers/hosti2c"
	"airsense-go/drivers/pms7003"
	"airsense-go/drivers/s8"
	"airsense-go/services/sampler"
)

func main() {
	sensorType := flag.String("type", "", "sensor type: bmp280, hdc1080, ccs811, pms7003, s8")
	i2cDevice := flag.String("bus", "/dev/i2c-1", "i2c-dev path for I2C sensors")
	addrPin := flag.Int("pin", 0, "address strap pin level for I2C sensors")
	port := flag.String("port", "", "serial device for pms7003 and s8")
	sample := flag.Bool("sample", false, "also take one measurement")
	flag.Parse()

	logger.ChangePackageLogLevel("i2c", logger.InfoLevel)

	if err := probe(*sensorType, *i2cDevice, *addrPin, *port, *sample); err != nil {
		fmt.Fprintln(os.Stderr, "airprobe:", err)
		os.Exit(1)
	}
}

func probe(sensorType, i2cDevice string, addrPin int, port string, sample bool) error {
	adaptor, err := build(sensorType, i2cDevice, addrPin, port)
	if err != nil {
		return err
	}

	ctx := context.Background()
	info, err := adaptor.Identity(ctx)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	printInfo(info)

	if !sample {
		return nil
	}
	s, err := measure(ctx, adaptor)
	if err != nil {
		return fmt.Errorf("measure: %w", err)
	}
	for _, r := range s {
		fmt.Printf("%-12s %g %s\n", r.Kind, r.Value, r.Unit)
	}
	return nil
}

// measure runs one trigger/collect cycle, waiting out ErrNotReady the same
// way the sampling worker does.
func measure(ctx context.Context, a sampler.Adaptor) (sampler.Sample, error) {
	delay, err := a.Trigger(ctx)
	if err != nil {
		return nil, err
	}
	time.Sleep(delay)
	for attempt := 0; attempt < 10; attempt++ {
		s, err := a.Collect(ctx)
		if errors.Is(err, sampler.ErrNotReady) {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		return s, err
	}
	return nil, sampler.ErrNotReady
}

func build(sensorType, i2cDevice string, addrPin int, port string) (sampler.Adaptor, error) {
	switch sensorType {
	case "bmp280", "hdc1080", "ccs811":
		b, err := hosti2c.Open(i2cDevice)
		if err != nil {
			return nil, err
		}
		switch sensorType {
		case "bmp280":
			dev, err := bmp280.New(b, addrPin)
			if err != nil {
				return nil, err
			}
			return sampler.NewBMP280(sensorType, dev), nil
		case "hdc1080":
			return sampler.NewHDC1080(sensorType, hdc1080.New(b)), nil
		default:
			dev, err := ccs811.New(b, addrPin)
			if err != nil {
				return nil, err
			}
			if err := dev.Start(); err != nil {
				return nil, err
			}
			if err := dev.SetMeasureMode(ccs811.MeasureMode{SamplePeriodS: 1}); err != nil {
				return nil, err
			}
			return sampler.NewCCS811(sensorType, dev), nil
		}

	case "pms7003":
		if port == "" {
			return nil, fmt.Errorf("pms7003 needs -port")
		}
		dev, err := pms7003.Open(port)
		if err != nil {
			return nil, err
		}
		return sampler.NewPMS7003(sensorType, dev), nil

	case "s8":
		if port == "" {
			return nil, fmt.Errorf("s8 needs -port")
		}
		dev, err := s8.Open(port)
		if err != nil {
			return nil, err
		}
		return sampler.NewS8(sensorType, dev), nil

	case "":
		return nil, fmt.Errorf("-type is required")
	default:
		return nil, fmt.Errorf("unknown sensor type %q", sensorType)
	}
}

func printInfo(info sampler.Info) {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%-18s %v\n", k, info[k])
	}
}
