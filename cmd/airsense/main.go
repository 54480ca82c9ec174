// cmd/airsense/main.go
//
// The node daemon: loads the configuration, opens the configured buses and
// ports, and runs the sampling loop with the SQLite store and MQTT uplink
// attached to the internal bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/d2r2/go-logger"

	"airsense-go/bus"
	"airsense-go/drivers/bmp280"
	"airsense-go/drivers/ccs811"
	"airsense-go/drivers/hdc1080"
	"airsense-go/drivers/hosti2c"
	"airsense-go/drivers/pms7003"
	"airsense-go/drivers/s8"
	"airsense-go/services/config"
	"airsense-go/services/heartbeat"
	"airsense-go/services/publish"
	"airsense-go/services/sampler"
	"airsense-go/services/store"
)

var lg = logger.NewPackageLogger("airsense", logger.InfoLevel)

func main() {
	configPath := flag.String("config", "/etc/airsense/airsense.json", "JSON configuration file")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		for _, pkg := range []string{"airsense", "sampler", "store", "publish", "config"} {
			logger.ChangePackageLogLevel(pkg, logger.DebugLevel)
		}
	}
	// The i2c-dev package logs every transfer at debug; keep it quiet.
	logger.ChangePackageLogLevel("i2c", logger.InfoLevel)

	if err := run(*configPath); err != nil {
		lg.Error(err)
		os.Exit(1)
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(32)
	svc := sampler.NewService(b, sampler.Config{
		Period: time.Duration(cfg.PeriodSeconds) * time.Second,
	})

	registered := buildSensors(cfg, svc)
	if registered == 0 {
		lg.Warn("no sensors came up, running with an empty fleet")
	}

	if cfg.DatabasePath != "" {
		st, err := store.NewStore(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer st.Close()
		go store.NewService(b, st).Run(ctx)
		lg.Infof("storing readings in %s", cfg.DatabasePath)
	}

	if cfg.MQTT.Enabled {
		pub := publish.NewService(b, publish.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		})
		if err := pub.Connect(); err != nil {
			// paho keeps retrying in the background; the node still
			// samples and stores locally meanwhile.
			lg.Warnf("broker unreachable at startup: %v", err)
		}
		go pub.Run(ctx)
	}

	go heartbeat.NewService(b, 30*time.Second).Run(ctx)

	lg.Infof("sampling %d sensors every %ds", registered, cfg.PeriodSeconds)
	svc.Run(ctx)
	return nil
}

// buildSensors opens each enabled sensor and registers its adaptor. A sensor
// that fails to come up is logged and skipped so one dead part cannot take
// the node down.
func buildSensors(cfg *config.AppConfig, svc *sampler.Service) int {
	i2cBuses := map[string]*hosti2c.Bus{}
	i2cBus := func(device string) (*hosti2c.Bus, error) {
		if device == "" {
			device = "/dev/i2c-1"
		}
		if b, ok := i2cBuses[device]; ok {
			return b, nil
		}
		b, err := hosti2c.Open(device)
		if err != nil {
			return nil, err
		}
		i2cBuses[device] = b
		return b, nil
	}

	registered := 0
	for _, sc := range cfg.Sensors {
		if !sc.Enabled {
			continue
		}
		adaptor, err := buildSensor(sc, i2cBus)
		if err != nil {
			lg.Errorf("%s: bring-up failed, skipping: %v", sc.ID, err)
			continue
		}
		svc.Register(adaptor)
		registered++
	}
	return registered
}

func buildSensor(sc config.SensorConfig, i2cBus func(string) (*hosti2c.Bus, error)) (sampler.Adaptor, error) {
	switch sc.Type {
	case "bmp280":
		b, err := i2cBus(sc.Bus)
		if err != nil {
			return nil, err
		}
		dev, err := bmp280.New(b, sc.AddrPin)
		if err != nil {
			return nil, err
		}
		return sampler.NewBMP280(sc.ID, dev), nil

	case "hdc1080":
		b, err := i2cBus(sc.Bus)
		if err != nil {
			return nil, err
		}
		return sampler.NewHDC1080(sc.ID, hdc1080.New(b)), nil

	case "ccs811":
		b, err := i2cBus(sc.Bus)
		if err != nil {
			return nil, err
		}
		dev, err := ccs811.New(b, sc.AddrPin)
		if err != nil {
			return nil, err
		}
		if err := dev.Start(); err != nil {
			return nil, err
		}
		if err := dev.SetMeasureMode(ccs811.MeasureMode{SamplePeriodS: 1}); err != nil {
			return nil, err
		}
		return sampler.NewCCS811(sc.ID, dev), nil

	case "pms7003":
		dev, err := pms7003.Open(sc.Port)
		if err != nil {
			return nil, err
		}
		return sampler.NewPMS7003(sc.ID, dev), nil

	case "s8":
		dev, err := s8.Open(sc.Port)
		if err != nil {
			return nil, err
		}
		return sampler.NewS8(sc.ID, dev), nil
	}
	// config.Load validated the type already; this is unreachable.
	return nil, fmt.Errorf("unknown sensor type %q", sc.Type)
}
