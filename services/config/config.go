// Package config loads the node configuration: a JSON file for structure
// (sensor fleet, buses, sinks) with .env overrides for the deployment
// specifics that differ per site.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	logger "github.com/d2r2/go-logger"
	"github.com/joho/godotenv"
)

var lg = logger.NewPackageLogger("config", logger.InfoLevel)

// EnvPathVar names an alternative .env file location.
const EnvPathVar = "AIRSENSE_ENV_PATH"

// defaultEnvPath is where deployments drop their site overrides.
const defaultEnvPath = "/etc/airsense/airsense.env"

// SensorConfig describes one sensor in the fleet.
type SensorConfig struct {
	// ID names the sensor on the bus and in storage.
	ID string `json:"id"`
	// Type is one of bmp280, hdc1080, ccs811, pms7003, s8.
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	// Bus is the I²C device path for I²C sensors (e.g. /dev/i2c-1).
	Bus string `json:"bus,omitempty"`
	// AddrPin is the address strap pin level for I²C sensors.
	AddrPin int `json:"addr_pin,omitempty"`
	// Port is the serial device path for UART/Modbus sensors.
	Port string `json:"port,omitempty"`
}

// MQTTConfig describes the optional broker uplink.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	ClientID    string `json:"client_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	TopicPrefix string `json:"topic_prefix,omitempty"`
	QoS         byte   `json:"qos,omitempty"`
}

// AppConfig is the top-level node configuration.
type AppConfig struct {
	// PeriodSeconds is the time between measurement rounds.
	PeriodSeconds int `json:"period_seconds"`
	// DatabasePath locates the SQLite file; empty disables the store.
	DatabasePath string         `json:"database_path"`
	MQTT         MQTTConfig     `json:"mqtt"`
	Sensors      []SensorConfig `json:"sensors"`
}

// Load builds the configuration from defaults, then the JSON file (if any),
// then .env overrides. A missing JSON or .env file is logged, not fatal:
// the node can run on defaults plus environment alone.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{
		PeriodSeconds: 10,
		DatabasePath:  "/var/lib/airsense/readings.db",
		MQTT: MQTTConfig{
			BrokerURL:   "tcp://localhost:1883",
			TopicPrefix: "airsense",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			lg.Warnf("config file %s unreadable: %v, continuing with defaults", path, err)
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	envPath := defaultEnvPath
	if p := os.Getenv(EnvPathVar); p != "" {
		envPath = p
	}
	if err := godotenv.Load(envPath); err != nil {
		lg.Debugf("no .env file at %s: %v", envPath, err)
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("AIRSENSE_PERIOD_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			lg.Warnf("AIRSENSE_PERIOD_SECONDS=%q unparseable, keeping %d", v, cfg.PeriodSeconds)
		} else {
			cfg.PeriodSeconds = n
		}
	}
	if v := os.Getenv("AIRSENSE_DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("AIRSENSE_MQTT_BROKER"); v != "" {
		cfg.MQTT.BrokerURL = v
		cfg.MQTT.Enabled = true
	}
	if v := os.Getenv("AIRSENSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("AIRSENSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("AIRSENSE_MQTT_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
}

var sensorTypes = map[string]bool{
	"bmp280": true, "hdc1080": true, "ccs811": true, "pms7003": true, "s8": true,
}

func validate(cfg *AppConfig) error {
	if cfg.PeriodSeconds <= 0 {
		return fmt.Errorf("config: period_seconds must be positive, got %d", cfg.PeriodSeconds)
	}
	seen := map[string]bool{}
	for _, s := range cfg.Sensors {
		if s.ID == "" {
			return fmt.Errorf("config: sensor of type %q has no id", s.Type)
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = true
		if !sensorTypes[s.Type] {
			return fmt.Errorf("config: sensor %q has unknown type %q", s.ID, s.Type)
		}
	}
	return nil
}
