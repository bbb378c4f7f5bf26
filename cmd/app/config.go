package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	koanfjson "github.com/knadh/koanf/parsers/json"
	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "JEMHEATER_"

type Config struct {
	// Name is the accessory name; it also keys the persisted setpoints.
	Name     string `koanf:"name" yaml:"name"`
	DeviceID string `koanf:"device_id" yaml:"device_id"`
	StateDir string `koanf:"state_dir" yaml:"state_dir"`

	Log         LogConfig         `koanf:"log" yaml:"log"`
	Options     OptionsConfig     `koanf:"options" yaml:"options"`
	Simulator   SimulatorConfig   `koanf:"simulator" yaml:"simulator"`
	Terminal    TerminalConfig    `koanf:"terminal" yaml:"terminal"`
	Controllers ControllersConfig `koanf:"controllers" yaml:"controllers"`
}

type LogConfig struct {
	Level string `koanf:"level" yaml:"level"`
	File  string `koanf:"file" yaml:"file"`
}

// OptionsConfig holds the accessory options: the Switchbot credentials and
// the hysteresis threshold.
type OptionsConfig struct {
	Token    string `koanf:"token" yaml:"token"`
	DeviceID string `koanf:"device_id" yaml:"device_id"`
	BaseURL  string `koanf:"base_url" yaml:"base_url"`
	// Duration is the poll interval in milliseconds.
	Duration             int     `koanf:"duration" yaml:"duration"`
	ThresholdTemperature float64 `koanf:"threshold_temperature" yaml:"threshold_temperature"`
	// Simulate replaces the Switchbot sensor and the GPIO relay with
	// in-process models.
	Simulate bool `koanf:"simulate" yaml:"simulate"`
}

func (o OptionsConfig) PollInterval() time.Duration {
	return time.Duration(o.Duration) * time.Millisecond
}

type SimulatorConfig struct {
	InitialTemperature float64 `koanf:"initial_temperature" yaml:"initial_temperature"`
	OutdoorTemperature float64 `koanf:"outdoor_temperature" yaml:"outdoor_temperature"`
	Coefficient        float64 `koanf:"coefficient" yaml:"coefficient"`
	HeatingRate        float64 `koanf:"heating_rate" yaml:"heating_rate"`
}

type TerminalConfig struct {
	Chip       string        `koanf:"chip" yaml:"chip"`
	ControlPin int           `koanf:"control_pin" yaml:"control_pin"`
	MonitorPin int           `koanf:"monitor_pin" yaml:"monitor_pin"`
	Pulse      time.Duration `koanf:"pulse" yaml:"pulse"`
	ActiveLow  bool          `koanf:"active_low" yaml:"active_low"`
}

type ControllersConfig struct {
	HTTP    HTTPConfig    `koanf:"http" yaml:"http"`
	MQTT    MQTTConfig    `koanf:"mqtt" yaml:"mqtt"`
	MODBUS  ModbusConfig  `koanf:"modbus" yaml:"modbus"`
	HomeKit HomeKitConfig `koanf:"homekit" yaml:"homekit"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled" yaml:"enabled"`
	BrokerURL       string        `koanf:"broker_url" yaml:"broker_url"`
	ClientID        string        `koanf:"client_id" yaml:"client_id"`
	BaseTopic       string        `koanf:"base_topic" yaml:"base_topic"`
	QoS             byte          `koanf:"qos" yaml:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot" yaml:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval" yaml:"publish_interval"`
	Username        string        `koanf:"username" yaml:"username"`
	Password        string        `koanf:"password" yaml:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
	UnitID  byte   `koanf:"unit_id" yaml:"unit_id"`
}

type HomeKitConfig struct {
	Enabled      bool          `koanf:"enabled" yaml:"enabled"`
	Pin          string        `koanf:"pin" yaml:"pin"`
	Addr         string        `koanf:"addr" yaml:"addr"`
	StoreDir     string        `koanf:"store_dir" yaml:"store_dir"`
	SyncInterval time.Duration `koanf:"sync_interval" yaml:"sync_interval"`
}

func Defaults() Config {
	return Config{
		Name:     "Heater",
		DeviceID: "default",
		StateDir: "./state",
		Log:      LogConfig{Level: "info"},
		Options: OptionsConfig{
			BaseURL:              "https://api.switch-bot.com",
			Duration:             60000,
			ThresholdTemperature: 24,
		},
		Simulator: SimulatorConfig{
			InitialTemperature: 18,
			OutdoorTemperature: 5,
			Coefficient:        1e-3,
			HeatingRate:        5e-3,
		},
		Terminal: TerminalConfig{
			Chip:       "gpiochip0",
			ControlPin: 17,
			MonitorPin: 27,
			Pulse:      500 * time.Millisecond,
		},
		Controllers: ControllersConfig{
			HTTP: HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT: MQTTConfig{
				BrokerURL:       "tcp://localhost:1883",
				PublishInterval: time.Second,
			},
			MODBUS: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
			HomeKit: HomeKitConfig{
				Enabled:      true,
				Pin:          "00102003",
				StoreDir:     "./state/homekit",
				SyncInterval: 5 * time.Second,
			},
		},
	}
}

// LoadConfig layers defaults, the config file and JEMHEATER_* environment
// variables, in that order. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	return load(path, os.Environ)
}

func load(path string, environ func() []string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := loadFile(k, path); err != nil {
			return Config{}, err
		}
	}

	envOpt := env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKeyTransform(strings.TrimPrefix(key, envPrefix)), value
		},
		EnvironFunc: environ,
	}
	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Config file missing → use defaults
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		parser = koanfyaml.Parser()
	case ".json":
		parser = koanfjson.Parser()
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("config: name is required")
	}
	if c.Options.Duration <= 0 {
		return fmt.Errorf("config: options.duration must be positive, got %d", c.Options.Duration)
	}
	if !c.Options.Simulate {
		if c.Options.Token == "" {
			return errors.New("config: options.token is required unless options.simulate is set")
		}
		if c.Options.DeviceID == "" {
			return errors.New("config: options.device_id is required unless options.simulate is set")
		}
	}
	if c.Controllers.MODBUS.Enabled && c.Controllers.MODBUS.UnitID == 0 {
		return errors.New("config: controllers.modbus.unit_id must be non-zero")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Options.Token != "" {
		c.Options.Token = "***"
	}
	if c.Controllers.MQTT.Password != "" {
		c.Controllers.MQTT.Password = "***"
	}
	return c
}

// YAML renders the configuration with secrets redacted.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var sections = []string{"options", "simulator", "terminal", "log"}

// envKeyTransform maps an environment key, prefix removed, to a koanf path:
// CONTROLLERS_HTTP_ADDR -> controllers.http.addr,
// OPTIONS_DEVICE_ID -> options.device_id. Anything else is lowercased.
func envKeyTransform(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return ""
	}

	if strings.HasPrefix(k, "controllers_") {
		parts := strings.SplitN(k, "_", 3)
		if len(parts) < 3 {
			return k
		}
		return strings.Join(parts, ".")
	}

	for _, s := range sections {
		if rest, ok := strings.CutPrefix(k, s+"_"); ok {
			return s + "." + rest
		}
	}
	return k
}
