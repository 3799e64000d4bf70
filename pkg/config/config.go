// Package config provides configurations of the TTSP daemon and tools.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/monitor"
	"github.com/robotalks/ttsp.go/pkg/retry"
	"github.com/robotalks/ttsp.go/pkg/transport"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"
)

// Config is the top level configuration.
type Config struct {
	// ID identifies this host, used as MQTT topic prefix for devices.
	ID string `toml:"id"`
	// MQTTBrokerURL specifies the MQTT broker to use, empty to disable.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `toml:"mqtt_url"`
	// MetricsAddr is the listen address of /metrics, empty to disable.
	MetricsAddr string `toml:"metrics_addr"`

	Devices []Device `toml:"device"`
}

// Device configures one peripheral.
type Device struct {
	// Name is the adapter name.
	Name      string `toml:"name"`
	Port      string `toml:"port"`
	Frequency string `toml:"frequency"`
	// StrictTransport fails on bus errors even when ack is valid.
	StrictTransport bool          `toml:"strict_transport"`
	Attempts        int           `toml:"retry_attempts"`
	RetryDelay      time.Duration `toml:"retry_delay"`
	Interval        time.Duration `toml:"interval"`

	Blocks []monitor.Block `toml:"block"`
}

var (
	defaultConfig = Config{
		MQTTBrokerURL: "mqtt://localhost:1883/ttsp/",
		MetricsAddr:   ":9262",
	}
	configFile string
)

func init() {
	if val := os.Getenv("TTSP_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if id, err := machineid.ID(); err == nil {
		defaultConfig.ID = id
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&configFile, "config", configFile, "TOML config file.")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Host ID")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, empty to disable")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics", defaultConfig.MetricsAddr, "Metrics listen address, empty to disable")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with defaults, and loads the config file
// specified from command line.
func NewConfig() (*Config, error) {
	conf := defaultConfig
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}

// MustNewConfig creates Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overrides the config with a TOML file.
func (c *Config) LoadFile(fn string) error {
	if _, err := toml.DecodeFile(fn, c); err != nil {
		return fmt.Errorf("load config %q error: %w", fn, err)
	}
	return c.Validate()
}

// Load overrides the config with TOML content.
func (c *Config) Load(content string) error {
	if _, err := toml.Decode(content, c); err != nil {
		return err
	}
	return c.Validate()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	names := make(map[string]bool)
	for n := range c.Devices {
		dev := &c.Devices[n]
		if dev.Name == "" {
			if len(c.Devices) > 1 {
				return fmt.Errorf("device[%d]: name required", n)
			}
			dev.Name = adapter.DefaultName
		}
		if names[dev.Name] {
			return fmt.Errorf("device %q: duplicated", dev.Name)
		}
		names[dev.Name] = true
		if _, err := dev.SPIConfig(); err != nil {
			return fmt.Errorf("device %q: %w", dev.Name, err)
		}
		for _, b := range dev.Blocks {
			if err := b.Validate(); err != nil {
				return fmt.Errorf("device %q: %w", dev.Name, err)
			}
		}
	}
	return nil
}

// DevicesOrDefault returns configured devices, or a single device
// from command line flags if none is configured.
func (c *Config) DevicesOrDefault() []Device {
	if len(c.Devices) > 0 {
		return c.Devices
	}
	spiConf := periphspi.Default()
	return []Device{{
		Name:      adapter.DefaultName,
		Port:      spiConf.Port,
		Frequency: spiConf.Frequency.String(),
	}}
}

// SPIConfig builds the bus config.
func (d *Device) SPIConfig() (*periphspi.Config, error) {
	conf := periphspi.NewConfig()
	conf.Port = d.Port
	if d.Frequency != "" {
		var f physic.Frequency
		if err := f.Set(d.Frequency); err != nil {
			return nil, fmt.Errorf("invalid frequency %q: %w", d.Frequency, err)
		}
		conf.Frequency = f
	}
	return conf, nil
}

// RetryPolicy builds the retry policy.
func (d *Device) RetryPolicy() retry.Policy {
	policy := retry.DefaultPolicy
	if d.Attempts > 0 {
		policy.Attempts = d.Attempts
	}
	if d.RetryDelay > 0 {
		policy.Delay = d.RetryDelay
	}
	return policy
}

// AckPolicy returns the transport ack policy.
func (d *Device) AckPolicy() transport.AckPolicy {
	if d.StrictTransport {
		return transport.StrictTransport
	}
	return transport.AckAuthoritative
}
