// Package periphspi runs TTSP transactions on periph.io SPI ports.
package periphspi

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	host "periph.io/x/host/v3"

	"github.com/robotalks/ttsp.go/pkg/transport"
)

// BitsPerWord is fixed by the peripheral.
const BitsPerWord = 8

// Exchanger implements transport.Exchanger using spi.Conn.
type Exchanger struct {
	Conn spi.Conn
}

// NewExchanger wraps an spi.Conn.
func NewExchanger(conn spi.Conn) *Exchanger {
	return &Exchanger{Conn: conn}
}

// Exchange implements transport.Exchanger.
// Chip select is kept asserted between segments.
func (e *Exchanger) Exchange(segs []transport.Segment) error {
	pkts := make([]spi.Packet, len(segs))
	for n, seg := range segs {
		pkts[n] = spi.Packet{
			W:           seg.W,
			R:           seg.R,
			BitsPerWord: BitsPerWord,
			KeepCS:      n+1 < len(segs),
		}
	}
	return e.Conn.TxPackets(pkts)
}

// Config defines how to open the SPI port.
type Config struct {
	Port      string
	Frequency physic.Frequency
	Mode      spi.Mode
}

var defaultConfig = Config{
	Frequency: physic.MegaHertz,
	Mode:      spi.Mode0,
}

func init() {
	if val := os.Getenv("TTSP_SPI_PORT"); val != "" {
		defaultConfig.Port = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "spi", defaultConfig.Port, "SPI port name, empty for the first available.")
	flag.Var(&defaultConfig.Frequency, "spi-hz", "SPI clock frequency.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Bus is an opened bus.
type Bus interface {
	transport.Exchanger
	io.Closer
}

// OpenFunc opens a bus.
type OpenFunc func(*Config) (Bus, error)

// Open opens the bus using periph.io.
func Open(conf *Config) (Bus, error) {
	return conf.Open()
}

// Device is an opened SPI port with an Exchanger.
type Device struct {
	*Exchanger
	port io.Closer
	name string
}

// String returns the port name.
func (d *Device) String() string {
	return d.name
}

// Close implements io.Closer.
func (d *Device) Close() error {
	return d.port.Close()
}

// Open initializes the host drivers and connects the SPI port.
func (c *Config) Open() (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init error: %w", err)
	}
	port, err := spireg.Open(c.Port)
	if err != nil {
		return nil, fmt.Errorf("open SPI port %q error: %w", c.Port, err)
	}
	conn, err := port.Connect(c.Frequency, c.Mode, BitsPerWord)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("SPI setup error: %w", err)
	}
	glog.Infof("SPI %s connected at %s mode %d", port, c.Frequency, c.Mode)
	return &Device{Exchanger: NewExchanger(conn), port: port, name: port.String()}, nil
}
