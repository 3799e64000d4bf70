package daemon

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/config"
	"github.com/robotalks/ttsp.go/pkg/monitor"
	"github.com/robotalks/ttsp.go/pkg/transport"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"
)

type ackBus struct {
	closed bool
}

func (b *ackBus) Exchange(segs []transport.Segment) error {
	segs[0].R[0] = transport.SyncAck
	return nil
}

func (b *ackBus) Close() error {
	b.closed = true
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		ID: "host",
		Devices: []config.Device{
			{Name: "a", Blocks: []monitor.Block{{Name: "mode", Addr: 0, Len: 2}}},
			{Name: "b", Port: "/dev/spidev0.1"},
		},
	}
}

func TestNew(t *testing.T) {
	other := transport.New("other", &ackBus{})
	require.NoError(t, adapter.Add("other", other))
	defer adapter.Del("other")

	var buses []*ackBus
	var ports []string
	d, err := New(testConfig(), func(conf *periphspi.Config) (periphspi.Bus, error) {
		bus := &ackBus{}
		buses = append(buses, bus)
		ports = append(ports, conf.Port)
		return bus, nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"", "/dev/spidev0.1"}, ports)
	require.Same(t, adapter.Default(), d.Registry)
	require.Equal(t, []string{"a", "b", "other"}, adapter.Names())
	ops, err := adapter.Get("a")
	require.NoError(t, err)
	require.IsType(t, &transport.Transport{}, ops)
	require.Len(t, d.Monitors, 1)
	require.Equal(t, "host/a", d.Monitors[0].Device)
	require.Len(t, d.Runnables(), 1)

	require.NoError(t, d.Monitors[0].Poll(context.Background()))

	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `ttsp_transfers_total{device="a",op="read",status="success"} 1`)

	require.NoError(t, d.Close())
	require.Equal(t, []string{"other"}, adapter.Names())
	for _, bus := range buses {
		require.True(t, bus.closed)
	}
}

func TestNewOpenError(t *testing.T) {
	var opened []*ackBus
	_, err := New(testConfig(), func(conf *periphspi.Config) (periphspi.Bus, error) {
		if len(opened) > 0 {
			return nil, errors.New("busy")
		}
		bus := &ackBus{}
		opened = append(opened, bus)
		return bus, nil
	})
	require.Error(t, err)
	require.Len(t, opened, 1)
	require.True(t, opened[0].closed)
	require.Empty(t, adapter.Names())
}

func TestNewWithMQTT(t *testing.T) {
	conf := testConfig()
	conf.MQTTBrokerURL = "mqtt://localhost:1883/ttsp/"
	conf.MetricsAddr = ":0"
	d, err := New(conf, func(*periphspi.Config) (periphspi.Bus, error) {
		return &ackBus{}, nil
	})
	require.NoError(t, err)
	defer d.Close()
	require.NotNil(t, d.Queue)
	require.NotNil(t, d.Monitors[0].Publisher)
	// mqtt, monitor, 2 write handlers and metrics
	require.Len(t, d.Runnables(), 5)
}
