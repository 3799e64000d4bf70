// Package daemon wires configured devices into adapters, monitors,
// MQTT telemetry and metrics.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/config"
	fx "github.com/robotalks/ttsp.go/pkg/framework"
	"github.com/robotalks/ttsp.go/pkg/metrics"
	"github.com/robotalks/ttsp.go/pkg/monitor"
	"github.com/robotalks/ttsp.go/pkg/retry"
	"github.com/robotalks/ttsp.go/pkg/telemetry/mqtt"
	"github.com/robotalks/ttsp.go/pkg/transport"
	"github.com/robotalks/ttsp.go/pkg/transport/periphspi"
)

// Daemon holds all running components.
type Daemon struct {
	Config   *config.Config
	Registry *adapter.Registry
	Observer *metrics.Observer
	Monitors []*monitor.Monitor
	Queue    *mqtt.Queue

	runnables  []fx.Runnable
	buses      []periphspi.Bus
	adapters   []string
	gatherer   prometheus.Gatherer
	registerer prometheus.Registerer
}

// New opens all devices and creates the components. Adapters are
// registered in adapter.Default().
func New(conf *config.Config, open periphspi.OpenFunc) (*Daemon, error) {
	reg := prometheus.NewRegistry()
	d := &Daemon{
		Config:     conf,
		Registry:   adapter.Default(),
		Observer:   metrics.NewObserver(),
		gatherer:   reg,
		registerer: reg,
	}
	if err := d.init(open); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) init(open periphspi.OpenFunc) (err error) {
	if err = d.Observer.Register(d.registerer); err != nil {
		return err
	}

	conf := d.Config
	if conf.MQTTBrokerURL != "" {
		if d.Queue, err = mqtt.NewQueueFromURL(conf.MQTTBrokerURL); err != nil {
			return fmt.Errorf("MQTT URL error: %w", err)
		}
		d.runnables = append(d.runnables, fx.NamedRun("mqtt", fx.RunFunc(d.runQueue)))
	}

	for _, dev := range conf.DevicesOrDefault() {
		dev := dev
		if err = d.addDevice(&dev, open); err != nil {
			return err
		}
	}

	if conf.MetricsAddr != "" {
		d.runnables = append(d.runnables, fx.NamedRun("metrics", fx.RunFunc(d.serveMetrics)))
	}
	return nil
}

func (d *Daemon) deviceID(dev *config.Device) string {
	if d.Config.ID == "" {
		return dev.Name
	}
	return d.Config.ID + "/" + dev.Name
}

func (d *Daemon) addDevice(dev *config.Device, open periphspi.OpenFunc) error {
	spiConf, err := dev.SPIConfig()
	if err != nil {
		return err
	}
	bus, err := open(spiConf)
	if err != nil {
		return fmt.Errorf("device %q: %w", dev.Name, err)
	}
	d.buses = append(d.buses, bus)

	tr := transport.New(dev.Name, bus)
	tr.Policy = dev.AckPolicy()
	tr.Observer = d.Observer.For(dev.Name)
	if err = d.Registry.Add(dev.Name, tr); err != nil {
		return err
	}
	d.adapters = append(d.adapters, dev.Name)
	glog.Infof("adapter %q added", dev.Name)

	ops := retry.Wrap(tr, dev.RetryPolicy())
	id := d.deviceID(dev)
	if len(dev.Blocks) > 0 {
		m := &monitor.Monitor{
			Device:   id,
			Ops:      ops,
			Blocks:   dev.Blocks,
			Interval: dev.Interval,
		}
		if d.Queue != nil {
			m.Publisher = mqtt.NewPublisher(d.Queue)
		}
		d.Monitors = append(d.Monitors, m)
		d.runnables = append(d.runnables, m)
	}
	if d.Queue != nil {
		d.runnables = append(d.runnables, mqtt.NewWriteHandler(id, ops, d.Queue))
	}
	return nil
}

// Runnables returns all components to be run.
func (d *Daemon) Runnables() []fx.Runnable {
	return d.runnables
}

// Close unregisters the adapters added by the daemon and closes all buses.
func (d *Daemon) Close() error {
	var errs fx.AggregatedError
	for _, name := range d.adapters {
		errs.Add(d.Registry.Del(name))
	}
	d.adapters = nil
	for _, bus := range d.buses {
		errs.Add(bus.Close())
	}
	d.buses = nil
	return errs.Aggregate()
}

func (d *Daemon) runQueue(ctx context.Context) error {
	token := d.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("MQTT connect error: %w", err)
	}
	<-ctx.Done()
	d.Queue.Close()
	return ctx.Err()
}

// Handler returns the metrics HTTP handler.
func (d *Daemon) Handler() http.Handler {
	return promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{})
}

func (d *Daemon) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.Handler())
	server := &http.Server{Addr: d.Config.MetricsAddr, Handler: mux}
	glog.Infof("metrics on %s", d.Config.MetricsAddr)
	err := fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}
