// Package metrics exports register transfer outcomes to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/ttsp.go/pkg/transport"
)

// Observer implements transport.Observer.
type Observer struct {
	Transfers *prometheus.CounterVec
}

// NewObserver creates an Observer. It must be registered before use
// with a Registerer to be exported.
func NewObserver() *Observer {
	return &Observer{
		Transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ttsp",
			Name:      "transfers_total",
			Help:      "Register transactions by device, op and status.",
		}, []string{"device", "op", "status"}),
	}
}

// Register registers the collectors.
func (o *Observer) Register(reg prometheus.Registerer) error {
	return reg.Register(o.Transfers)
}

// For returns a transport.Observer labeled with the device.
func (o *Observer) For(device string) transport.Observer {
	return &deviceObserver{parent: o, device: device}
}

type deviceObserver struct {
	parent *Observer
	device string
}

func (d *deviceObserver) ObserveTransfer(op transport.Op, status transport.Status) {
	d.parent.Transfers.WithLabelValues(d.device, op.String(), status.String()).Inc()
}
