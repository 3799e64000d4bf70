// Package monitor polls register blocks and publishes the raw bytes.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	fx "github.com/robotalks/ttsp.go/pkg/framework"
	"github.com/robotalks/ttsp.go/pkg/transport"
)

// DefaultInterval is the poll interval if not specified.
const DefaultInterval = 100 * time.Millisecond

// Block is a range of registers read in one operation.
type Block struct {
	Name string `toml:"name" json:"name"`
	Addr uint16 `toml:"addr" json:"addr"`
	Len  int    `toml:"len" json:"len"`
}

// Validate checks the block can be read in one transaction.
func (b Block) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("block name required")
	}
	if b.Addr > transport.MaxRegister {
		return fmt.Errorf("block %q: register 0x%x out of range", b.Name, b.Addr)
	}
	if b.Len <= 0 || b.Len+transport.ReadHeaderLen > transport.MaxFrameSize {
		return fmt.Errorf("block %q: invalid length %d", b.Name, b.Len)
	}
	return nil
}

// Snapshot is the content of a Block at a certain time.
type Snapshot struct {
	Device string    `json:"device"`
	Block  string    `json:"block"`
	Addr   uint16    `json:"addr"`
	Time   time.Time `json:"time"`
	Data   []byte    `json:"data"`
}

// Publisher receives snapshots.
type Publisher interface {
	Publish(context.Context, *Snapshot) error
}

// PublishFunc is func type of Publisher.
type PublishFunc func(context.Context, *Snapshot) error

// Publish implements Publisher.
func (f PublishFunc) Publish(ctx context.Context, s *Snapshot) error {
	return f(ctx, s)
}

// Monitor polls Blocks from Ops periodically.
type Monitor struct {
	Device    string
	Ops       adapter.Ops
	Blocks    []Block
	Interval  time.Duration
	Publisher Publisher
	Clock     clock.Clock

	// Failures counts failed reads since start.
	Failures int
}

// Name implements framework.Named.
func (m *Monitor) Name() string {
	return "monitor:" + m.Device
}

func (m *Monitor) clock() clock.Clock {
	if m.Clock == nil {
		m.Clock = clock.New()
	}
	return m.Clock
}

// Poll reads all blocks once. A failed block doesn't stop the rest.
func (m *Monitor) Poll(ctx context.Context) error {
	var errs fx.AggregatedError
	for _, b := range m.Blocks {
		buf := make([]byte, b.Len)
		if err := m.Ops.Read(b.Addr, buf); err != nil {
			m.Failures++
			if transport.IsRetryAdvised(err) {
				glog.V(2).Infof("%s: block %q not ready: %v", m.Device, b.Name, err)
			} else {
				glog.Warningf("%s: read block %q error: %v", m.Device, b.Name, err)
			}
			errs.Add(fmt.Errorf("block %q: %w", b.Name, err))
			continue
		}
		if m.Publisher == nil {
			continue
		}
		snapshot := &Snapshot{
			Device: m.Device,
			Block:  b.Name,
			Addr:   b.Addr,
			Time:   m.clock().Now(),
			Data:   buf,
		}
		if err := m.Publisher.Publish(ctx, snapshot); err != nil {
			glog.Warningf("%s: publish block %q error: %v", m.Device, b.Name, err)
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// Run implements framework.Runnable.
func (m *Monitor) Run(ctx context.Context) error {
	for _, b := range m.Blocks {
		if err := b.Validate(); err != nil {
			return err
		}
	}
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := m.clock().Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Poll(ctx)
		}
	}
}
