// Package retry re-issues register operations while the peripheral
// advises a retry, e.g. during bootloader startup.
package retry

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	"github.com/robotalks/ttsp.go/pkg/adapter"
	"github.com/robotalks/ttsp.go/pkg/transport"
)

// Policy defines how many attempts are made and the delay in between.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Clock    clock.Clock
}

// DefaultPolicy is used when no policy is specified.
var DefaultPolicy = Policy{
	Attempts: 3,
	Delay:    20 * time.Millisecond,
}

func (p Policy) normalize() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	return p
}

// Do calls fn until it succeeds, fails with an error other than
// RetryAdvised or all attempts are used.
func Do(ctx context.Context, policy Policy, fn func() error) (err error) {
	policy = policy.normalize()
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !transport.IsRetryAdvised(err) {
			return
		}
		if attempt >= policy.Attempts {
			glog.V(3).Infof("giving up after %d attempts: %v", attempt, err)
			return
		}
		glog.V(3).Infof("attempt %d: %v, retry in %s", attempt, err, policy.Delay)
		timer := policy.Clock.Timer(policy.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Ops wraps adapter.Ops to retry both Read and Write.
type Ops struct {
	Ops     adapter.Ops
	Policy  Policy
	Context context.Context
}

// Wrap creates Ops with a background context.
func Wrap(ops adapter.Ops, policy Policy) *Ops {
	return &Ops{Ops: ops, Policy: policy, Context: context.Background()}
}

func (o *Ops) ctx() context.Context {
	if o.Context != nil {
		return o.Context
	}
	return context.Background()
}

// Read implements adapter.Ops.
func (o *Ops) Read(addr uint16, buf []byte) error {
	return Do(o.ctx(), o.Policy, func() error {
		return o.Ops.Read(addr, buf)
	})
}

// Write implements adapter.Ops.
func (o *Ops) Write(addr uint16, data []byte) error {
	return Do(o.ctx(), o.Policy, func() error {
		return o.Ops.Write(addr, data)
	})
}
