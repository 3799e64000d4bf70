package transport

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Segment is one part of a bus transaction.
// W only is transmit-only, R only is receive-only and both means
// simultaneous transmit and receive, in which case W and R must have the
// same length.
type Segment struct {
	W []byte
	R []byte
}

// Len returns the number of bytes clocked by the segment.
func (s Segment) Len() int {
	if len(s.W) > len(s.R) {
		return len(s.W)
	}
	return len(s.R)
}

// Exchanger performs one duplex transaction on the bus.
// All segments must be transferred as a single transaction
// (chip select held across segments).
type Exchanger interface {
	Exchange(segs []Segment) error
}

// ExchangeFunc is func type of Exchanger.
type ExchangeFunc func(segs []Segment) error

// Exchange implements Exchanger.
func (f ExchangeFunc) Exchange(segs []Segment) error {
	return f(segs)
}

// PowerHooks is called around each register operation, outside of
// the device lock, e.g. to keep the peripheral from idling.
type PowerHooks interface {
	Acquire()
	Release()
}

// Observer is notified with the outcome of every transaction.
type Observer interface {
	ObserveTransfer(op Op, status Status)
}

// AckPolicy decides how a bus error is combined with the sync ack.
type AckPolicy int

const (
	// AckAuthoritative treats the sync ack as the ground truth. A bus error
	// with a valid ack is a success. This is required during bootloader
	// startup where the bus may report errors while frames are accepted.
	AckAuthoritative AckPolicy = iota
	// StrictTransport fails with TransportError whenever the bus reports
	// an error, regardless of the ack.
	StrictTransport
)

// Transport provides register access to a single device.
type Transport struct {
	Name     string
	Power    PowerHooks
	Observer Observer
	Policy   AckPolicy

	bus  Exchanger
	lock sync.Mutex
}

// New creates a Transport on the bus.
func New(name string, bus Exchanger) *Transport {
	return &Transport{Name: name, bus: bus}
}

// Read implements adapter.Ops.
func (t *Transport) Read(addr uint16, buf []byte) error {
	return t.ReadBlock(addr, buf)
}

// Write implements adapter.Ops.
func (t *Transport) Write(addr uint16, data []byte) error {
	return t.WriteBlock(addr, data)
}

// WriteBlock writes data to registers starting at addr.
func (t *Transport) WriteBlock(addr uint16, data []byte) error {
	if p := t.Power; p != nil {
		p.Acquire()
		defer p.Release()
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.xfer(Write, addr, data)
}

// ReadBlock reads len(buf) bytes from registers starting at addr.
func (t *Transport) ReadBlock(addr uint16, buf []byte) error {
	if p := t.Power; p != nil {
		p.Acquire()
		defer p.Release()
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if err := t.check(Read, addr, buf); err != nil {
		t.observe(Read, err)
		return err
	}
	if err := t.xfer(ReadAddr, addr, nil); err != nil {
		return err
	}
	return t.xfer(Read, addr, buf)
}

func (t *Transport) observe(op Op, err error) {
	if o := t.Observer; o != nil {
		o.ObserveTransfer(op, StatusOf(err))
	}
}

// check validates a request before any bus activity.
func (t *Transport) check(op Op, addr uint16, buf []byte) error {
	if addr > MaxRegister {
		glog.V(4).Infof("%s: register 0x%x out of range", t.Name, addr)
		return fmt.Errorf("register 0x%x exceeds 0x%x: %w", addr, MaxRegister, ErrInvalidArgument)
	}
	if size := op.HeaderLen() + len(buf); size > MaxFrameSize {
		glog.V(4).Infof("%s: %s length+%d=%d is greater than max=%d",
			t.Name, op, op.HeaderLen(), size, MaxFrameSize)
		return fmt.Errorf("frame size %d exceeds %d: %w", size, MaxFrameSize, ErrInvalidArgument)
	}
	if op == Read && buf == nil {
		glog.Errorf("%s: no read buffer", t.Name)
		return fmt.Errorf("no read buffer: %w", ErrInvalidArgument)
	}
	return nil
}

func (t *Transport) xfer(op Op, addr uint16, buf []byte) (err error) {
	defer func() { t.observe(op, err) }()

	if err = t.check(op, addr, buf); err != nil {
		return err
	}

	var hdr Header
	segs := make([]Segment, 1, 2)
	switch op {
	case Write, ReadAddr:
		hdr = WriteHeader(addr)
		if len(buf) > 0 {
			segs = append(segs, Segment{W: buf})
		}
	case Read:
		hdr = ReadHeader()
		if len(buf) > 0 {
			segs = append(segs, Segment{R: buf})
		}
	default:
		return fmt.Errorf("bad op %d: %w", byte(op), ErrInvalidArgument)
	}
	resp := make([]byte, len(hdr.Bytes()))
	segs[0] = Segment{W: hdr.Bytes(), R: resp}

	busErr := t.bus.Exchange(segs)
	if busErr != nil {
		// the ack check below decides, a bad clock may fail both
		glog.V(4).Infof("%s: exchange error %v, len=%d, op=%s", t.Name, busErr, len(resp), op)
		if t.Policy == StrictTransport {
			glog.V(2).Infof("%s: %s 0x%03x failed: %v", t.Name, op, addr, busErr)
			return &TransportError{Err: busErr}
		}
	}

	if ack := resp[0]; ack != SyncAck {
		if glog.V(5) {
			glog.Infof("%s: %s hdr [% x] resp [% x] data [% x]", t.Name, op, hdr.Bytes(), resp, buf)
		}
		return &ackError{ack: ack, cause: busErr}
	}
	return nil
}
