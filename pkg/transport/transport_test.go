package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBus = errors.New("bus error")

type reply struct {
	ack  byte
	err  error
	data []byte
}

type fakeBus struct {
	lock     sync.Mutex
	replies  []reply
	calls    [][]Segment
	inflight int32
	overlap  int32
	delay    time.Duration
}

func (b *fakeBus) Exchange(segs []Segment) error {
	if atomic.AddInt32(&b.inflight, 1) > 1 {
		atomic.StoreInt32(&b.overlap, 1)
	}
	defer atomic.AddInt32(&b.inflight, -1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	recorded := make([]Segment, len(segs))
	for n, seg := range segs {
		if seg.W != nil {
			recorded[n].W = append([]byte{}, seg.W...)
		}
		if seg.R != nil {
			recorded[n].R = make([]byte, len(seg.R))
		}
	}
	b.calls = append(b.calls, recorded)

	r := reply{ack: SyncAck}
	if len(b.replies) > 0 {
		r, b.replies = b.replies[0], b.replies[1:]
	}
	segs[0].R[0] = r.ack
	if len(segs) > 1 && segs[1].R != nil {
		copy(segs[1].R, r.data)
	}
	return r.err
}

func (b *fakeBus) reply(replies ...reply) *fakeBus {
	b.replies = append(b.replies, replies...)
	return b
}

type countingHooks struct {
	acquired, released int
}

func (h *countingHooks) Acquire() { h.acquired++ }
func (h *countingHooks) Release() { h.released++ }

type recordingObserver struct {
	ops      []Op
	statuses []Status
}

func (o *recordingObserver) ObserveTransfer(op Op, status Status) {
	o.ops = append(o.ops, op)
	o.statuses = append(o.statuses, status)
}

func TestWriteBlock(t *testing.T) {
	bus := &fakeBus{}
	tr := New("test", bus)
	require.NoError(t, tr.WriteBlock(0x10, []byte{0xaa, 0xbb}))
	require.Len(t, bus.calls, 1)
	require.Equal(t, []Segment{
		{W: []byte{0x00, 0x10}, R: []byte{0, 0}},
		{W: []byte{0xaa, 0xbb}},
	}, bus.calls[0])
}

func TestWriteBlockExtended(t *testing.T) {
	bus := &fakeBus{}
	tr := New("test", bus)
	require.NoError(t, tr.WriteBlock(0x1ff, []byte{1}))
	require.Equal(t, []byte{0x02, 0xff}, bus.calls[0][0].W)
}

func TestWriteBlockNoData(t *testing.T) {
	bus := &fakeBus{}
	tr := New("test", bus)
	require.NoError(t, tr.WriteBlock(0x20, nil))
	require.Len(t, bus.calls[0], 1)
	require.Equal(t, []byte{0x00, 0x20}, bus.calls[0][0].W)
}

func TestReadBlock(t *testing.T) {
	bus := (&fakeBus{}).reply(
		reply{ack: SyncAck},
		reply{ack: SyncAck, data: []byte{1, 2, 3, 4}},
	)
	tr := New("test", bus)
	buf := make([]byte, 4)
	// [0x02,0x00] is the extended header of 0x100, 0x200 is out of range.
	require.NoError(t, tr.ReadBlock(0x100, buf))
	require.Equal(t, []byte{1, 2, 3, 4}, buf)
	require.Len(t, bus.calls, 2)
	require.Equal(t, []Segment{{W: []byte{0x02, 0x00}, R: []byte{0, 0}}}, bus.calls[0])
	require.Equal(t, []Segment{
		{W: []byte{0x01}, R: []byte{0}},
		{R: []byte{0, 0, 0, 0}},
	}, bus.calls[1])
}

func TestReadBlockShortCircuit(t *testing.T) {
	testCases := []struct {
		name   string
		first  reply
		status Status
	}{
		{"ack mismatch", reply{ack: 0xff}, StatusRetryAdvised},
		{"ack mismatch with bus error", reply{ack: 0x00, err: errBus}, StatusRetryAdvised},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := (&fakeBus{}).reply(tc.first)
			tr := New("test", bus)
			err := tr.ReadBlock(0x10, make([]byte, 2))
			require.Equal(t, tc.status, StatusOf(err))
			require.Len(t, bus.calls, 1)
		})
	}

	t.Run("strict transport error", func(t *testing.T) {
		bus := (&fakeBus{}).reply(reply{ack: SyncAck, err: errBus})
		tr := New("test", bus)
		tr.Policy = StrictTransport
		err := tr.ReadBlock(0x10, make([]byte, 2))
		require.Equal(t, StatusTransportError, StatusOf(err))
		require.True(t, errors.Is(err, errBus))
		require.Len(t, bus.calls, 1)
	})
}

func TestWriteBlockStrict(t *testing.T) {
	bus := (&fakeBus{}).reply(reply{ack: SyncAck, err: errBus})
	tr := New("test", bus)
	tr.Policy = StrictTransport
	err := tr.WriteBlock(0x10, []byte{1})
	require.Equal(t, StatusTransportError, StatusOf(err))
	require.True(t, errors.Is(err, errBus))
	require.Len(t, bus.calls, 1)
}

func TestReadBlockSecondPhase(t *testing.T) {
	bus := (&fakeBus{}).reply(reply{ack: SyncAck}, reply{ack: 0x00})
	tr := New("test", bus)
	err := tr.ReadBlock(0x10, make([]byte, 2))
	require.True(t, IsRetryAdvised(err))
	require.Len(t, bus.calls, 2)
}

func TestAckAuthoritative(t *testing.T) {
	for ack := 0; ack < 256; ack++ {
		for _, busErr := range []error{nil, errBus} {
			name := fmt.Sprintf("ack 0x%02x err %v", ack, busErr)
			bus := (&fakeBus{}).reply(reply{ack: byte(ack), err: busErr})
			err := New("test", bus).WriteBlock(0x10, []byte{1})
			if byte(ack) == SyncAck {
				require.NoError(t, err, name)
			} else {
				require.Equal(t, StatusRetryAdvised, StatusOf(err), name)
				require.True(t, IsRetryAdvised(err), name)
			}
		}
	}
}

func TestRetryAdvisedKeepsBusError(t *testing.T) {
	bus := (&fakeBus{}).reply(reply{ack: 0, err: errBus})
	err := New("test", bus).WriteBlock(0, []byte{1})
	require.True(t, errors.Is(err, ErrRetryAdvised))
	require.True(t, errors.Is(err, errBus))
}

func TestInvalidArgument(t *testing.T) {
	testCases := []struct {
		name string
		call func(*Transport) error
	}{
		{"write oversize", func(tr *Transport) error {
			return tr.WriteBlock(0, make([]byte, MaxFrameSize-WriteHeaderLen+1))
		}},
		{"read oversize", func(tr *Transport) error {
			return tr.ReadBlock(0, make([]byte, MaxFrameSize-ReadHeaderLen+1))
		}},
		{"write address", func(tr *Transport) error {
			return tr.WriteBlock(MaxRegister+1, []byte{1})
		}},
		{"read address", func(tr *Transport) error {
			return tr.ReadBlock(0x400, make([]byte, 1))
		}},
		{"read no buffer", func(tr *Transport) error {
			return tr.ReadBlock(0, nil)
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus := &fakeBus{}
			err := tc.call(New("test", bus))
			require.True(t, errors.Is(err, ErrInvalidArgument))
			require.Equal(t, StatusInvalidArgument, StatusOf(err))
			require.Empty(t, bus.calls)
		})
	}
}

func TestMaxFrame(t *testing.T) {
	bus := &fakeBus{}
	tr := New("test", bus)
	require.NoError(t, tr.WriteBlock(0, make([]byte, MaxFrameSize-WriteHeaderLen)))
	require.NoError(t, tr.ReadBlock(0, make([]byte, MaxFrameSize-ReadHeaderLen)))
	require.Len(t, bus.calls, 3)
}

func TestPowerHooks(t *testing.T) {
	bus := (&fakeBus{}).reply(reply{ack: 0})
	hooks := &countingHooks{}
	tr := New("test", bus)
	tr.Power = hooks
	require.Error(t, tr.WriteBlock(0, []byte{1}))
	require.NoError(t, tr.ReadBlock(0, make([]byte, 1)))
	require.Error(t, tr.ReadBlock(0, nil))
	require.Equal(t, 3, hooks.acquired)
	require.Equal(t, 3, hooks.released)
}

func TestObserver(t *testing.T) {
	bus := (&fakeBus{}).reply(reply{ack: SyncAck}, reply{ack: 0})
	obs := &recordingObserver{}
	tr := New("test", bus)
	tr.Observer = obs
	require.Error(t, tr.ReadBlock(0, make([]byte, 1)))
	require.Error(t, tr.WriteBlock(0, make([]byte, MaxFrameSize)))
	require.Equal(t, []Op{ReadAddr, Read, Write}, obs.ops)
	require.Equal(t, []Status{StatusSuccess, StatusRetryAdvised, StatusInvalidArgument}, obs.statuses)
}

func TestSerialized(t *testing.T) {
	bus := &fakeBus{delay: time.Millisecond}
	tr := New("test", bus)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 10; n++ {
				if i%2 == 0 {
					assert.NoError(t, tr.WriteBlock(uint16(i), []byte{byte(n)}))
				} else {
					assert.NoError(t, tr.ReadBlock(uint16(i), make([]byte, 2)))
				}
			}
		}(i)
	}
	wg.Wait()
	require.Zero(t, atomic.LoadInt32(&bus.overlap))
	require.Len(t, bus.calls, 4*10+4*10*2)
}

func TestStatusOf(t *testing.T) {
	require.Equal(t, StatusSuccess, StatusOf(nil))
	require.Equal(t, StatusTransportError, StatusOf(&TransportError{Err: errBus}))
	require.Equal(t, StatusTransportError, StatusOf(errBus))
	require.Equal(t, StatusRetryAdvised, StatusOf(fmt.Errorf("wrapped: %w", ErrRetryAdvised)))
	require.Equal(t, "retry_advised", StatusRetryAdvised.String())
	require.Equal(t, "status(9)", Status(9).String())
}
