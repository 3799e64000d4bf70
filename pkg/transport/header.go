package transport

import "fmt"

// Wire protocol constants.
const (
	OpWrite byte = 0x00 // r/~w
	OpRead  byte = 0x01
	A8Bit   byte = 0x02 // register address bit 8

	WriteHeaderLen = 2
	ReadHeaderLen  = 1
	MaxHeaderLen   = WriteHeaderLen

	// SyncAck is expected at offset 0 of every response header.
	SyncAck byte = 0x62
	// MaxFrameSize is the max header and payload size of a transaction.
	MaxFrameSize = 3 * 256
	// MaxRegister is the highest addressable register.
	MaxRegister = 511
)

// Op identifies the kind of a transaction.
type Op byte

// Transaction kinds.
const (
	Write Op = Op(OpWrite)
	Read  Op = Op(OpRead)
	// ReadAddr is the header-only write which sets the register
	// address of a following Read.
	ReadAddr Op = 0x80 | Write
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case Write:
		return "write"
	case Read:
		return "read"
	case ReadAddr:
		return "read_addr"
	}
	return fmt.Sprintf("op(%d)", byte(o))
}

// HeaderLen returns the header size of the op.
func (o Op) HeaderLen() int {
	if o == Read {
		return ReadHeaderLen
	}
	return WriteHeaderLen
}

// Header is the request header of a transaction.
type Header struct {
	b [MaxHeaderLen]byte
	n int
}

// WriteHeader builds the header of a write transaction.
func WriteHeader(addr uint16) Header {
	h := Header{n: WriteHeaderLen}
	h.b[0] = OpWrite
	if addr > 0xff {
		h.b[0] |= A8Bit
	}
	h.b[1] = byte(addr % 256)
	return h
}

// ReadHeader builds the header of a read transaction. The register
// address is not included and must be set by a preceding write header.
func ReadHeader() Header {
	h := Header{n: ReadHeaderLen}
	h.b[0] = OpRead
	return h
}

// Bytes returns the encoded header.
func (h Header) Bytes() []byte {
	return h.b[:h.n]
}

// Extended indicates the A8 bit is set.
func (h Header) Extended() bool {
	return h.n == WriteHeaderLen && h.b[0]&A8Bit != 0
}
