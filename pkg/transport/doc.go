// Package transport implements the TTSP register access protocol over SPI.
package transport

// Every register operation is one or two SPI transactions. Each
// transaction starts with a header which is clocked out while the
// peripheral clocks back a response header of the same length.
// Byte 0 of the response header is the sync acknowledgment. If it doesn't
// match SyncAck, the peripheral didn't accept the frame, which is normal
// while it is booting, and the caller is expected to retry.
//
// Write transaction:
//
//   [op|a8, addr] [data...]
//
// Read is done in two transactions, the first one sets the register
// address using a write header without data:
//
//   [op|a8, addr]
//   [rd] [data...]
//
// Producer: host controller
// Consumer: TTSP gen4 touch controller
