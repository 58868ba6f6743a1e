package sst25v

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout indicates the device stayed busy past the configured
	// poll budget. The bus is returned to its idle state before the
	// error is reported; retrying the interrupted operation is safe.
	ErrTimeout = errors.New("timeout waiting for flash ready")

	// ErrReadActive is returned by every operation that would disturb
	// an open continuous read. Call EndContinuousRead first.
	ErrReadActive = errors.New("continuous read in progress")

	// ErrNoReadActive is returned by ReadByte, ReadBytes and
	// EndContinuousRead when no continuous read has been started.
	ErrNoReadActive = errors.New("continuous read not started")
)

// AddressError indicates that an access falls outside the device's
// addressable range.
type AddressError struct {
	Addr     uint32 // first byte of the access
	Size     int    // length of the access in bytes
	Capacity uint32 // device capacity in bytes
}

func (e *AddressError) Error() string {
	if e.Size > 1 {
		return fmt.Sprintf("address range 0x%06X-0x%06X is out of range: device capacity is %d bytes",
			e.Addr, uint64(e.Addr)+uint64(e.Size)-1, e.Capacity)
	}
	return fmt.Sprintf("address 0x%06X is out of range: device capacity is %d bytes",
		e.Addr, e.Capacity)
}
