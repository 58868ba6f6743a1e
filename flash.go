package sst25v

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Flash drives one SST25V-family serial flash over four bit-banged GPIO
// lines. Operations are fully synchronous and not safe for concurrent
// use: the driver owns the bus from Init until Disable, and callers must
// serialize access themselves.
type Flash struct {
	cs  gpio.PinIO
	sck gpio.PinIO
	si  gpio.PinIO
	so  gpio.PinIO

	part         Part
	halfPeriod   time.Duration
	selectSettle time.Duration
	pollBudget   int
	sleep        func(time.Duration)
	log          *slog.Logger

	// inRead marks an open continuous read, the one sanctioned state in
	// which the chip stays selected across method boundaries.
	inRead bool
}

// Device operation instructions
// [SST25VF032B|Table 5: Device Operation Instructions]:
const (
	flashCmdRead                = 0x03
	flashCmdByteProgram         = 0x02
	flashCmdBlockErase          = 0xD8
	flashCmdReadStatusRegister  = 0x05 // RDSR
	flashCmdWriteStatusRegister = 0x01 // WRSR
	flashCmdWriteEnable         = 0x06 // WREN
	flashCmdWriteDisable        = 0x04 // WRDI
)

// Init claims the bus: CE# is driven high, the clock and the device's
// serial input low, and the device's serial output becomes an input.
// Must be called before any other operation, and again after Disable to
// take the bus back.
func (f *Flash) Init() error {
	if err := f.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("deselect: %w", err)
	}
	if err := f.sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	if err := f.si.Out(gpio.Low); err != nil {
		return fmt.Errorf("data out: %w", err)
	}
	if err := f.so.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("data in: %w", err)
	}
	f.inRead = false
	f.sleep(f.selectSettle)
	if f.log != nil {
		f.log.Debug("bus initialized", "part", f.part.Name)
	}
	return nil
}

// Disable releases all four lines to high-impedance inputs so another
// controller may drive the bus. Any open continuous read is abandoned.
// Idempotent; the driver must be re-initialized with Init before further
// use.
func (f *Flash) Disable() error {
	f.inRead = false
	for _, p := range []gpio.PinIO{f.cs, f.sck, f.si, f.so} {
		if err := p.In(gpio.Float, gpio.NoEdge); err != nil {
			return fmt.Errorf("release %s: %w", p.Name(), err)
		}
	}
	if f.log != nil {
		f.log.Debug("bus released")
	}
	return nil
}

// Part returns the configured family member.
func (f *Flash) Part() Part { return f.part }

// checkRange validates an n-byte access starting at addr against the
// configured part's capacity.
func (f *Flash) checkRange(addr uint32, n int) error {
	if addr >= f.part.Capacity || n > int(f.part.Capacity-addr) {
		return &AddressError{Addr: addr, Size: n, Capacity: f.part.Capacity}
	}
	return nil
}

// ReadStatusRegister reads the device status byte.
func (f *Flash) ReadStatusRegister() (StatusRegister, error) {
	if f.inRead {
		return 0, ErrReadActive
	}
	var sr StatusRegister
	err := f.transact(func() error {
		if err := f.sendByte(flashCmdReadStatusRegister); err != nil {
			return err
		}
		b, err := f.receiveByte()
		sr = StatusRegister(b)
		return err
	})
	return sr, err
}

// WaitUntilReady blocks until a pending program or erase completes.
//
// After the RDSR opcode the device holds the ready/busy state on its
// serial output without further clocking, so the wait samples the line
// directly instead of shifting full status bytes: high means busy, low
// means ready [SST25VF032B|Hardware End-of-Write Detection]. Once ready,
// one full byte is clocked out and discarded so the transaction ends at
// a byte boundary. Returns ErrTimeout when the device stays busy past
// PollBudget samples; the bus is deselected and idle either way.
func (f *Flash) WaitUntilReady() error {
	if f.inRead {
		return ErrReadActive
	}
	err := f.transact(func() error {
		if err := f.sendByte(flashCmdReadStatusRegister); err != nil {
			return err
		}
		for i := 0; i < f.pollBudget; i++ {
			if f.so.Read() == gpio.Low {
				_, err := f.receiveByte()
				return err
			}
			f.sleep(f.halfPeriod)
		}
		return ErrTimeout
	})
	if errors.Is(err, ErrTimeout) && f.log != nil {
		f.log.Warn("flash stuck busy", "pollBudget", f.pollBudget)
	}
	return err
}

// pollReady rereads the status register until the busy bit clears,
// bounded by PollBudget.
func (f *Flash) pollReady() error {
	for i := 0; i < f.pollBudget; i++ {
		sr, err := f.ReadStatusRegister()
		if err != nil {
			return err
		}
		if !sr.Busy() {
			return nil
		}
	}
	if f.log != nil {
		f.log.Warn("flash stuck busy", "pollBudget", f.pollBudget)
	}
	return ErrTimeout
}

// WriteEnable sets the device's write-enable latch. Program and erase
// commands are ignored by the device unless the latch is set; the
// device clears it again after each completed operation.
func (f *Flash) WriteEnable() error {
	if f.inRead {
		return ErrReadActive
	}
	return f.transact(func() error {
		return f.sendByte(flashCmdWriteEnable)
	})
}

// WriteDisable clears the device's write-enable latch.
func (f *Flash) WriteDisable() error {
	if f.inRead {
		return ErrReadActive
	}
	return f.transact(func() error {
		return f.sendByte(flashCmdWriteDisable)
	})
}

// WriteStatusRegister writes the block-protection bits of the status
// register. Only BP0-BP3 and BPL are writable; BUSY, WEL and AAI are
// controlled by the device.
func (f *Flash) WriteStatusRegister(sr StatusRegister) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.transact(func() error {
		if err := f.sendByte(flashCmdWriteStatusRegister); err != nil {
			return err
		}
		return f.sendByte(byte(sr))
	}); err != nil {
		return err
	}
	return f.WriteDisable()
}

// ReadBlock fills buf with len(buf) bytes starting at addr.
func (f *Flash) ReadBlock(addr uint32, buf []byte) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.checkRange(addr, len(buf)); err != nil {
		return err
	}
	return f.transact(func() error {
		if err := f.sendByte(flashCmdRead); err != nil {
			return err
		}
		if err := f.sendAddr(addr); err != nil {
			return err
		}
		return f.receiveBytes(buf)
	})
}

// ProgramByte programs a single byte. Programming only clears bits:
// the cell ends up holding the AND of value and its previous contents,
// so the target must have been erased for the write to take full
// effect. The driver does not verify this.
func (f *Flash) ProgramByte(addr uint32, value byte) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.checkRange(addr, 1); err != nil {
		return err
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	return f.transact(func() error {
		if err := f.sendByte(flashCmdByteProgram); err != nil {
			return err
		}
		if err := f.sendAddr(addr); err != nil {
			return err
		}
		return f.sendByte(value)
	})
}

// WriteBlock programs data starting at addr one byte at a time: each
// byte settles for the part's byte-program time and its completion is
// confirmed via the status register before the next begins, so the
// device is non-busy when the call returns. A final WriteDisable
// clears the latch.
//
// There is no page-boundary bookkeeping: data may start at any address
// and span erase blocks.
func (f *Flash) WriteBlock(addr uint32, data []byte) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.checkRange(addr, len(data)); err != nil {
		return err
	}
	if f.log != nil {
		f.log.Debug("write block", "addr", fmt.Sprintf("0x%06X", addr), "size", len(data))
	}
	for i, b := range data {
		if err := f.ProgramByte(addr+uint32(i), b); err != nil {
			return err
		}
		f.sleep(f.part.ByteProgram)
		if err := f.pollReady(); err != nil {
			return err
		}
	}
	return f.WriteDisable()
}

// EraseBlock erases the aligned block containing addr back to the 0xFF
// erased state. The call returns as soon as the command is issued,
// while the device is still busy: callers must WaitUntilReady (or poll
// ReadStatusRegister) before the next dependent operation. Note the
// asymmetry with WriteBlock, which confirms completion internally.
func (f *Flash) EraseBlock(addr uint32) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.checkRange(addr, 1); err != nil {
		return err
	}
	if f.log != nil {
		f.log.Debug("erase block", "addr", fmt.Sprintf("0x%06X", addr))
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	if err := f.transact(func() error {
		if err := f.sendByte(flashCmdBlockErase); err != nil {
			return err
		}
		return f.sendAddr(addr)
	}); err != nil {
		return err
	}
	return f.WriteDisable()
}

// StartContinuousRead begins a streaming read at addr. The chip stays
// selected between calls and ReadByte/ReadBytes shift out consecutive
// bytes, the device incrementing the address internally and wrapping at
// the end of the array. Every other operation fails with ErrReadActive
// until EndContinuousRead returns the bus to idle.
func (f *Flash) StartContinuousRead(addr uint32) error {
	if f.inRead {
		return ErrReadActive
	}
	if err := f.checkRange(addr, 1); err != nil {
		return err
	}
	if err := f.chipSelect(); err != nil {
		return err
	}
	if err := f.sendByte(flashCmdRead); err != nil {
		f.chipDeselect()
		return err
	}
	if err := f.sendAddr(addr); err != nil {
		f.chipDeselect()
		return err
	}
	f.inRead = true
	return nil
}

// ReadByte shifts out the next byte of an open continuous read. A
// Flash with an open stream satisfies io.ByteReader.
func (f *Flash) ReadByte() (byte, error) {
	if !f.inRead {
		return 0, ErrNoReadActive
	}
	return f.receiveByte()
}

var _ io.ByteReader = (*Flash)(nil)

// ReadBytes fills buf with the next len(buf) bytes of an open
// continuous read.
func (f *Flash) ReadBytes(buf []byte) error {
	if !f.inRead {
		return ErrNoReadActive
	}
	return f.receiveBytes(buf)
}

// EndContinuousRead deselects the chip and closes the streaming state.
func (f *Flash) EndContinuousRead() error {
	if !f.inRead {
		return ErrNoReadActive
	}
	f.inRead = false
	return f.chipDeselect()
}

// StatusRegister is the device status byte
// [SST25VF032B|Table 2: Software Status Register]:
//
//	Bit | Function
//	----+------------------------------------------------
//	7   | BPL: BP3-BP0 are read-only when set
//	6   | AAI: Auto Address Increment programming active
//	5:2 | BP3-BP0: block write protection
//	1   | WEL: write-enable latch
//	0   | BUSY: internal write operation in progress
type StatusRegister byte

func (sr StatusRegister) BlockProtectLocked() bool   { return sr&(1<<7) != 0 }
func (sr StatusRegister) AutoAddressIncrement() bool { return sr&(1<<6) != 0 }
func (sr StatusRegister) BlockProtect3() bool        { return sr&(1<<5) != 0 }
func (sr StatusRegister) BlockProtect2() bool        { return sr&(1<<4) != 0 }
func (sr StatusRegister) BlockProtect1() bool        { return sr&(1<<3) != 0 }
func (sr StatusRegister) BlockProtect0() bool        { return sr&(1<<2) != 0 }
func (sr StatusRegister) WriteEnabled() bool         { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool                 { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.BlockProtectLocked() {
		s = append(s, "BPL")
	}
	if sr.AutoAddressIncrement() {
		s = append(s, "AAI")
	}
	if sr.BlockProtect3() {
		s = append(s, "BP3")
	}
	if sr.BlockProtect2() {
		s = append(s, "BP2")
	}
	if sr.BlockProtect1() {
		s = append(s, "BP1")
	}
	if sr.BlockProtect0() {
		s = append(s, "BP0")
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
