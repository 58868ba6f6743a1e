package sst25v

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
)

// chipSelect begins a transaction: the clock is forced to its idle level
// before CE# falls so the device sees a clean mode-0 entry, then the bus
// settles for SelectSettle.
func (f *Flash) chipSelect() error {
	if err := f.sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	if err := f.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("select: %w", err)
	}
	f.sleep(f.selectSettle)
	return nil
}

// chipDeselect ends a transaction and returns the bus to idle: CE# high,
// clock low, settle. Safe to call regardless of what preceded it.
func (f *Flash) chipDeselect() error {
	if err := f.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("deselect: %w", err)
	}
	if err := f.sck.Out(gpio.Low); err != nil {
		return fmt.Errorf("clock low: %w", err)
	}
	f.sleep(f.selectSettle)
	return nil
}

// transact wraps a command sequence with chip select assertion.
func (f *Flash) transact(fn func() error) (err error) {
	if err = f.chipSelect(); err != nil {
		return err
	}
	defer func() {
		if csErr := f.chipDeselect(); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = fn()
	return
}

// sendByte shifts b out MSB first. Each bit is presented on SI while the
// clock is low and latched by the device on the rising edge.
func (f *Flash) sendByte(b byte) error {
	for i := 7; i >= 0; i-- {
		if err := f.si.Out(gpio.Level(b&(1<<i) != 0)); err != nil {
			return fmt.Errorf("data out: %w", err)
		}
		if err := f.sck.Out(gpio.High); err != nil {
			return fmt.Errorf("clock high: %w", err)
		}
		f.sleep(f.halfPeriod)
		if err := f.sck.Out(gpio.Low); err != nil {
			return fmt.Errorf("clock low: %w", err)
		}
		f.sleep(f.halfPeriod)
	}
	return nil
}

// receiveByte shifts in one byte MSB first, sampling SO while the clock
// is high. The clock must be low on entry, which holds after chipSelect
// and after any completed byte transfer.
func (f *Flash) receiveByte() (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		if err := f.sck.Out(gpio.High); err != nil {
			return 0, fmt.Errorf("clock high: %w", err)
		}
		f.sleep(f.halfPeriod)
		b <<= 1
		if f.so.Read() == gpio.High {
			b |= 1
		}
		if err := f.sck.Out(gpio.Low); err != nil {
			return 0, fmt.Errorf("clock low: %w", err)
		}
		f.sleep(f.halfPeriod)
	}
	return b, nil
}

// receiveBytes fills the caller's buffer with consecutive bytes.
func (f *Flash) receiveBytes(buf []byte) error {
	for i := range buf {
		b, err := f.receiveByte()
		if err != nil {
			return err
		}
		buf[i] = b
	}
	return nil
}

// sendAddr shifts out a 24-bit address, most significant byte first.
func (f *Flash) sendAddr(addr uint32) error {
	if err := f.sendByte(byte(addr >> 16)); err != nil {
		return err
	}
	if err := f.sendByte(byte(addr >> 8)); err != nil {
		return err
	}
	return f.sendByte(byte(addr))
}
