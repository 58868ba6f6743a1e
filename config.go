package sst25v

import (
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Defaults applied by New for Config fields left zero.
const (
	// DefaultClockHalfPeriod is the dwell on each clock level. The
	// SST25V read opcode 0x03 is specified up to 25MHz; 500ns per half
	// period keeps a bit-banged bus an order of magnitude below that
	// even before GPIO call overhead.
	DefaultClockHalfPeriod = 500 * time.Nanosecond

	// DefaultSelectSettle is the dwell after a chip-select transition
	// before any clocked activity.
	DefaultSelectSettle = time.Microsecond

	// DefaultPollBudget bounds busy polling. At the default clock rate
	// this covers the family's worst-case 25ms block erase with wide
	// margin.
	DefaultPollBudget = 1 << 20
)

// Config carries the pin assignment and timing for a Flash. Pin names
// follow the device's perspective: SI is the device's serial input
// (driven by the controller), SO its serial output (sampled by the
// controller).
type Config struct {
	CS  gpio.PinIO // chip enable, active low (CE#)
	SCK gpio.PinIO // serial clock, idles low
	SI  gpio.PinIO // serial data into the device
	SO  gpio.PinIO // serial data out of the device

	// Part selects the family member, which sets the capacity used for
	// address validation and the datasheet programming times. The zero
	// value selects SST25VF032B.
	Part Part

	// ClockHalfPeriod is the dwell on each clock level during bit
	// transfers. Zero selects DefaultClockHalfPeriod.
	ClockHalfPeriod time.Duration

	// SelectSettle is the dwell after chip-select transitions. Zero
	// selects DefaultSelectSettle.
	SelectSettle time.Duration

	// PollBudget is the maximum number of busy samples taken before a
	// wait gives up with ErrTimeout. Zero selects DefaultPollBudget.
	PollBudget int

	// Sleep replaces time.Sleep for all protocol delays when non-nil.
	// Tests substitute a no-op to run transfers at full speed.
	Sleep func(time.Duration)

	// Logger receives debug records for bus and block operations when
	// non-nil. The driver never logs otherwise.
	Logger *slog.Logger
}

// New validates cfg, applies defaults and returns a driver for the
// device behind the four pins. It does not touch the hardware; call
// Init to claim the bus.
func New(cfg Config) (*Flash, error) {
	for _, p := range []struct {
		name string
		pin  gpio.PinIO
	}{
		{"CS", cfg.CS},
		{"SCK", cfg.SCK},
		{"SI", cfg.SI},
		{"SO", cfg.SO},
	} {
		if p.pin == nil {
			return nil, fmt.Errorf("config: %s pin is required", p.name)
		}
	}

	part := cfg.Part
	if part == (Part{}) {
		part = SST25VF032B
	}
	if part.Capacity == 0 {
		return nil, fmt.Errorf("config: part %q has no capacity", part.Name)
	}

	f := &Flash{
		cs:           cfg.CS,
		sck:          cfg.SCK,
		si:           cfg.SI,
		so:           cfg.SO,
		part:         part,
		halfPeriod:   cfg.ClockHalfPeriod,
		selectSettle: cfg.SelectSettle,
		pollBudget:   cfg.PollBudget,
		sleep:        cfg.Sleep,
		log:          cfg.Logger,
	}
	if f.halfPeriod <= 0 {
		f.halfPeriod = DefaultClockHalfPeriod
	}
	if f.selectSettle <= 0 {
		f.selectSettle = DefaultSelectSettle
	}
	if f.pollBudget <= 0 {
		f.pollBudget = DefaultPollBudget
	}
	if f.sleep == nil {
		f.sleep = time.Sleep
	}
	return f, nil
}
