package sst25v_test

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/gentam/sst25v"
	"github.com/gentam/sst25v/flashtest"
)

// newTestFlash wires a driver to an emulated device. Protocol delays
// are elided so polling loops run at full speed.
func newTestFlash(t *testing.T, devCfg flashtest.Config, cfg sst25v.Config) (*sst25v.Flash, *flashtest.Device) {
	t.Helper()

	dev := flashtest.New(devCfg)
	cfg.CS = dev.CS
	cfg.SCK = dev.SCK
	cfg.SI = dev.SI
	cfg.SO = dev.SO
	if cfg.Sleep == nil {
		cfg.Sleep = func(time.Duration) {}
	}

	f, err := sst25v.New(cfg)
	require.NoError(t, err)
	require.NoError(t, f.Init())
	return f, dev
}

func TestNewRequiresPins(t *testing.T) {
	dev := flashtest.New(flashtest.Config{Capacity: 1 << 10})
	full := func() sst25v.Config {
		return sst25v.Config{CS: dev.CS, SCK: dev.SCK, SI: dev.SI, SO: dev.SO}
	}

	tests := []struct {
		name  string
		strip func(*sst25v.Config)
	}{
		{"CS", func(c *sst25v.Config) { c.CS = nil }},
		{"SCK", func(c *sst25v.Config) { c.SCK = nil }},
		{"SI", func(c *sst25v.Config) { c.SI = nil }},
		{"SO", func(c *sst25v.Config) { c.SO = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full()
			tt.strip(&cfg)
			_, err := sst25v.New(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.name+" pin")
		})
	}
}

func TestNewPartDefaults(t *testing.T) {
	dev := flashtest.New(flashtest.Config{Capacity: 1 << 10})
	cfg := sst25v.Config{CS: dev.CS, SCK: dev.SCK, SI: dev.SI, SO: dev.SO}

	f, err := sst25v.New(cfg)
	require.NoError(t, err)
	assert.Equal(t, sst25v.SST25VF032B, f.Part())

	cfg.Part = sst25v.Part{Name: "bogus"}
	_, err = sst25v.New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")
}

// TestInitIdlesBus verifies the reset state after Init: chip
// deselected, clock parked low.
func TestInitIdlesBus(t *testing.T) {
	_, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	assert.False(t, dev.Selected())
	assert.Equal(t, gpio.High, dev.CS.Read())
	assert.Equal(t, gpio.Low, dev.SCK.Read())
}

// TestWriteEnableDisable checks that the single-opcode commands reach
// the device intact, which also pins down the MSB-first bit order.
func TestWriteEnableDisable(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.WriteEnable())
	assert.True(t, sst25v.StatusRegister(dev.Status()).WriteEnabled())

	require.NoError(t, f.WriteDisable())
	assert.False(t, sst25v.StatusRegister(dev.Status()).WriteEnabled())
	assert.False(t, dev.Selected())
}

func TestReadStatusRegister(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	sr, err := f.ReadStatusRegister()
	require.NoError(t, err)
	assert.False(t, sr.Busy())
	assert.False(t, sr.WriteEnabled())

	require.NoError(t, f.WriteEnable())
	sr, err = f.ReadStatusRegister()
	require.NoError(t, err)
	assert.True(t, sr.WriteEnabled())

	require.NoError(t, f.WriteDisable())
}

// TestBusIdleAfterOperations runs every transaction-shaped operation
// and checks each one deselects the chip and parks the clock low.
func TestBusIdleAfterOperations(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})
	buf := make([]byte, 4)

	ops := []struct {
		name string
		call func() error
	}{
		{"ReadStatusRegister", func() error { _, err := f.ReadStatusRegister(); return err }},
		{"WriteEnable", f.WriteEnable},
		{"WriteDisable", f.WriteDisable},
		{"ReadBlock", func() error { return f.ReadBlock(0, buf) }},
		{"ProgramByte", func() error { return f.ProgramByte(0, 0xA5) }},
		{"WaitUntilReady after program", f.WaitUntilReady},
		{"EraseBlock", func() error { return f.EraseBlock(0) }},
		{"WaitUntilReady after erase", f.WaitUntilReady},
	}
	for _, op := range ops {
		require.NoError(t, op.call(), op.name)
		assert.False(t, dev.Selected(), "%s left the chip selected", op.name)
		assert.True(t, dev.ClockLow(), "%s left the clock high", op.name)
	}
}

// TestReadBlock preloads the array out of band and reads it back over
// the wire, covering the 24-bit address framing.
func TestReadBlock(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x55}
	dev.SetBytes(0x001234, want)

	buf := make([]byte, len(want))
	require.NoError(t, f.ReadBlock(0x001234, buf))
	assert.Equal(t, want, buf)
}

// TestEraseWriteReadSequence is the canonical usage sequence: erase a
// block, program a few bytes, wait, read them back.
func TestEraseWriteReadSequence(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.EraseBlock(0x000000))
	require.NoError(t, f.WaitUntilReady())

	data := []byte{0x12, 0x34, 0x56}
	require.NoError(t, f.WriteBlock(0x000000, data))
	require.NoError(t, f.WaitUntilReady())

	buf := make([]byte, len(data))
	require.NoError(t, f.ReadBlock(0x000000, buf))
	assert.Equal(t, data, buf)
}

// TestWriteBlockSpansBlocks programs a run that crosses an erase-block
// boundary and reads it back in one piece.
func TestWriteBlockSpansBlocks(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.EraseBlock(0))
	require.NoError(t, f.WaitUntilReady())
	require.NoError(t, f.EraseBlock(256))
	require.NoError(t, f.WaitUntilReady())

	data := make([]byte, 100)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, f.WriteBlock(200, data))

	buf := make([]byte, len(data))
	require.NoError(t, f.ReadBlock(200, buf))
	assert.Equal(t, data, buf)
}

// TestProgramByte programs one byte into an erased cell and confirms
// the commit through the status register and a read back.
func TestProgramByte(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.ProgramByte(0x20, 0x5A))
	assert.True(t, dev.Busy(), "program cycle in progress after return")

	require.NoError(t, f.WaitUntilReady())
	assert.False(t, sst25v.StatusRegister(dev.Status()).WriteEnabled(), "latch clears on commit")

	buf := make([]byte, 1)
	require.NoError(t, f.ReadBlock(0x20, buf))
	assert.Equal(t, byte(0x5A), buf[0])
}

// TestProgramOnlyClearsBits checks NOR semantics: programming can only
// clear bits, so overprogramming ANDs into the cell.
func TestProgramOnlyClearsBits(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.ProgramByte(0x10, 0xCC))
	require.NoError(t, f.WaitUntilReady())
	require.NoError(t, f.ProgramByte(0x10, 0xAA))
	require.NoError(t, f.WaitUntilReady())

	buf := make([]byte, 1)
	require.NoError(t, f.ReadBlock(0x10, buf))
	assert.Equal(t, byte(0xCC&0xAA), buf[0])
}

// TestEraseBlockAlignment erases by an address in the middle of a
// block and checks the whole aligned block reads 0xFF while the
// neighboring bytes survive.
func TestEraseBlockAlignment(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	dev.SetBytes(255, []byte{0x11})
	dev.SetBytes(256, bytes.Repeat([]byte{0x22}, 256))
	dev.SetBytes(512, []byte{0x33})

	require.NoError(t, f.EraseBlock(300))
	require.NoError(t, f.WaitUntilReady())

	buf := make([]byte, 256)
	require.NoError(t, f.ReadBlock(256, buf))
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 256), buf)
	assert.Equal(t, []byte{0x11}, dev.Bytes(255, 1))
	assert.Equal(t, []byte{0x33}, dev.Bytes(512, 1))
}

// TestEraseBlockReturnsWhileBusy pins down the erase contract: the
// call returns as soon as the command is issued, and the caller is
// responsible for waiting.
func TestEraseBlockReturnsWhileBusy(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{ErasePolls: 8}, sst25v.Config{})

	require.NoError(t, f.EraseBlock(0))
	assert.True(t, dev.Busy(), "erase must return before the device is ready")

	require.NoError(t, f.WaitUntilReady())
	assert.False(t, dev.Busy())
}

// TestWriteBlockLeavesDeviceReady pins down the opposite contract for
// programming: WriteBlock polls out every byte before returning.
func TestWriteBlockLeavesDeviceReady(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{ProgramPolls: 8}, sst25v.Config{})

	require.NoError(t, f.WriteBlock(0, []byte{1, 2, 3}))
	assert.False(t, dev.Busy())
	assert.False(t, sst25v.StatusRegister(dev.Status()).WriteEnabled())
}

// TestBusyWindowDuringProgram observes BUSY through the status
// register strictly between issuing a program and its completion.
func TestBusyWindowDuringProgram(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{ProgramPolls: 6}, sst25v.Config{})

	sr, err := f.ReadStatusRegister()
	require.NoError(t, err)
	assert.False(t, sr.Busy(), "idle before programming")

	require.NoError(t, f.ProgramByte(0, 0x42))
	assert.True(t, dev.Busy())
	sr, err = f.ReadStatusRegister()
	require.NoError(t, err)
	assert.True(t, sr.Busy(), "program cycle in progress")

	require.NoError(t, f.WaitUntilReady())
	sr, err = f.ReadStatusRegister()
	require.NoError(t, err)
	assert.False(t, sr.Busy(), "ready once the cycle completes")
	assert.Equal(t, []byte{0x42}, dev.Bytes(0, 1))
}

func TestWaitUntilReadyTimeout(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{StuckBusy: true}, sst25v.Config{PollBudget: 32})

	require.NoError(t, f.EraseBlock(0))
	err := f.WaitUntilReady()
	require.ErrorIs(t, err, sst25v.ErrTimeout)

	// The bus must come back to idle even on the error path.
	assert.False(t, dev.Selected())
	assert.True(t, dev.ClockLow())
}

func TestWriteBlockTimeout(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{StuckBusy: true}, sst25v.Config{PollBudget: 8})

	err := f.WriteBlock(0, []byte{0x01})
	require.ErrorIs(t, err, sst25v.ErrTimeout)
}

// TestAddressValidation exercises the bounds check of every
// address-taking operation against a small part.
func TestAddressValidation(t *testing.T) {
	part := sst25v.SST25VF010A
	f, _ := newTestFlash(t, flashtest.Config{Capacity: part.Capacity}, sst25v.Config{Part: part})
	buf := make([]byte, 16)

	tests := []struct {
		name string
		call func() error
		addr uint32
		size int
	}{
		{"read at capacity", func() error { return f.ReadBlock(part.Capacity, buf) }, part.Capacity, 16},
		{"read crossing end", func() error { return f.ReadBlock(part.Capacity-8, buf) }, part.Capacity - 8, 16},
		{"program byte beyond", func() error { return f.ProgramByte(part.Capacity+5, 0) }, part.Capacity + 5, 1},
		{"write block crossing end", func() error { return f.WriteBlock(part.Capacity-4, buf) }, part.Capacity - 4, 16},
		{"erase beyond", func() error { return f.EraseBlock(1 << 24) }, 1 << 24, 1},
		{"stream beyond", func() error { return f.StartContinuousRead(part.Capacity) }, part.Capacity, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var addrErr *sst25v.AddressError
			require.ErrorAs(t, err, &addrErr)
			assert.Equal(t, tt.addr, addrErr.Addr)
			assert.Equal(t, tt.size, addrErr.Size)
			assert.Equal(t, part.Capacity, addrErr.Capacity)
		})
	}
}

func TestAddressEdges(t *testing.T) {
	part := sst25v.SST25VF010A
	f, _ := newTestFlash(t, flashtest.Config{Capacity: part.Capacity}, sst25v.Config{Part: part})

	buf := make([]byte, 16)
	assert.NoError(t, f.ReadBlock(part.Capacity-uint32(len(buf)), buf))
	assert.NoError(t, f.ProgramByte(part.Capacity-1, 0xEE))
	assert.NoError(t, f.WaitUntilReady())
}

// TestContinuousRead walks a stream across the end of the array and
// checks the bus stays dedicated to the stream until it is closed.
func TestContinuousRead(t *testing.T) {
	part := sst25v.Part{Name: "test1k", Capacity: 1 << 10, ByteProgram: 10 * time.Microsecond, BlockErase: 25 * time.Millisecond}
	f, dev := newTestFlash(t, flashtest.Config{Capacity: part.Capacity}, sst25v.Config{Part: part})

	dev.SetBytes(0, []byte{0x10, 0x20})
	dev.SetBytes(part.Capacity-2, []byte{0xAB, 0xCD})

	require.NoError(t, f.StartContinuousRead(part.Capacity-2))
	assert.True(t, dev.Selected())

	b, err := f.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)

	buf := make([]byte, 3)
	require.NoError(t, f.ReadBytes(buf))
	assert.Equal(t, []byte{0xCD, 0x10, 0x20}, buf, "stream wraps at the end of the array")

	// Everything else is rejected while the stream is open.
	assert.ErrorIs(t, f.StartContinuousRead(0), sst25v.ErrReadActive)
	_, err = f.ReadStatusRegister()
	assert.ErrorIs(t, err, sst25v.ErrReadActive)
	assert.ErrorIs(t, f.ProgramByte(0, 1), sst25v.ErrReadActive)
	assert.ErrorIs(t, f.EraseBlock(0), sst25v.ErrReadActive)
	assert.ErrorIs(t, f.WaitUntilReady(), sst25v.ErrReadActive)

	require.NoError(t, f.EndContinuousRead())
	assert.False(t, dev.Selected())

	_, err = f.ReadByte()
	assert.ErrorIs(t, err, sst25v.ErrNoReadActive)
	assert.ErrorIs(t, f.EndContinuousRead(), sst25v.ErrNoReadActive)

	// Normal operation resumes after the stream closes.
	sr, err := f.ReadStatusRegister()
	require.NoError(t, err)
	assert.False(t, sr.Busy())
}

func TestDisableReleasesLines(t *testing.T) {
	f, dev := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.Disable())
	for _, p := range []*flashtest.Pin{dev.CS, dev.SCK, dev.SI, dev.SO} {
		assert.Equal(t, "In", p.Function(), p.Name())
	}
	require.NoError(t, f.Disable(), "disable is idempotent")

	// The bus can be claimed again after a release.
	require.NoError(t, f.Init())
	require.NoError(t, f.WriteEnable())
	assert.True(t, sst25v.StatusRegister(dev.Status()).WriteEnabled())
	require.NoError(t, f.WriteDisable())
}

func TestDisableAbandonsContinuousRead(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.StartContinuousRead(0))
	require.NoError(t, f.Disable())
	require.NoError(t, f.Init())

	buf := make([]byte, 2)
	require.NoError(t, f.ReadBlock(0, buf), "stream state must not survive a release")
}

func TestWriteStatusRegister(t *testing.T) {
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{})

	require.NoError(t, f.WriteStatusRegister(0x0C)) // BP1|BP0
	sr, err := f.ReadStatusRegister()
	require.NoError(t, err)
	assert.True(t, sr.BlockProtect1())
	assert.True(t, sr.BlockProtect0())
	assert.False(t, sr.WriteEnabled(), "latch cleared after the write")

	// BUSY and WEL are not writable; a second write replaces the BP bits.
	require.NoError(t, f.WriteStatusRegister(0x03))
	sr, err = f.ReadStatusRegister()
	require.NoError(t, err)
	assert.False(t, sr.Busy())
	assert.False(t, sr.WriteEnabled())
	assert.False(t, sr.BlockProtect0())
}

func TestStatusRegisterString(t *testing.T) {
	tests := []struct {
		sr   sst25v.StatusRegister
		want string
	}{
		{0x00, "00000000"},
		{0x01, "00000001 BUSY"},
		{0x02, "00000010 WEL"},
		{0x9C, "10011100 BPL,BP2,BP1,BP0"},
		{0x43, "01000011 AAI,WEL,BUSY"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.sr.String())
	}
}

// TestDebugLogging runs the main operations with a debug logger wired
// in, covering the optional logging paths.
func TestDebugLogging(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f, _ := newTestFlash(t, flashtest.Config{}, sst25v.Config{Logger: logger})

	require.NoError(t, f.EraseBlock(0))
	require.NoError(t, f.WaitUntilReady())
	require.NoError(t, f.WriteBlock(0, []byte{0x01, 0x02}))
	require.NoError(t, f.Disable())
}
