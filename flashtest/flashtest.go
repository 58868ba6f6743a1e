// Package flashtest emulates an SST25V serial flash behind four
// simulated GPIO lines, so driver and firmware logic can be exercised
// without hardware.
//
// The emulated device decodes commands exactly as the chip does: bits
// are sampled from SI on rising clock edges while selected, output is
// presented on SO at falling edges MSB first, and program, erase and
// latch commands take effect on the chip-enable rising edge. Programming
// ANDs data into the array, erase restores an aligned block to 0xFF, and
// program/erase require the write-enable latch, clearing it on commit.
//
// Busy durations are deterministic rather than timed: a committed
// program or erase holds the BUSY flag for a configured number of status
// samples. While a status read is open and the clock idles low, SO
// carries the ready/busy handshake directly (high means busy), which is
// what a raw-line busy poll observes. While busy, the device accepts
// only the read-status opcode.
//
// Block-protection bits are stored and reported but not enforced
// against the array.
package flashtest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Config sizes the emulated device. Zero fields select the defaults.
type Config struct {
	// Capacity of the array in bytes. Default 4 MiB (SST25VF032B).
	Capacity uint32

	// EraseBlockSize is the aligned region one erase command clears.
	// Default 256 bytes.
	EraseBlockSize uint32

	// ProgramPolls and ErasePolls are how many status samples observe
	// BUSY after a program or erase commits. Defaults 24 and 64.
	ProgramPolls int
	ErasePolls   int

	// StuckBusy makes every committed program or erase hold BUSY
	// forever, for exercising timeout paths.
	StuckBusy bool
}

const (
	opWriteStatus  = 0x01
	opByteProgram  = 0x02
	opRead         = 0x03
	opWriteDisable = 0x04
	opReadStatus   = 0x05
	opWriteEnable  = 0x06
	opBlockErase   = 0xD8
)

const (
	statusBusy = 1 << 0
	statusWEL  = 1 << 1

	// Writable status bits: BP0-BP3 and BPL.
	statusWritable = 0xBC
)

// Device is one emulated SST25V flash. Its four pins implement
// gpio.PinIO and are handed to the code under test.
type Device struct {
	CS  *Pin
	SCK *Pin
	SI  *Pin
	SO  *Pin

	mu sync.Mutex

	mem      []byte
	capacity uint32
	status   byte // WEL, BP and BPL bits; BUSY is derived from busy
	busy     int  // remaining busy status samples; -1 means forever

	eraseBlock   uint32
	programPolls int
	erasePolls   int
	stuckBusy    bool

	selected bool
	inByte   byte
	inBits   int
	nbytes   int
	cmd      []byte

	rdsr     bool
	reading  bool
	readAddr uint32

	outByte byte
	outBits int
	soLevel gpio.Level
}

// New returns a powered-on device with an erased (all 0xFF) array.
func New(cfg Config) *Device {
	if cfg.Capacity == 0 {
		cfg.Capacity = 4 << 20
	}
	if cfg.EraseBlockSize == 0 {
		cfg.EraseBlockSize = 256
	}
	if cfg.ProgramPolls == 0 {
		cfg.ProgramPolls = 24
	}
	if cfg.ErasePolls == 0 {
		cfg.ErasePolls = 64
	}

	d := &Device{
		mem:          make([]byte, cfg.Capacity),
		capacity:     cfg.Capacity,
		eraseBlock:   cfg.EraseBlockSize,
		programPolls: cfg.ProgramPolls,
		erasePolls:   cfg.ErasePolls,
		stuckBusy:    cfg.StuckBusy,
		cmd:          make([]byte, 0, 5),
	}
	for i := range d.mem {
		d.mem[i] = 0xFF
	}

	// CE# idles high as if pulled up; the other lines idle low.
	d.CS = &Pin{dev: d, name: "CE#", num: 0, role: roleCS, input: true, level: gpio.High}
	d.SCK = &Pin{dev: d, name: "SCK", num: 1, role: roleSCK, input: true}
	d.SI = &Pin{dev: d, name: "SI", num: 2, role: roleSI, input: true}
	d.SO = &Pin{dev: d, name: "SO", num: 3, role: roleSO, input: true}
	return d
}

// SetBytes stores data at addr directly, bypassing the wire protocol.
// Intended for preloading test fixtures; panics if the range does not
// fit the array.
func (d *Device) SetBytes(addr uint32, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if addr >= d.capacity || len(data) > int(d.capacity-addr) {
		panic(fmt.Sprintf("flashtest: SetBytes range 0x%X+%d exceeds capacity %d", addr, len(data), d.capacity))
	}
	copy(d.mem[addr:], data)
}

// Bytes returns a copy of n bytes of the array starting at addr,
// bypassing the wire protocol. Panics if the range does not fit.
func (d *Device) Bytes(addr uint32, n int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if addr >= d.capacity || n > int(d.capacity-addr) {
		panic(fmt.Sprintf("flashtest: Bytes range 0x%X+%d exceeds capacity %d", addr, n, d.capacity))
	}
	out := make([]byte, n)
	copy(out, d.mem[addr:])
	return out
}

// Status returns the current status byte without consuming a busy
// sample.
func (d *Device) Status() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	sr := d.status
	if d.busy != 0 {
		sr |= statusBusy
	}
	return sr
}

// Busy reports whether a committed program or erase is still pending.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy != 0
}

// Selected reports whether CE# is asserted.
func (d *Device) Selected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// ClockLow reports whether SCK is at its mode-0 idle level.
func (d *Device) ClockLow() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SCK.level == gpio.Low
}

// statusSnapshot returns the status byte as one clocked-out sample,
// consuming one busy poll.
func (d *Device) statusSnapshot() byte {
	sr := d.status
	if d.busy != 0 {
		sr |= statusBusy
		if d.busy > 0 {
			d.busy--
		}
	}
	return sr
}

func (d *Device) pinEdge(role int, l gpio.Level) {
	switch role {
	case roleCS:
		if l == gpio.Low {
			d.beginTransaction()
		} else if d.selected {
			d.commit()
			d.resetTransaction()
		}
	case roleSCK:
		if !d.selected {
			return
		}
		if l == gpio.High {
			d.risingEdge()
		} else {
			d.fallingEdge()
		}
	}
}

func (d *Device) beginTransaction() {
	d.resetTransaction()
	d.selected = true
}

func (d *Device) resetTransaction() {
	d.selected = false
	d.inByte = 0
	d.inBits = 0
	d.nbytes = 0
	d.cmd = d.cmd[:0]
	d.rdsr = false
	d.reading = false
	d.outByte = 0
	d.outBits = 0
	d.soLevel = gpio.Low
}

// risingEdge samples one bit from SI.
func (d *Device) risingEdge() {
	d.inByte = d.inByte << 1
	if d.SI.level == gpio.High {
		d.inByte |= 1
	}
	d.inBits++
	if d.inBits == 8 {
		d.inBits = 0
		d.byteIn(d.inByte)
		d.inByte = 0
	}
}

// byteIn handles one completed input byte.
func (d *Device) byteIn(b byte) {
	d.nbytes++
	switch {
	case d.nbytes == 1:
		d.cmd = append(d.cmd, b)
		if b == opReadStatus {
			d.rdsr = true
		}
	case d.rdsr || d.reading:
		// Dummy bytes clocked while the device is shifting out; they
		// are not part of a command.
	default:
		if len(d.cmd) < 5 {
			d.cmd = append(d.cmd, b)
		}
		if d.cmd[0] == opRead && d.nbytes == 4 && d.busy == 0 {
			d.reading = true
			d.readAddr = d.cmdAddr()
		}
	}
}

// fallingEdge presents the next output bit on SO.
func (d *Device) fallingEdge() {
	if d.outBits == 0 {
		d.reloadOut()
	}
	if d.outBits > 0 {
		d.soLevel = gpio.Level(d.outByte&0x80 != 0)
		d.outByte <<= 1
		d.outBits--
	} else {
		d.soLevel = gpio.Low
	}
}

// reloadOut loads the next byte into the output shift register: a fresh
// status sample during a status read, or the next array byte during a
// read, wrapping at the end of the array.
func (d *Device) reloadOut() {
	switch {
	case d.rdsr:
		d.outByte = d.statusSnapshot()
		d.outBits = 8
	case d.reading:
		d.outByte = d.mem[d.readAddr]
		d.readAddr = (d.readAddr + 1) % d.capacity
		d.outBits = 8
	}
}

// cmdAddr decodes the 24-bit big-endian address in cmd[1:4], wrapped to
// the array size.
func (d *Device) cmdAddr() uint32 {
	addr := uint32(d.cmd[1])<<16 | uint32(d.cmd[2])<<8 | uint32(d.cmd[3])
	return addr % d.capacity
}

// commit applies the received command at the chip-enable rising edge.
// Commands are executed only when their byte count is exact, mirroring
// the chip's requirement that CE# rise on a byte boundary of a complete
// instruction. All commands except read-status are ignored while busy.
func (d *Device) commit() {
	if len(d.cmd) == 0 || d.busy != 0 {
		return
	}
	switch d.cmd[0] {
	case opWriteEnable:
		if d.nbytes == 1 {
			d.status |= statusWEL
		}
	case opWriteDisable:
		if d.nbytes == 1 {
			d.status &^= statusWEL
		}
	case opByteProgram:
		if d.nbytes == 5 && d.status&statusWEL != 0 {
			d.mem[d.cmdAddr()] &= d.cmd[4]
			d.status &^= statusWEL
			d.busy = d.programPolls
			if d.stuckBusy {
				d.busy = -1
			}
		}
	case opBlockErase:
		if d.nbytes == 4 && d.status&statusWEL != 0 {
			start := d.cmdAddr()
			start -= start % d.eraseBlock
			end := start + d.eraseBlock
			if end > d.capacity {
				end = d.capacity
			}
			for i := start; i < end; i++ {
				d.mem[i] = 0xFF
			}
			d.status &^= statusWEL
			d.busy = d.erasePolls
			if d.stuckBusy {
				d.busy = -1
			}
		}
	case opWriteStatus:
		if d.nbytes == 2 && d.status&statusWEL != 0 {
			d.status = d.status&^statusWritable | d.cmd[1]&statusWritable
			d.status &^= statusWEL
		}
	}
}

// readSO computes the level the device is driving on SO. With a status
// read open and the clock idle low, the line carries the ready/busy
// handshake and each sample consumes one busy poll.
func (d *Device) readSO() gpio.Level {
	if !d.selected {
		return gpio.Low
	}
	if d.rdsr && d.SCK.level == gpio.Low {
		if d.busy == 0 {
			return gpio.Low
		}
		if d.busy > 0 {
			d.busy--
		}
		return gpio.High
	}
	return d.soLevel
}

// Pin roles within the device.
const (
	roleCS = iota
	roleSCK
	roleSI
	roleSO
)

// Pin is one simulated GPIO line attached to a Device. It implements
// gpio.PinIO. Edge detection is not supported: WaitForEdge always
// returns false.
type Pin struct {
	dev  *Device
	name string
	num  int
	role int

	input bool
	level gpio.Level
	pull  gpio.Pull
}

var _ gpio.PinIO = (*Pin)(nil)

func (p *Pin) String() string { return fmt.Sprintf("%s(%d)", p.name, p.num) }
func (p *Pin) Name() string   { return p.name }
func (p *Pin) Number() int    { return p.num }
func (p *Pin) Halt() error    { return nil }

// Function reports "In" or "Out" so tests can assert that lines were
// released.
func (p *Pin) Function() string {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.input {
		return "In"
	}
	return "Out"
}

// In releases the line to input. Releasing CE# mid-transaction abandons
// the transaction without committing it: a floating select line is not
// a clean byte-boundary rising edge.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.input = true
	p.pull = pull
	if p.role == roleCS && p.dev.selected {
		p.dev.resetTransaction()
		p.level = gpio.High // board pull-up
	}
	return nil
}

func (p *Pin) Read() gpio.Level {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.role == roleSO {
		return p.dev.readSO()
	}
	return p.level
}

func (p *Pin) WaitForEdge(timeout time.Duration) bool { return false }

func (p *Pin) Pull() gpio.Pull {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	return p.pull
}

func (p *Pin) DefaultPull() gpio.Pull { return gpio.Float }

func (p *Pin) Out(l gpio.Level) error {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	p.input = false
	if p.level == l {
		return nil
	}
	p.level = l
	p.dev.pinEdge(p.role, l)
	return nil
}

func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("flashtest: PWM not supported")
}
