package cpu

import (
	"github.com/fennelwick/gbcore/core/addr"
	"github.com/fennelwick/gbcore/core/memory"
)

// Flag is one of the 4 possible flags used in the flag register (high part of AF)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

// interruptVector maps an interrupt source to its fixed service address.
var interruptVector = map[addr.Interrupt]uint16{
	addr.VBlankInterrupt:   0x40,
	addr.LCDSTATInterrupt:  0x48,
	addr.TimerInterrupt:    0x50,
	addr.SerialInterrupt:   0x58,
	addr.JoypadInterrupt:   0x60,
}

// CPU is the main struct holding Sharp LR35902 state: the 8-bit registers
// (paired into AF/BC/DE/HL), SP, PC, and the instruction-sequencing state
// around interrupts (IME, the EI delay, HALT and the HALT bug).
type CPU struct {
	memory *memory.MMU

	a, f byte
	b, c byte
	d, e byte
	h, l byte
	sp   uint16
	pc   uint16

	currentOpcode uint16
	cycles        uint64

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool
}

// New returns a CPU wired to the given bus, with registers set to the
// values real hardware has immediately after the boot ROM hands off
// execution at 0x0100.
func New(mmu *memory.MMU) *CPU {
	return &CPU{
		memory: mmu,
		a:      0x01,
		f:      0xB0,
		b:      0x00,
		c:      0x13,
		d:      0x00,
		e:      0xD8,
		h:      0x01,
		l:      0x4D,
		sp:     0xFFFE,
		pc:     0x100,
	}
}

// GetPC returns the current program counter, for debugger/disassembler use.
func (c *CPU) GetPC() uint16 { return c.pc }

// GetSP returns the current stack pointer.
func (c *CPU) GetSP() uint16 { return c.sp }

// GetCycles returns the running T-cycle count since the CPU was created.
func (c *CPU) GetCycles() uint64 { return c.cycles }

// IME reports whether the interrupt master-enable latch is currently set.
func (c *CPU) IME() bool { return c.interruptsEnabled }

// Registers returns the 8-bit register file, for debugger/disassembler use.
func (c *CPU) Registers() (a, f, b, cReg, d, e, h, l uint8) {
	return c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l
}

// The Get* accessors below expose individual registers for renderers and
// debugger UIs that want to display one register at a time.
func (c *CPU) GetA() uint8 { return c.a }
func (c *CPU) GetF() uint8 { return c.f }
func (c *CPU) GetB() uint8 { return c.b }
func (c *CPU) GetC() uint8 { return c.c }
func (c *CPU) GetD() uint8 { return c.d }
func (c *CPU) GetE() uint8 { return c.e }
func (c *CPU) GetH() uint8 { return c.h }
func (c *CPU) GetL() uint8 { return c.l }

// GetFlagString renders the flag register as the classic "ZNHC" letters,
// uppercase when set and dash when clear.
func (c *CPU) GetFlagString() string {
	letter := func(flag Flag, ch byte) byte {
		if c.isSetFlag(flag) {
			return ch
		}
		return '-'
	}
	return string([]byte{
		letter(zeroFlag, 'Z'),
		letter(subFlag, 'N'),
		letter(halfCarryFlag, 'H'),
		letter(carryFlag, 'C'),
	})
}

func (c *CPU) setFlag(flag Flag)   { c.f |= uint8(flag) }
func (c *CPU) resetFlag(flag Flag) { c.f &^= uint8(flag) }

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

// flagToBit returns 1 if the given flag is set, 0 otherwise.
func (c CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

func (c *CPU) getBC() uint16 { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) setBC(v uint16) {
	c.b = uint8(v >> 8)
	c.c = uint8(v)
}

func (c *CPU) getDE() uint16 { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) setDE(v uint16) {
	c.d = uint8(v >> 8)
	c.e = uint8(v)
}

func (c *CPU) getHL() uint16 { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) setHL(v uint16) {
	c.h = uint8(v >> 8)
	c.l = uint8(v)
}

func (c *CPU) getAF() uint16 { return uint16(c.a)<<8 | uint16(c.f&0xF0) }
func (c *CPU) setAF(v uint16) {
	c.a = uint8(v >> 8)
	c.f = uint8(v) & 0xF0
}

// readImmediate fetches the byte at PC and advances PC past it.
func (c *CPU) readImmediate() uint8 {
	v := c.memory.Read(c.pc)
	c.pc++
	return v
}

// peekImmediate reads the byte at PC without advancing PC; used by jr/jp
// which fold the PC advance into the jump arithmetic itself.
func (c *CPU) peekImmediate() int8 {
	return int8(c.memory.Read(c.pc))
}

// readImmediateWord fetches the little-endian word at PC and advances PC.
func (c *CPU) readImmediateWord() uint16 {
	low := c.memory.Read(c.pc)
	high := c.memory.Read(c.pc + 1)
	c.pc += 2
	return uint16(high)<<8 | uint16(low)
}

func (c *CPU) peekImmediateWord() uint16 {
	low := c.memory.Read(c.pc)
	high := c.memory.Read(c.pc + 1)
	return uint16(high)<<8 | uint16(low)
}

// Step executes a single instruction (or a single HALT/STOP no-op cycle),
// services one pending interrupt if applicable, advances the bus (timer,
// serial, OAM DMA) by the T-cycles consumed, and returns that cycle count.
func (c *CPU) Step() int {
	cyclesBefore := c.cycles

	if c.halted {
		imeWasEnabled := c.interruptsEnabled
		if c.handleInterrupts() {
			c.halted = false
			if !imeWasEnabled {
				c.haltBug = true
			}
		}
		c.cycles += 4
		total := int(c.cycles - cyclesBefore)
		c.memory.AdvanceCycles(total)
		return total
	}

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	opcode := uint16(c.readImmediate())
	if c.haltBug {
		// The HALT bug fails to advance PC past HALT, so the byte just
		// fetched is re-read as the next opcode too.
		c.pc--
		c.haltBug = false
	}
	if opcode == 0xCB {
		opcode = 0xCB00 | uint16(c.readImmediate())
	}

	cycles := decode(opcode)(c)
	c.currentOpcode = opcode
	c.cycles += uint64(cycles)

	c.handleInterrupts()

	total := int(c.cycles - cyclesBefore)
	c.memory.AdvanceCycles(total)

	return total
}

// handleInterrupts checks for a pending, IE-enabled interrupt. It reports
// whether one is pending regardless of IME (callers use this to wake a
// halted CPU even with interrupts globally disabled), and additionally
// performs the 5-M-cycle service sequence -- two wasted cycles, a push of
// PC, and the jump to the vector -- when IME is actually enabled.
func (c *CPU) handleInterrupts() bool {
	source, ok := c.memory.Interrupts.Fetch()
	if !ok {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	c.interruptsEnabled = false
	c.memory.Interrupts.Clear(source)

	c.pushStack(c.pc)
	c.pc = interruptVector[source]
	c.cycles += 20

	return true
}
