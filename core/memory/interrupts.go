package memory

import (
	"github.com/fennelwick/gbcore/core/addr"
	"github.com/fennelwick/gbcore/core/bit"
)

// interruptSources lists the five interrupt sources in priority order
// (lowest bit position wins when more than one is pending).
var interruptSources = [5]addr.Interrupt{
	addr.VBlankInterrupt,
	addr.LCDSTATInterrupt,
	addr.TimerInterrupt,
	addr.SerialInterrupt,
	addr.JoypadInterrupt,
}

// Interrupts owns the IF and IE registers. The IME master-enable latch
// itself lives on the CPU (interruptsEnabled/eiPending) since it is pure
// instruction-sequencing state (EI's one-instruction delay, DI's immediate
// effect, RETI) rather than bus-addressable register state.
type Interrupts struct {
	ifReg byte
	ieReg byte
}

// ReadIF returns the IF register with the unused upper three bits read as 1.
func (i *Interrupts) ReadIF() byte {
	return i.ifReg | 0xE0
}

// WriteIF stores the five significant bits of IF.
func (i *Interrupts) WriteIF(value byte) {
	i.ifReg = value & 0x1F
}

// ReadIE returns IE unmasked; all eight bits are writable from the guest's
// perspective even though only the low five are ever consulted.
func (i *Interrupts) ReadIE() byte {
	return i.ieReg
}

// WriteIE stores the full byte.
func (i *Interrupts) WriteIE(value byte) {
	i.ieReg = value
}

// Request sets the IF bit for the given source.
func (i *Interrupts) Request(source addr.Interrupt) {
	var bitPos uint8
	switch source {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		return
	}
	i.ifReg = bit.Set(bitPos, i.ifReg)
}

// Pending reports whether any requested interrupt is also enabled in IE,
// regardless of IME. The CPU uses this to decide whether to wake from HALT.
func (i *Interrupts) Pending() bool {
	return (i.ifReg & i.ieReg & 0x1F) != 0
}

// Fetch returns the lowest-numbered source with both IF and IE set.
func (i *Interrupts) Fetch() (addr.Interrupt, bool) {
	pending := i.ifReg & i.ieReg & 0x1F
	if pending == 0 {
		return 0, false
	}
	for bitPos, src := range interruptSources {
		if pending&(1<<uint(bitPos)) != 0 {
			return src, true
		}
	}
	return 0, false
}

// Clear resets the IF bit for the given source, called once the CPU has
// begun servicing it.
func (i *Interrupts) Clear(source addr.Interrupt) {
	var bitPos uint8
	switch source {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		return
	}
	i.ifReg = bit.Reset(bitPos, i.ifReg)
}
