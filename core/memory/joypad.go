package memory

import "github.com/fennelwick/gbcore/core/bit"

// JoypadKey represents a key on the Gameboy joypad.
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// Joypad is the P1/JOYP register. Button and d-pad lines are active low and
// selected by writing 0 to bit 4 (d-pad) or bit 5 (buttons); selecting both
// ORs the two nibbles together, matching real hardware.
type Joypad struct {
	buttons uint8 // bit set = released
	dpad    uint8 // bit set = released
	selDpad bool
	selBtn  bool

	// JoypadInterruptHandler fires on any 1->0 transition of a selected,
	// currently-read input bit (the only edge the controller actually wires
	// to the JOYPAD interrupt).
	JoypadInterruptHandler func()
}

// NewJoypad creates a new Joypad instance with no button pressed.
func NewJoypad() *Joypad {
	return &Joypad{
		buttons: 0x0F,
		dpad:    0x0F,
	}
}

// Read returns P1 with the two unused top bits and any unselected line
// stuck high, per the real register's read mask.
func (j *Joypad) Read() uint8 {
	nibble := uint8(0x0F)
	if j.selDpad {
		nibble &= j.dpad
	}
	if j.selBtn {
		nibble &= j.buttons
	}

	var sel uint8 = 0x30
	if j.selDpad {
		sel = bit.Reset(4, sel)
	}
	if j.selBtn {
		sel = bit.Reset(5, sel)
	}

	return sel | nibble | 0xC0
}

// Write sets which of the two input lines is selected.
func (j *Joypad) Write(value uint8) {
	j.selDpad = !bit.IsSet(4, value)
	j.selBtn = !bit.IsSet(5, value)
}

func (j *Joypad) selectedBits() uint8 {
	bits := uint8(0x0F)
	if j.selDpad {
		bits &= j.dpad
	}
	if j.selBtn {
		bits &= j.buttons
	}
	return bits
}

func (j *Joypad) fireIfEdge(before uint8) {
	after := j.selectedBits()
	if before&^after != 0 && j.JoypadInterruptHandler != nil {
		j.JoypadInterruptHandler()
	}
}

// Press updates the joypad state when a key is pressed.
func (j *Joypad) Press(key JoypadKey) {
	before := j.selectedBits()
	switch key {
	case JoypadRight:
		j.dpad = bit.Reset(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Reset(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Reset(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Reset(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Reset(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Reset(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Reset(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Reset(3, j.buttons)
	}
	j.fireIfEdge(before)
}

// Release updates the joypad state when a key is released.
func (j *Joypad) Release(key JoypadKey) {
	switch key {
	case JoypadRight:
		j.dpad = bit.Set(0, j.dpad)
	case JoypadLeft:
		j.dpad = bit.Set(1, j.dpad)
	case JoypadUp:
		j.dpad = bit.Set(2, j.dpad)
	case JoypadDown:
		j.dpad = bit.Set(3, j.dpad)
	case JoypadA:
		j.buttons = bit.Set(0, j.buttons)
	case JoypadB:
		j.buttons = bit.Set(1, j.buttons)
	case JoypadSelect:
		j.buttons = bit.Set(2, j.buttons)
	case JoypadStart:
		j.buttons = bit.Set(3, j.buttons)
	}
}
