package cpu

import "github.com/fennelwick/gbcore/core/bit"

func (c *CPU) pushStack(r uint16) {
	c.sp--
	c.memory.Write(c.sp, bit.Low(r))
	c.sp--
	c.memory.Write(c.sp, bit.High(r))
}

func (c *CPU) popStack() uint16 {
	high := c.memory.Read(c.sp)
	c.sp++
	low := c.memory.Read(c.sp)
	c.sp++

	return bit.Combine(high, low)
}

func (c *CPU) inc(r *uint8) {
	*r++
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0xF)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	*r--
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0xF)
	c.setFlag(subFlag)
}

func (c *CPU) rlc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | (value >> 7)
	*r = value
}

func (c *CPU) rl(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag)

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value << 1) | carry
	*r = value
}

func (c *CPU) rrc(r *uint8) {
	value := *r

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | ((value & 1) << 7)
	*r = value
}

func (c *CPU) rr(r *uint8) {
	value := *r
	carry := c.flagToBit(carryFlag) << 7

	c.setFlagToCondition(carryFlag, value > 0x7F)
	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)

	value = (value >> 1) | carry
	*r = value
}

// add sets the result of adding an 8 bit register to A, while setting all relevant flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	carry := (uint16(a) + uint16(value)) > 0xFF
	halfCarry := (a&0xF)+(value&0xF) > 0xF

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.a = result
}

// addToHL sets the result of adding a 16 bit register to HL, while setting relevant flags.
func (c *CPU) addToHL(reg uint16) {
	hl := bit.Combine(c.h, c.l)
	result := hl + reg

	carry := (uint32(hl) + uint32(reg)) > 0xFFFF
	halfCarry := (hl&0xFFF)+(reg&0xFFF) > 0xFFF

	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	c.h = bit.High(result)
	c.l = bit.Low(result)
}

// sub will subtract the value from register A and set all relevant flags.
func (c *CPU) sub(value uint8) {
	a := c.a
	c.a = a - value

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// sbc will subtract the value and carry (1 if set, 0 otherwise) from the register A.
func (c *CPU) sbc(value uint8) {
	a := c.a
	carry := 0
	if c.isSetFlag(carryFlag) {
		carry = 1
	}

	result := int(c.a) - int(value) - carry
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, result < 0)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF)-carry < 0)
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

// adc adds value and the carry flag to A.
func (c *CPU) adc(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := uint16(a) + uint16(value) + uint16(carry)

	c.setFlagToCondition(zeroFlag, uint8(result) == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, result > 0xFF)
	c.setFlagToCondition(halfCarryFlag, (a&0xF)+(value&0xF)+carry > 0xF)

	c.a = uint8(result)
}

// cp compares value against A (like sub, but discards the result).
func (c *CPU) cp(value uint8) {
	a := c.a
	result := a - value

	c.setFlagToCondition(zeroFlag, result == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF) < 0)
}

// daa adjusts A into packed BCD after an add/sub, per the standard
// correction table keyed on the sub/half-carry/carry flags.
func (c *CPU) daa() {
	a := uint16(c.a)
	adjust := uint16(0)
	carry := false

	if c.isSetFlag(halfCarryFlag) || (!c.isSetFlag(subFlag) && a&0xF > 9) {
		adjust |= 0x06
	}
	if c.isSetFlag(carryFlag) || (!c.isSetFlag(subFlag) && a > 0x99) {
		adjust |= 0x60
		carry = true
	}

	if c.isSetFlag(subFlag) {
		a -= adjust
	} else {
		a += adjust
	}
	a &= 0xFF

	c.setFlagToCondition(zeroFlag, a == 0)
	c.setFlagToCondition(carryFlag, carry)
	c.resetFlag(halfCarryFlag)

	c.a = uint8(a)
}

// addSPSigned computes SP + a signed immediate byte, setting flags as if
// it were an 8-bit unsigned add between the low byte of SP and the
// immediate (the quirky but correct rule real hardware uses for both
// ADD SP,n and LDHL SP,n).
func (c *CPU) addSPSigned(offset int8) uint16 {
	sp := c.sp
	value := uint16(uint8(offset))
	result := sp + value

	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.setFlagToCondition(halfCarryFlag, (sp&0xF)+(value&0xF) > 0xF)
	c.setFlagToCondition(carryFlag, (sp&0xFF)+(value&0xFF) > 0xFF)

	return result
}

// call pushes the return address and jumps to the given target.
func (c *CPU) call(target uint16) {
	c.pushStack(c.pc)
	c.pc = target
}

// ret pops the return address off the stack into PC.
func (c *CPU) ret() {
	c.pc = c.popStack()
}

// rst is a call to one of the fixed zero-page restart vectors.
func (c *CPU) rst(vector uint16) {
	c.call(vector)
}

// jr performs a relative jump using the signed immediate byte, which is
// consumed before the displacement is applied so it is relative to the
// address of the following instruction.
func (c *CPU) jr() {
	offset := c.peekImmediate()
	c.pc++
	c.pc = uint16(int32(c.pc) + int32(offset))
}

// jp performs an absolute jump using the immediate 16-bit address.
func (c *CPU) jp() {
	c.pc = c.readImmediateWord()
}
