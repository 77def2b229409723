package cpu

// cbOperand abstracts the 8 operand slots shared by every CB-prefixed
// instruction (B, C, D, E, H, L, (HL), A). Unlike the non-prefixed rotate
// accumulator opcodes, every CB rotate/shift sets the zero flag from the
// result, so these operate through get/set rather than the raw rlc/rl/
// rrc/rr helpers in instructions.go.
type cbOperand struct {
	get func(c *CPU) uint8
	set func(c *CPU, v uint8)
}

// cbOperands are indexed the same way the opcode's low 3 bits select a
// register in every other block of the instruction set.
var cbOperands = [8]cbOperand{
	{func(c *CPU) uint8 { return c.b }, func(c *CPU, v uint8) { c.b = v }},
	{func(c *CPU) uint8 { return c.c }, func(c *CPU, v uint8) { c.c = v }},
	{func(c *CPU) uint8 { return c.d }, func(c *CPU, v uint8) { c.d = v }},
	{func(c *CPU) uint8 { return c.e }, func(c *CPU, v uint8) { c.e = v }},
	{func(c *CPU) uint8 { return c.h }, func(c *CPU, v uint8) { c.h = v }},
	{func(c *CPU) uint8 { return c.l }, func(c *CPU, v uint8) { c.l = v }},
	{
		func(c *CPU) uint8 { return c.memory.Read(c.getHL()) },
		func(c *CPU, v uint8) { c.memory.Write(c.getHL(), v) },
	},
	{func(c *CPU) uint8 { return c.a }, func(c *CPU, v uint8) { c.a = v }},
}

func (c *CPU) cbRlc(v uint8) uint8 {
	carry := v > 0x7F
	result := (v << 1) | (v >> 7)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) cbRrc(v uint8) uint8 {
	carry := v&1 != 0
	result := (v >> 1) | ((v & 1) << 7)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) cbRl(v uint8) uint8 {
	oldCarry := c.flagToBit(carryFlag)
	carry := v > 0x7F
	result := (v << 1) | oldCarry
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) cbRr(v uint8) uint8 {
	oldCarry := c.flagToBit(carryFlag) << 7
	carry := v&1 != 0
	result := (v >> 1) | oldCarry
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) sla(v uint8) uint8 {
	carry := v > 0x7F
	result := v << 1
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) sra(v uint8) uint8 {
	carry := v&1 != 0
	result := (v >> 1) | (v & 0x80)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) srl(v uint8) uint8 {
	carry := v&1 != 0
	result := v >> 1
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	return result
}

func (c *CPU) swap(v uint8) uint8 {
	result := (v << 4) | (v >> 4)
	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
	return result
}

func (c *CPU) bit(v uint8, position uint8) {
	c.setFlagToCondition(zeroFlag, v&(1<<position) == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

func res(v uint8, position uint8) uint8 {
	return v &^ (1 << position)
}

func set(v uint8, position uint8) uint8 {
	return v | (1 << position)
}

// cbCycles is 8 for every direct register operand and 16 for (HL), except
// BIT against (HL) which only costs 12 since it has no write-back.
func cbCycles(operand uint8, isBit bool) int {
	if operand != 6 {
		return 8
	}
	if isBit {
		return 12
	}
	return 16
}

// buildCBMap programmatically constructs all 256 CB-prefixed opcodes from
// the 8 operand slots crossed with the 8 rotate/shift ops, plus BIT/RES/SET
// each crossed with the 8 bit positions -- the same structure the real
// opcode encoding uses, rather than 256 hand-written functions.
func buildCBMap() map[uint8]Opcode {
	m := make(map[uint8]Opcode, 256)

	rotateOps := [8]func(*CPU, uint8) uint8{
		(*CPU).cbRlc,
		(*CPU).cbRrc,
		(*CPU).cbRl,
		(*CPU).cbRr,
		(*CPU).sla,
		(*CPU).sra,
		(*CPU).swap,
		(*CPU).srl,
	}

	for row := uint8(0); row < 8; row++ {
		op := rotateOps[row]
		for col := uint8(0); col < 8; col++ {
			operand := cbOperands[col]
			code := row*8 + col
			cycles := cbCycles(col, false)
			m[code] = func(c *CPU) int {
				operand.set(c, op(c, operand.get(c)))
				return cycles
			}
		}
	}

	for position := uint8(0); position < 8; position++ {
		for col := uint8(0); col < 8; col++ {
			operand := cbOperands[col]
			pos := position
			code := 0x40 + position*8 + col
			cycles := cbCycles(col, true)
			m[code] = func(c *CPU) int {
				c.bit(operand.get(c), pos)
				return cycles
			}
		}
	}

	for position := uint8(0); position < 8; position++ {
		for col := uint8(0); col < 8; col++ {
			operand := cbOperands[col]
			pos := position
			code := 0x80 + position*8 + col
			cycles := cbCycles(col, false)
			m[code] = func(c *CPU) int {
				operand.set(c, res(operand.get(c), pos))
				return cycles
			}
		}
	}

	for position := uint8(0); position < 8; position++ {
		for col := uint8(0); col < 8; col++ {
			operand := cbOperands[col]
			pos := position
			code := 0xC0 + position*8 + col
			cycles := cbCycles(col, false)
			m[code] = func(c *CPU) int {
				operand.set(c, set(operand.get(c), pos))
				return cycles
			}
		}
	}

	return m
}
