package cpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A hack computer: 32K words of instruction memory, 32K words of data memory, the A and D
// registers and the program counter. Instructions are either
//
//	0vvv vvvv vvvv vvvv   A instruction, A = v
//	111a cccc ccdd djjj   C instruction, dest = comp; jump
//
// where the six c bits drive the ALU directly (zx, nx, zy, ny, f, no).

const (
	RAMSize = 1 << 15
	ROMSize = 1 << 15

	SP   = 0
	LCL  = 1
	ARG  = 2
	THIS = 3
	THAT = 4

	StackBase = 256
)

var ErrPCOutOfRange = errors.New("program counter out of rom")

type CPU struct {
	A  int16
	D  int16
	PC uint16

	RAM [RAMSize]int16
	ROM []uint16

	Cycles int
	halted bool
}

// New loads rom into a fresh machine with every register and RAM word set to 0.
func New(rom []uint16) *CPU {
	return &CPU{ROM: rom}
}

// LoadHack reads a .hack file, one 16 character binary instruction per line.
func LoadHack(rd io.Reader) ([]uint16, error) {
	var rom []uint16
	scanner := bufio.NewScanner(rd)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if len(text) != 16 {
			return nil, fmt.Errorf("line %d: expected 16 binary digits, got %q", line, text)
		}
		code, err := strconv.ParseUint(text, 2, 16)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rom = append(rom, uint16(code))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rom) > ROMSize {
		return nil, fmt.Errorf("program has %d instructions, rom holds %d", len(rom), ROMSize)
	}
	return rom, nil
}

// Halted reports whether the last executed instruction was an unconditional jump to itself,
// which is how hack programs stop.
func (c *CPU) Halted() bool {
	return c.halted
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if int(c.PC) >= len(c.ROM) {
		return fmt.Errorf("%w: pc=%d", ErrPCOutOfRange, c.PC)
	}
	pc := c.PC
	instruction := c.ROM[pc]
	c.Cycles++
	if instruction&0x8000 == 0 {
		c.A = int16(instruction)
		c.PC++
		return nil
	}

	addr := uint16(c.A)
	y := c.A
	if instruction&0x1000 != 0 {
		if addr >= RAMSize {
			return fmt.Errorf("read of address %d out of ram at pc=%d", addr, pc)
		}
		y = c.RAM[addr]
	}
	out := alu(c.D, y, instruction>>6&0x3F)

	if instruction&0x0008 != 0 {
		if addr >= RAMSize {
			return fmt.Errorf("write to address %d out of ram at pc=%d", addr, pc)
		}
		c.RAM[addr] = out
	}
	if instruction&0x0020 != 0 {
		c.A = out
	}
	if instruction&0x0010 != 0 {
		c.D = out
	}

	if jump(out, instruction&0x7) {
		c.PC = addr
		// @self; 0;JMP
		c.halted = instruction&0x7 == 0x7 && addr == pc-1 && pc > 0 && c.ROM[pc-1] == addr
	} else {
		c.PC++
	}
	return nil
}

// Run executes until the program halts or maxCycles instructions have run. It returns the
// number of instructions executed by this call.
func (c *CPU) Run(maxCycles int) (int, error) {
	start := c.Cycles
	for i := 0; i < maxCycles && !c.halted; i++ {
		if err := c.Step(); err != nil {
			return c.Cycles - start, err
		}
	}
	return c.Cycles - start, nil
}

// Stack returns the words between StackBase and SP.
func (c *CPU) Stack() []int16 {
	return c.StackFrom(StackBase)
}

// StackFrom returns the words between base and SP, for programs whose bootstrap put the
// stack somewhere other than StackBase.
func (c *CPU) StackFrom(base int) []int16 {
	sp := int(c.RAM[SP])
	if base < 0 || sp <= base || sp > RAMSize {
		return nil
	}
	return append([]int16(nil), c.RAM[base:sp]...)
}

func alu(x, y int16, control uint16) int16 {
	if control&0x20 != 0 { // zx
		x = 0
	}
	if control&0x10 != 0 { // nx
		x = ^x
	}
	if control&0x08 != 0 { // zy
		y = 0
	}
	if control&0x04 != 0 { // ny
		y = ^y
	}
	var out int16
	if control&0x02 != 0 { // f
		out = x + y
	} else {
		out = x & y
	}
	if control&0x01 != 0 { // no
		out = ^out
	}
	return out
}

func jump(out int16, bits uint16) bool {
	return (bits&0x4 != 0 && out < 0) ||
		(bits&0x2 != 0 && out == 0) ||
		(bits&0x1 != 0 && out > 0)
}
