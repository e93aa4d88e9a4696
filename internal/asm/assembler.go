package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xiaobogaga/hackvm/util"
)

// A two pass assembler for the hack assembly language. The first pass records the
// instruction address of every `(label)` and encodes everything it can; the second pass
// resolves the `@symbol` instructions, which refer either to a label (possibly declared
// later) or to a variable that gets the next free RAM address starting at 16.

// The A instruction has several forms:
// * @10, a decimal value in 0..32767.
// * @label, the instruction address of label.
// * @SP, @LCL, @ARG, @THIS, @THAT, @R0-@R15, @SCREEN, @KBD, predefined addresses.
// * @variable, the data memory address of variable.

var predefinedVariables = map[string]int{
	"SP":     0,
	"LCL":    1,
	"ARG":    2,
	"THIS":   3,
	"THAT":   4,
	"R0":     0,
	"R1":     1,
	"R2":     2,
	"R3":     3,
	"R4":     4,
	"R5":     5,
	"R6":     6,
	"R7":     7,
	"R8":     8,
	"R9":     9,
	"R10":    10,
	"R11":    11,
	"R12":    12,
	"R13":    13,
	"R14":    14,
	"R15":    15,
	"SCREEN": 16384,
	"KBD":    24576,
}

var cCommandCompMap = map[string]string{
	"0":   "0101010",
	"1":   "0111111",
	"-1":  "0111010",
	"D":   "0001100",
	"A":   "0110000",
	"!D":  "0001101",
	"!A":  "0110001",
	"-D":  "0001111",
	"-A":  "0110011",
	"D+1": "0011111",
	"1+D": "0011111",
	"A+1": "0110111",
	"1+A": "0110111",
	"D-1": "0001110",
	"A-1": "0110010",
	"D+A": "0000010",
	"A+D": "0000010",
	"D-A": "0010011",
	"A-D": "0000111",
	"D&A": "0000000",
	"A&D": "0000000",
	"D|A": "0010101",
	"A|D": "0010101",
	"M":   "1110000",
	"!M":  "1110001",
	"-M":  "1110011",
	"M+1": "1110111",
	"1+M": "1110111",
	"M-1": "1110010",
	"D+M": "1000010",
	"M+D": "1000010",
	"D-M": "1010011",
	"M-D": "1000111",
	"D&M": "1000000",
	"M&D": "1000000",
	"D|M": "1010101",
	"M|D": "1010101",
}

var cCommandDestMap = map[string]string{
	"M":   "001",
	"D":   "010",
	"MD":  "011",
	"DM":  "011",
	"A":   "100",
	"AM":  "101",
	"MA":  "101",
	"AD":  "110",
	"DA":  "110",
	"AMD": "111",
	"ADM": "111",
	"DAM": "111",
	"DMA": "111",
	"MAD": "111",
	"MDA": "111",
}

var cCommandJumpMap = map[string]string{
	"JGT": "001",
	"JEQ": "010",
	"JGE": "011",
	"JLT": "100",
	"JNE": "101",
	"JLE": "110",
	"JMP": "111",
}

const (
	variableBaseAddr = 16
	maxConstant      = 1<<15 - 1
)

type CommandType int

const (
	ACommandConstant CommandType = iota
	ACommandLabel
	ACommandVariable
	CCommand
)

// Command is one machine instruction together with the source line it came from.
type Command struct {
	Tp              CommandType
	Code            uint16
	Line            int
	OriginalContent string
}

func (command Command) String() string {
	return fmt.Sprintf("Command: {Tp: %d, Code: %s, Line: %d, OriginalContent: %s}", command.Tp,
		FormatCode(command.Code), command.Line, command.OriginalContent)
}

type symbolLocation struct {
	symbol string
	addr   int
}

type Assembler struct {
	line                   int
	currentInstructionAddr int
	nextVariableAddr       int
	labelLocationMap       map[string]int
	variableMap            map[string]int
	symbolLocations        []symbolLocation
	commands               []Command
}

func New() *Assembler {
	return &Assembler{
		nextVariableAddr: variableBaseAddr,
		labelLocationMap: map[string]int{},
		variableMap:      map[string]int{},
	}
}

// Parse reads hack assembly from rd and returns the encoded instructions, one per
// A or C command. Labels and comments produce no instruction.
func (asm *Assembler) Parse(rd io.Reader) ([]Command, error) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		asm.line++
		line, hasRemainCharacter := asm.trimLine(scanner.Text())
		if !hasRemainCharacter {
			continue
		}
		if err := asm.transformLine(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	asm.resolveSymbols()
	return asm.commands, nil
}

// Binary returns the machine code of the parsed program, ready to be loaded into ROM.
func (asm *Assembler) Binary() []uint16 {
	ret := make([]uint16, len(asm.commands))
	for i, command := range asm.commands {
		ret[i] = command.Code
	}
	return ret
}

// Symbol returns the address a symbol resolved to: the instruction address of a label or the
// RAM address of a predefined symbol or variable.
func (asm *Assembler) Symbol(name string) (int, bool) {
	if addr, exist := asm.labelLocationMap[name]; exist {
		return addr, true
	}
	if addr, exist := predefinedVariables[name]; exist {
		return addr, true
	}
	addr, exist := asm.variableMap[name]
	return addr, exist
}

// WriteHack writes one 16 character binary line per instruction.
func (asm *Assembler) WriteHack(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, command := range asm.commands {
		if _, err := bw.WriteString(FormatCode(command.Code) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// resolveSymbols updates those @label or @variable commands whose address was unknown
// until every label declaration had been seen.
func (asm *Assembler) resolveSymbols() {
	for _, location := range asm.symbolLocations {
		command := &asm.commands[location.addr]
		if labelAddr, exist := asm.labelLocationMap[location.symbol]; exist {
			command.Tp = ACommandLabel
			command.Code = uint16(labelAddr)
			continue
		}
		variableAddr, exist := asm.variableMap[location.symbol]
		if !exist {
			variableAddr = asm.nextVariableAddr
			asm.variableMap[location.symbol] = variableAddr
			asm.nextVariableAddr++
		}
		command.Tp = ACommandVariable
		command.Code = uint16(variableAddr)
	}
	asm.symbolLocations = nil
}

// trimLine removes spaces and a trailing comment, then reports whether anything is left.
func (asm *Assembler) trimLine(line string) (string, bool) {
	if index := strings.Index(line, "//"); index != -1 {
		line = line[:index]
	}
	line = strings.TrimSpace(line)
	return line, len(line) > 0
}

func (asm *Assembler) transformLine(line string) error {
	switch line[0] {
	case '@':
		return asm.transformACommand(line)
	case '(':
		return asm.transformLabelCommand(line)
	default:
		return asm.transformCCommand(line)
	}
}

func (asm *Assembler) transformACommand(line string) error {
	symbol := line[1:]
	if len(symbol) == 0 {
		return asm.makeSyntaxErr("missing value after @")
	}
	if util.IsNumber(symbol[0]) {
		if !util.IsDecimal(symbol) {
			return asm.makeSyntaxErr(fmt.Sprintf("wrong decimal value format near %s", line))
		}
		value, err := strconv.Atoi(symbol)
		if err != nil || value > maxConstant {
			return asm.makeSyntaxErr(fmt.Sprintf("wrong decimal value format near %s", line))
		}
		asm.appendCommand(ACommandConstant, uint16(value), line)
		return nil
	}
	if addr, exist := predefinedVariables[symbol]; exist {
		asm.appendCommand(ACommandVariable, uint16(addr), line)
		return nil
	}
	if !util.IsSymbol(symbol) {
		return asm.makeSyntaxErr(fmt.Sprintf("wrong variable or label format near %s", line))
	}
	// Placeholder until the second pass.
	asm.symbolLocations = append(asm.symbolLocations, symbolLocation{
		symbol: symbol,
		addr:   asm.currentInstructionAddr,
	})
	asm.appendCommand(ACommandLabel, 0, line)
	return nil
}

// transformLabelCommand records `(label)` at the address of the next instruction.
func (asm *Assembler) transformLabelCommand(line string) error {
	if line[len(line)-1] != ')' {
		return asm.makeSyntaxErr("wrong label format")
	}
	label := line[1 : len(line)-1]
	if !util.IsSymbol(label) {
		return asm.makeSyntaxErr("wrong label format")
	}
	if _, exist := asm.labelLocationMap[label]; exist {
		return asm.makeSyntaxErr("found duplicate label " + label)
	}
	asm.labelLocationMap[label] = asm.currentInstructionAddr
	return nil
}

// transformCCommand encodes dest=comp;jump where dest and jump are optional.
func (asm *Assembler) transformCCommand(line string) error {
	destCode, remain, err := asm.parseCCommandDestCode(line)
	if err != nil {
		return err
	}
	jumpCode, remain, err := asm.parseCCommandJumpCode(remain)
	if err != nil {
		return err
	}
	compCode, err := asm.parseCCommandCompCode(remain)
	if err != nil {
		return err
	}
	code, _ := strconv.ParseUint("111"+compCode+destCode+jumpCode, 2, 16)
	asm.appendCommand(CCommand, uint16(code), line)
	return nil
}

func (asm *Assembler) parseCCommandDestCode(line string) (string, string, error) {
	dest := strings.IndexByte(line, '=')
	if dest == -1 {
		return "000", line, nil
	}
	destCode, exist := cCommandDestMap[line[:dest]]
	if !exist {
		return "", "", asm.makeSyntaxErr(fmt.Sprintf("wrong c command of dest code format near %s", line))
	}
	return destCode, line[dest+1:], nil
}

func (asm *Assembler) parseCCommandJumpCode(line string) (string, string, error) {
	comp := strings.IndexByte(line, ';')
	if comp == -1 {
		return "000", line, nil
	}
	jumpCode, exist := cCommandJumpMap[line[comp+1:]]
	if !exist {
		return "", "", asm.makeSyntaxErr(fmt.Sprintf("wrong c command of jump code format near %s", line))
	}
	return jumpCode, line[:comp], nil
}

func (asm *Assembler) parseCCommandCompCode(line string) (string, error) {
	compCode, exist := cCommandCompMap[line]
	if !exist {
		return "", asm.makeSyntaxErr(fmt.Sprintf("wrong c command of comp code format near %s", line))
	}
	return compCode, nil
}

func (asm *Assembler) appendCommand(tp CommandType, code uint16, content string) {
	asm.commands = append(asm.commands, Command{
		Tp:              tp,
		Code:            code,
		Line:            asm.line,
		OriginalContent: content,
	})
	asm.currentInstructionAddr++
}

// FormatCode renders an instruction as 16 binary digits.
func FormatCode(code uint16) string {
	return fmt.Sprintf("%016b", code)
}

func (asm *Assembler) makeSyntaxErr(msg string) error {
	return fmt.Errorf("syntax err at line %d: %s", asm.line, msg)
}
