package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// CodeWriter emits hack assembler code for vm commands. One CodeWriter lives for the whole
// program so that the generated labels stay unique across files.
//
// The stack lives in RAM starting at StackBase and SP points at the next free slot. Most
// templates below start from one of two building blocks:
//
//	// push D          // pop into D
//	@SP                @SP
//	A=M                AM=M-1
//	M=D                D=M
//	@SP
//	M=M+1
type CodeWriter struct {
	output *bufio.Writer
	cfg    Config
	err    error

	fileName        string
	currentFunction string
	// callCounters disambiguates the labels of templates emitted more than once,
	// keyed by `function$op` for comparisons and by callee for return addresses.
	callCounters map[string]int
	// labels holds every label declared so far. EndLabel is in it from the start.
	labels map[string]bool
}

// generatedPrefix starts the function scoped part of every generated label. A vm label
// cannot begin with a digit, so `f$0ret.1` never meets a `label` declared inside f.
const generatedPrefix = "0"

func NewCodeWriter(w io.Writer, cfg Config) *CodeWriter {
	return &CodeWriter{
		output:       bufio.NewWriter(w),
		cfg:          cfg,
		callCounters: map[string]int{},
		labels:       map[string]bool{EndLabel: true},
	}
}

// SetFileName switches the static variable namespace to a new file.
func (cw *CodeWriter) SetFileName(fileName string) {
	cw.fileName = fileName
}

// Write dispatches cmd to the matching Write method. EmitErrors returned by it carry the
// position of cmd.
func (cw *CodeWriter) Write(cmd Command) error {
	var err error
	switch cmd.Type {
	case ArithmeticCommand:
		err = cw.WriteArithmetic(cmd.Op)
	case PushCommand, PopCommand:
		err = cw.WritePushPop(cmd.Type, cmd.Segment, cmd.Index)
	case LabelCommand:
		err = cw.WriteLabel(cmd.Name)
	case GotoCommand:
		err = cw.WriteGoto(cmd.Name)
	case IfGotoCommand:
		err = cw.WriteIf(cmd.Name)
	case FunctionCommand:
		err = cw.WriteFunction(cmd.Name, cmd.Index)
	case CallCommand:
		err = cw.WriteCall(cmd.Name, cmd.Index)
	case ReturnCommand:
		err = cw.WriteReturn()
	case SkippableCommand:
		return nil
	default:
		err = cw.makeError(cmd.String(), "unknown command type "+cmd.Type.String())
	}
	if emitErr, ok := err.(*EmitError); ok {
		emitErr.Line = cmd.Line
		if cmd.Text != "" {
			emitErr.Text = cmd.Text
		}
	}
	return err
}

// WriteArithmetic writes the code of an arithmetic or logical command. Binary operators pop
// y into D and combine it with x in place:
//
//	// add
//	@SP
//	AM=M-1
//	D=M
//	A=A-1
//	M=D+M
//
// eq, gt and lt compare x-y against zero and replace x with -1 (true) or 0 (false).
func (cw *CodeWriter) WriteArithmetic(op ArithmeticOp) error {
	if op < OpAdd || op > OpNot {
		return cw.makeError(op.String(), "unknown arithmetic operator")
	}
	if op == OpEq || op == OpGt || op == OpLt {
		return cw.compare(op)
	}
	cw.comment(op.String())
	switch op {
	case OpAdd:
		cw.binary("M=D+M")
	case OpSub:
		cw.binary("M=M-D")
	case OpAnd:
		cw.binary("M=D&M")
	case OpOr:
		cw.binary("M=D|M")
	case OpNeg:
		cw.unary("M=-M")
	case OpNot:
		cw.unary("M=!M")
	}
	return cw.err
}

var compareJumps = map[ArithmeticOp]string{
	OpEq: "JEQ",
	OpGt: "JGT",
	OpLt: "JLT",
}

func (cw *CodeWriter) binary(compute string) {
	cw.popD()
	cw.instructions("A=A-1", compute)
}

func (cw *CodeWriter) unary(compute string) {
	cw.instructions("@SP", "A=M-1", compute)
}

// compare writes
//
//	@SP
//	AM=M-1
//	D=M
//	A=A-1
//	D=M-D
//	@f$0op.true.N
//	D;JMP_IF
//	@SP
//	A=M-1
//	M=0
//	@f$0op.end.N
//	0;JMP
//	(f$0op.true.N)
//	@SP
//	A=M-1
//	M=-1
//	(f$0op.end.N)
func (cw *CodeWriter) compare(op ArithmeticOp) error {
	scope := cw.scopedLabel(generatedPrefix + op.String())
	id := cw.nextID(scope)
	trueLabel := fmt.Sprintf("%s.true.%d", scope, id)
	endLabel := fmt.Sprintf("%s.end.%d", scope, id)
	if err := cw.declare(op.String(), trueLabel, endLabel); err != nil {
		return err
	}
	cw.comment(op.String())
	cw.popD()
	cw.instructions(
		"A=A-1",
		"D=M-D",
		"@"+trueLabel,
		"D;"+compareJumps[op],
		"@SP",
		"A=M-1",
		"M=0",
		"@"+endLabel,
		"0;JMP",
	)
	cw.label(trueLabel)
	cw.instructions("@SP", "A=M-1", "M=-1")
	cw.label(endLabel)
	return cw.err
}

// WritePushPop writes the code of a push or pop command.
//
// constant pushes the index itself. local, argument, this and that go through their base
// register: push reads *(base+i), pop first stores base+i in R13 and then writes the popped
// value through it. pointer i is THIS or THAT, temp i is R(5+i) and static i is the symbol
// `file.i`, so every file gets its own static variables.
func (cw *CodeWriter) WritePushPop(tp CommandType, seg Segment, index int) error {
	text := fmt.Sprintf("%s %s %d", tp, seg, index)
	if tp != PushCommand && tp != PopCommand {
		return cw.makeError(text, "expected push or pop")
	}
	var symbol string
	switch seg {
	case SegmentConstant:
		if tp == PopCommand {
			return cw.makeError(text, "cannot pop into the constant segment")
		}
		if index < 0 || index > 32767 {
			return cw.makeError(text, "constant out of range")
		}
		cw.comment(text)
		cw.instructions("@"+strconv.Itoa(index), "D=A")
		cw.pushD()
		return cw.err
	case SegmentLocal, SegmentArgument, SegmentThis, SegmentThat:
		cw.comment(text)
		base := baseSymbols[seg]
		if tp == PushCommand {
			cw.instructions("@"+base, "D=M", "@"+strconv.Itoa(index), "A=D+A", "D=M")
			cw.pushD()
		} else {
			cw.instructions("@"+base, "D=M", "@"+strconv.Itoa(index), "D=D+A", "@R13", "M=D")
			cw.popD()
			cw.instructions("@R13", "A=M", "M=D")
		}
		return cw.err
	case SegmentPointer:
		if index < 0 || index >= len(pointerSymbols) {
			return cw.makeError(text, "pointer index must be 0 or 1")
		}
		symbol = pointerSymbols[index]
	case SegmentTemp:
		if index < 0 || index >= tempSize {
			return cw.makeError(text, fmt.Sprintf("temp index must be in 0..%d", tempSize-1))
		}
		symbol = "R" + strconv.Itoa(tempBase+index)
	case SegmentStatic:
		symbol = fmt.Sprintf("%s.%d", cw.fileName, index)
	default:
		return cw.makeError(text, "unknown segment")
	}
	cw.comment(text)
	if tp == PushCommand {
		cw.instructions("@"+symbol, "D=M")
		cw.pushD()
	} else {
		cw.popD()
		cw.instructions("@"+symbol, "M=D")
	}
	return cw.err
}

// WriteLabel declares `function$label`.
func (cw *CodeWriter) WriteLabel(label string) error {
	scoped := cw.scopedLabel(label)
	if err := cw.declare("label "+label, scoped); err != nil {
		return err
	}
	cw.comment("label " + label)
	cw.label(scoped)
	return cw.err
}

func (cw *CodeWriter) WriteGoto(label string) error {
	cw.comment("goto " + label)
	cw.instructions("@"+cw.scopedLabel(label), "0;JMP")
	return cw.err
}

// WriteIf pops the topmost value and jumps when it is not zero.
func (cw *CodeWriter) WriteIf(label string) error {
	cw.comment("if-goto " + label)
	cw.popD()
	cw.instructions("@"+cw.scopedLabel(label), "D;JNE")
	return cw.err
}

// WriteFunction declares the entry label of a function and pushes 0 once per local variable.
// Labels written after it are scoped by the function name.
func (cw *CodeWriter) WriteFunction(name string, nLocals int) error {
	text := fmt.Sprintf("function %s %d", name, nLocals)
	if err := cw.declare(text, name); err != nil {
		return err
	}
	cw.comment(text)
	cw.currentFunction = name
	cw.label(name)
	for i := 0; i < nLocals; i++ {
		if err := cw.WritePushPop(PushCommand, SegmentConstant, 0); err != nil {
			return err
		}
	}
	return cw.err
}

// WriteCall saves the caller's frame and jumps to the callee:
//
//	push f$0ret.N
//	push LCL
//	push ARG
//	push THIS
//	push THAT
//	ARG = SP-5-nArgs
//	LCL = SP
//	goto f
//	(f$0ret.N)
func (cw *CodeWriter) WriteCall(name string, nArgs int) error {
	text := fmt.Sprintf("call %s %d", name, nArgs)
	returnLabel := fmt.Sprintf("%s$%sret.%d", name, generatedPrefix, cw.nextID(name))
	if err := cw.declare(text, returnLabel); err != nil {
		return err
	}
	cw.comment(text)
	cw.instructions("@"+returnLabel, "D=A")
	cw.pushD()
	for _, register := range []string{"LCL", "ARG", "THIS", "THAT"} {
		cw.instructions("@"+register, "D=M")
		cw.pushD()
	}
	cw.instructions(
		"@SP",
		"D=M",
		"@5",
		"D=D-A",
		"@"+strconv.Itoa(nArgs),
		"D=D-A",
		"@ARG",
		"M=D",
		"@SP",
		"D=M",
		"@LCL",
		"M=D",
		"@"+name,
		"0;JMP",
	)
	cw.label(returnLabel)
	return cw.err
}

// WriteReturn restores the caller's frame. frame (R13) is LCL and the return address (R14)
// is *(frame-5). The return value replaces argument 0, so the return address has to be read
// before that write, and SP becomes ARG+1 before ARG itself is restored. THAT, THIS, ARG and
// LCL are then read from frame-1 to frame-4.
func (cw *CodeWriter) WriteReturn() error {
	cw.comment("return")
	cw.instructions(
		"@LCL",
		"D=M",
		"@R13",
		"M=D",
		"@5",
		"A=D-A",
		"D=M",
		"@R14",
		"M=D",
	)
	cw.popD()
	cw.instructions(
		"@ARG",
		"A=M",
		"M=D",
		"@ARG",
		"D=M+1",
		"@SP",
		"M=D",
	)
	for _, register := range []string{"THAT", "THIS", "ARG", "LCL"} {
		cw.instructions("@R13", "AM=M-1", "D=M", "@"+register, "M=D")
	}
	cw.instructions("@R14", "A=M", "0;JMP")
	return cw.err
}

// WriteBootstrap sets SP to the stack base and calls the entry function. Should the entry
// function ever return, execution continues at the terminal loop.
func (cw *CodeWriter) WriteBootstrap() error {
	cw.comment("bootstrap")
	cw.instructions("@"+strconv.Itoa(cw.cfg.StackBase), "D=A", "@SP", "M=D")
	if err := cw.WriteCall(cw.cfg.EntryFunction, 0); err != nil {
		return err
	}
	cw.instructions("@"+EndLabel, "0;JMP")
	return cw.err
}

// Close writes the terminal loop and flushes the output.
func (cw *CodeWriter) Close() error {
	cw.comment("end")
	cw.label(EndLabel)
	cw.instructions("@"+EndLabel, "0;JMP")
	return cw.Flush()
}

// EndLabel is the label of the infinite loop every translated program ends in.
const EndLabel = "END"

func (cw *CodeWriter) Flush() error {
	if cw.err != nil {
		return cw.err
	}
	if err := cw.output.Flush(); err != nil {
		cw.err = err
	}
	return cw.err
}

func (cw *CodeWriter) scopedLabel(label string) string {
	return cw.currentFunction + "$" + label
}

func (cw *CodeWriter) nextID(key string) int {
	id := cw.callCounters[key]
	cw.callCounters[key] = id + 1
	return id
}

func (cw *CodeWriter) pushD() {
	cw.instructions("@SP", "A=M", "M=D", "@SP", "M=M+1")
}

func (cw *CodeWriter) popD() {
	cw.instructions("@SP", "AM=M-1", "D=M")
}

func (cw *CodeWriter) comment(text string) {
	if cw.cfg.Comments {
		cw.writeLine("// " + text)
	}
}

// declare records labels before any of their code is written. A label that is already
// declared is an EmitError.
func (cw *CodeWriter) declare(text string, labels ...string) error {
	for _, label := range labels {
		if cw.labels[label] {
			if label == EndLabel {
				return cw.makeError(text, EndLabel+" is reserved for the end loop")
			}
			return cw.makeError(text, "duplicate label "+label)
		}
	}
	for _, label := range labels {
		cw.labels[label] = true
	}
	return nil
}

func (cw *CodeWriter) label(name string) {
	cw.writeLine("(" + name + ")")
}

func (cw *CodeWriter) instructions(lines ...string) {
	for _, line := range lines {
		cw.writeLine("    " + line)
	}
}

func (cw *CodeWriter) writeLine(line string) {
	if cw.err != nil {
		return
	}
	if _, err := cw.output.WriteString(line + "\n"); err != nil {
		cw.err = fmt.Errorf("write output: %w", err)
	}
}

func (cw *CodeWriter) makeError(text, msg string) error {
	return &EmitError{File: cw.fileName, Text: text, Msg: msg}
}
