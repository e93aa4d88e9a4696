package vm

import (
	"fmt"
	"sort"
)

// There are four kinds of vm commands, they are:
// * Arithmetic commands: add, sub, neg, eq, gt, lt, and, or, not
// * Memory access commands: push|pop segment index
// * Program flow commands: label name, goto name, if-goto name
// * Function calling commands: function f k, call f n, return
// Blank lines and comment lines decode to SkippableCommand and never reach the CodeWriter.

type CommandType int

const (
	SkippableCommand CommandType = iota
	ArithmeticCommand
	PushCommand
	PopCommand
	LabelCommand
	GotoCommand
	IfGotoCommand
	FunctionCommand
	CallCommand
	ReturnCommand
)

var commandTypeNames = map[CommandType]string{
	SkippableCommand:  "skippable",
	ArithmeticCommand: "arithmetic",
	PushCommand:       "push",
	PopCommand:        "pop",
	LabelCommand:      "label",
	GotoCommand:       "goto",
	IfGotoCommand:     "if-goto",
	FunctionCommand:   "function",
	CallCommand:       "call",
	ReturnCommand:     "return",
}

func (tp CommandType) String() string {
	if name, ok := commandTypeNames[tp]; ok {
		return name
	}
	return fmt.Sprintf("CommandType(%d)", int(tp))
}

type ArithmeticOp int

const (
	OpAdd ArithmeticOp = iota
	OpSub
	OpNeg
	OpEq
	OpGt
	OpLt
	OpAnd
	OpOr
	OpNot
)

var arithmeticOpNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpNeg: "neg",
	OpEq:  "eq",
	OpGt:  "gt",
	OpLt:  "lt",
	OpAnd: "and",
	OpOr:  "or",
	OpNot: "not",
}

func (op ArithmeticOp) String() string {
	if op >= 0 && int(op) < len(arithmeticOpNames) {
		return arithmeticOpNames[op]
	}
	return fmt.Sprintf("ArithmeticOp(%d)", int(op))
}

// Segment is a named storage region addressed by push and pop.
type Segment int

const (
	SegmentConstant Segment = iota
	SegmentLocal
	SegmentArgument
	SegmentThis
	SegmentThat
	SegmentPointer
	SegmentTemp
	SegmentStatic
)

var segmentNames = [...]string{
	SegmentConstant: "constant",
	SegmentLocal:    "local",
	SegmentArgument: "argument",
	SegmentThis:     "this",
	SegmentThat:     "that",
	SegmentPointer:  "pointer",
	SegmentTemp:     "temp",
	SegmentStatic:   "static",
}

func (seg Segment) String() string {
	if seg >= 0 && int(seg) < len(segmentNames) {
		return segmentNames[seg]
	}
	return fmt.Sprintf("Segment(%d)", int(seg))
}

// baseSymbols maps the indirect segments to the register holding their base address.
var baseSymbols = map[Segment]string{
	SegmentLocal:    "LCL",
	SegmentArgument: "ARG",
	SegmentThis:     "THIS",
	SegmentThat:     "THAT",
}

var pointerSymbols = [...]string{"THIS", "THAT"}

const (
	tempBase = 5
	tempSize = 8
)

// keyword is one entry of the first-token table.
type keyword struct {
	tp CommandType
	op ArithmeticOp
}

var keyWordsMap = map[string]keyword{
	"add":      {tp: ArithmeticCommand, op: OpAdd},
	"sub":      {tp: ArithmeticCommand, op: OpSub},
	"neg":      {tp: ArithmeticCommand, op: OpNeg},
	"eq":       {tp: ArithmeticCommand, op: OpEq},
	"gt":       {tp: ArithmeticCommand, op: OpGt},
	"lt":       {tp: ArithmeticCommand, op: OpLt},
	"and":      {tp: ArithmeticCommand, op: OpAnd},
	"or":       {tp: ArithmeticCommand, op: OpOr},
	"not":      {tp: ArithmeticCommand, op: OpNot},
	"push":     {tp: PushCommand},
	"pop":      {tp: PopCommand},
	"label":    {tp: LabelCommand},
	"goto":     {tp: GotoCommand},
	"if-goto":  {tp: IfGotoCommand},
	"function": {tp: FunctionCommand},
	"call":     {tp: CallCommand},
	"return":   {tp: ReturnCommand},
}

var segmentsMap = map[string]Segment{
	"constant": SegmentConstant,
	"local":    SegmentLocal,
	"argument": SegmentArgument,
	"this":     SegmentThis,
	"that":     SegmentThat,
	"pointer":  SegmentPointer,
	"temp":     SegmentTemp,
	"static":   SegmentStatic,
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var (
	keyWordList = sortedKeys(keyWordsMap)
	segmentList = sortedKeys(segmentsMap)
)

// Command is one decoded vm command. Only the fields relevant to Type are set:
//   - ArithmeticCommand: Op
//   - PushCommand, PopCommand: Segment, Index
//   - LabelCommand, GotoCommand, IfGotoCommand: Name
//   - FunctionCommand: Name, Index (local count)
//   - CallCommand: Name, Index (argument count)
type Command struct {
	Type    CommandType
	Op      ArithmeticOp
	Segment Segment
	Name    string
	Index   int

	// Line is the 1-based source line, Text the line with its comment removed.
	Line int
	Text string
}

// String renders the command back in vm syntax.
func (cmd Command) String() string {
	switch cmd.Type {
	case ArithmeticCommand:
		return cmd.Op.String()
	case PushCommand, PopCommand:
		return fmt.Sprintf("%s %s %d", cmd.Type, cmd.Segment, cmd.Index)
	case LabelCommand, GotoCommand, IfGotoCommand:
		return fmt.Sprintf("%s %s", cmd.Type, cmd.Name)
	case FunctionCommand, CallCommand:
		return fmt.Sprintf("%s %s %d", cmd.Type, cmd.Name, cmd.Index)
	case ReturnCommand:
		return "return"
	default:
		return cmd.Type.String()
	}
}
