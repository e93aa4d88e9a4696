package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(comments bool) (*CodeWriter, *bytes.Buffer) {
	cfg := DefaultConfig()
	cfg.Comments = comments
	out := &bytes.Buffer{}
	cw := NewCodeWriter(out, cfg)
	cw.SetFileName("Foo")
	return cw, out
}

func outputLines(t *testing.T, cw *CodeWriter, out *bytes.Buffer) []string {
	require.NoError(t, cw.Flush())
	text := strings.TrimRight(out.String(), "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

func TestCodeWriter_PushConstant(t *testing.T) {
	cw, out := newTestWriter(true)
	require.NoError(t, cw.WritePushPop(PushCommand, SegmentConstant, 7))
	assert.Equal(t, []string{
		"// push constant 7",
		"@7", "D=A",
		"@SP", "A=M", "M=D", "@SP", "M=M+1",
	}, outputLines(t, cw, out))
}

func TestCodeWriter_IndirectSegments(t *testing.T) {
	testData := []struct {
		seg  Segment
		base string
	}{
		{SegmentLocal, "LCL"},
		{SegmentArgument, "ARG"},
		{SegmentThis, "THIS"},
		{SegmentThat, "THAT"},
	}
	for _, data := range testData {
		cw, out := newTestWriter(false)
		require.NoError(t, cw.WritePushPop(PushCommand, data.seg, 3))
		assert.Equal(t, []string{
			"@" + data.base, "D=M", "@3", "A=D+A", "D=M",
			"@SP", "A=M", "M=D", "@SP", "M=M+1",
		}, outputLines(t, cw, out), data.seg.String())

		cw, out = newTestWriter(false)
		require.NoError(t, cw.WritePushPop(PopCommand, data.seg, 3))
		assert.Equal(t, []string{
			"@" + data.base, "D=M", "@3", "D=D+A", "@R13", "M=D",
			"@SP", "AM=M-1", "D=M",
			"@R13", "A=M", "M=D",
		}, outputLines(t, cw, out), data.seg.String())
	}
}

func TestCodeWriter_FixedSegments(t *testing.T) {
	testData := []struct {
		seg    Segment
		index  int
		symbol string
	}{
		{SegmentPointer, 0, "THIS"},
		{SegmentPointer, 1, "THAT"},
		{SegmentTemp, 0, "R5"},
		{SegmentTemp, 7, "R12"},
		{SegmentStatic, 4, "Foo.4"},
	}
	for _, data := range testData {
		cw, out := newTestWriter(false)
		require.NoError(t, cw.WritePushPop(PushCommand, data.seg, data.index))
		require.NoError(t, cw.WritePushPop(PopCommand, data.seg, data.index))
		assert.Equal(t, []string{
			"@" + data.symbol, "D=M",
			"@SP", "A=M", "M=D", "@SP", "M=M+1",
			"@SP", "AM=M-1", "D=M",
			"@" + data.symbol, "M=D",
		}, outputLines(t, cw, out), data.symbol)
	}
}

func TestCodeWriter_StaticNamespacePerFile(t *testing.T) {
	cw, out := newTestWriter(false)
	cw.SetFileName("A")
	require.NoError(t, cw.WritePushPop(PushCommand, SegmentStatic, 0))
	cw.SetFileName("B")
	require.NoError(t, cw.WritePushPop(PushCommand, SegmentStatic, 0))
	lines := outputLines(t, cw, out)
	assert.Contains(t, lines, "@A.0")
	assert.Contains(t, lines, "@B.0")
}

func TestCodeWriter_EmitErrors(t *testing.T) {
	testData := []struct {
		tp    CommandType
		seg   Segment
		index int
		msg   string
	}{
		{PopCommand, SegmentConstant, 1, "cannot pop into the constant segment"},
		{PushCommand, SegmentPointer, 2, "pointer index must be 0 or 1"},
		{PopCommand, SegmentPointer, 5, "pointer index must be 0 or 1"},
		{PushCommand, SegmentTemp, 8, "temp index must be in 0..7"},
		{PushCommand, Segment(42), 0, "unknown segment"},
		{LabelCommand, SegmentLocal, 0, "expected push or pop"},
	}
	for _, data := range testData {
		cw, out := newTestWriter(true)
		err := cw.WritePushPop(data.tp, data.seg, data.index)
		var emitError *EmitError
		require.True(t, errors.As(err, &emitError), data.msg)
		assert.Equal(t, data.msg, emitError.Msg)
		assert.Equal(t, "Foo", emitError.File)
		assert.Empty(t, outputLines(t, cw, out), "nothing is written for a rejected command")
	}

	cw, out := newTestWriter(true)
	var emitError *EmitError
	require.True(t, errors.As(cw.WriteArithmetic(ArithmeticOp(99)), &emitError))
	assert.Equal(t, "unknown arithmetic operator", emitError.Msg)
	assert.Empty(t, outputLines(t, cw, out), "nothing is written for an unknown operator")
}

func TestCodeWriter_WriteCarriesPosition(t *testing.T) {
	cw, _ := newTestWriter(true)
	err := cw.Write(Command{Type: PushCommand, Segment: SegmentPointer, Index: 3, Line: 12, Text: "push pointer 3"})
	var emitError *EmitError
	require.True(t, errors.As(err, &emitError))
	assert.Equal(t, 12, emitError.Line)
	assert.Equal(t, "push pointer 3", emitError.Text)
	assert.Equal(t, `EmitError: pointer index must be 0 or 1 near "push pointer 3" at Foo:12`, err.Error())
}

func TestCodeWriter_Arithmetic(t *testing.T) {
	testData := []struct {
		op      ArithmeticOp
		compute []string
	}{
		{OpAdd, []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=D+M"}},
		{OpSub, []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=M-D"}},
		{OpAnd, []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=D&M"}},
		{OpOr, []string{"@SP", "AM=M-1", "D=M", "A=A-1", "M=D|M"}},
		{OpNeg, []string{"@SP", "A=M-1", "M=-M"}},
		{OpNot, []string{"@SP", "A=M-1", "M=!M"}},
	}
	for _, data := range testData {
		cw, out := newTestWriter(true)
		require.NoError(t, cw.WriteArithmetic(data.op))
		assert.Equal(t, append([]string{"// " + data.op.String()}, data.compute...), outputLines(t, cw, out))
	}
}

func TestCodeWriter_ComparisonLabelsAreUnique(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteFunction("Foo.bar", 0))
	require.NoError(t, cw.WriteArithmetic(OpEq))
	require.NoError(t, cw.WriteArithmetic(OpEq))
	require.NoError(t, cw.WriteArithmetic(OpLt))
	require.NoError(t, cw.WriteFunction("Foo.baz", 0))
	require.NoError(t, cw.WriteArithmetic(OpEq))
	lines := outputLines(t, cw, out)

	for _, label := range []string{
		"(Foo.bar$0eq.true.0)", "(Foo.bar$0eq.end.0)",
		"(Foo.bar$0eq.true.1)", "(Foo.bar$0eq.end.1)",
		"(Foo.bar$0lt.true.0)", "(Foo.bar$0lt.end.0)",
		"(Foo.baz$0eq.true.0)", "(Foo.baz$0eq.end.0)",
	} {
		assert.Contains(t, lines, label)
	}
	assert.Contains(t, lines, "D;JEQ")
	assert.Contains(t, lines, "D;JLT")
	assertLabelsUnique(t, lines)
}

func TestCodeWriter_Compare(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteArithmetic(OpGt))
	assert.Equal(t, []string{
		"@SP", "AM=M-1", "D=M",
		"A=A-1", "D=M-D",
		"@$0gt.true.0", "D;JGT",
		"@SP", "A=M-1", "M=0",
		"@$0gt.end.0", "0;JMP",
		"($0gt.true.0)",
		"@SP", "A=M-1", "M=-1",
		"($0gt.end.0)",
	}, outputLines(t, cw, out))
}

func TestCodeWriter_ProgramFlow(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteFunction("Foo.loop", 0))
	require.NoError(t, cw.WriteLabel("LOOP"))
	require.NoError(t, cw.WriteIf("LOOP"))
	require.NoError(t, cw.WriteGoto("LOOP"))
	assert.Equal(t, []string{
		"(Foo.loop)",
		"(Foo.loop$LOOP)",
		"@SP", "AM=M-1", "D=M", "@Foo.loop$LOOP", "D;JNE",
		"@Foo.loop$LOOP", "0;JMP",
	}, outputLines(t, cw, out))
}

func TestCodeWriter_FunctionInitializesLocals(t *testing.T) {
	cw, out := newTestWriter(true)
	require.NoError(t, cw.WriteFunction("Foo.main", 3))
	lines := outputLines(t, cw, out)
	assert.Equal(t, "// function Foo.main 3", lines[0])
	assert.Equal(t, "(Foo.main)", lines[1])
	count := 0
	for _, line := range lines {
		if line == "// push constant 0" {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestCodeWriter_Call(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteCall("Foo.fib", 2))
	lines := outputLines(t, cw, out)
	push := []string{"@SP", "A=M", "M=D", "@SP", "M=M+1"}
	expected := []string{"@Foo.fib$0ret.0", "D=A"}
	expected = append(expected, push...)
	for _, register := range []string{"LCL", "ARG", "THIS", "THAT"} {
		expected = append(expected, "@"+register, "D=M")
		expected = append(expected, push...)
	}
	expected = append(expected,
		"@SP", "D=M", "@5", "D=D-A", "@2", "D=D-A", "@ARG", "M=D",
		"@SP", "D=M", "@LCL", "M=D",
		"@Foo.fib", "0;JMP",
		"(Foo.fib$0ret.0)",
	)
	assert.Equal(t, expected, lines)
}

func TestCodeWriter_CallSitesGetDistinctReturnLabels(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteFunction("Foo.f", 0))
	require.NoError(t, cw.WriteCall("Foo.f", 1))
	require.NoError(t, cw.WriteCall("Foo.f", 1))
	require.NoError(t, cw.WriteCall("Foo.g", 0))
	lines := outputLines(t, cw, out)
	assert.Contains(t, lines, "(Foo.f$0ret.0)")
	assert.Contains(t, lines, "(Foo.f$0ret.1)")
	assert.Contains(t, lines, "(Foo.g$0ret.0)")
	assertLabelsUnique(t, lines)
}

func TestCodeWriter_Return(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteReturn())
	lines := outputLines(t, cw, out)
	assert.Equal(t, []string{
		"@LCL", "D=M", "@R13", "M=D",
		"@5", "A=D-A", "D=M", "@R14", "M=D",
		"@SP", "AM=M-1", "D=M",
		"@ARG", "A=M", "M=D",
		"@ARG", "D=M+1", "@SP", "M=D",
		"@R13", "AM=M-1", "D=M", "@THAT", "M=D",
		"@R13", "AM=M-1", "D=M", "@THIS", "M=D",
		"@R13", "AM=M-1", "D=M", "@ARG", "M=D",
		"@R13", "AM=M-1", "D=M", "@LCL", "M=D",
		"@R14", "A=M", "0;JMP",
	}, lines)
}

func TestCodeWriter_BootstrapAndClose(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteBootstrap())
	require.NoError(t, cw.Close())
	lines := outputLines(t, cw, out)
	assert.Equal(t, []string{"@256", "D=A", "@SP", "M=D", "@Sys.init$0ret.0"}, lines[:5])
	assert.Contains(t, lines, "@Sys.init")
	assert.Contains(t, lines, "(Sys.init$0ret.0)")
	assert.Equal(t, []string{"@END", "0;JMP", "(END)", "@END", "0;JMP"}, lines[len(lines)-5:])
}

func TestCodeWriter_SkippableWritesNothing(t *testing.T) {
	cw, out := newTestWriter(true)
	require.NoError(t, cw.Write(Command{Type: SkippableCommand}))
	assert.Empty(t, outputLines(t, cw, out))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("sink closed")
}

func TestCodeWriter_WriteErrorIsSticky(t *testing.T) {
	cw := NewCodeWriter(failingWriter{}, DefaultConfig())
	for i := 0; i < 2000; i++ {
		if err := cw.WritePushPop(PushCommand, SegmentConstant, i); err != nil {
			break
		}
	}
	err := cw.Close()
	assert.ErrorContains(t, err, "sink closed")
	assert.Error(t, cw.WriteArithmetic(OpAdd))
}

func assertLabelsUnique(t *testing.T, lines []string) {
	seen := map[string]bool{}
	for _, line := range lines {
		if strings.HasPrefix(line, "(") {
			assert.False(t, seen[line], "duplicate label %s", line)
			seen[line] = true
		}
	}
}

func TestCodeWriter_DuplicateLabels(t *testing.T) {
	testData := []struct {
		name  string
		write func(cw *CodeWriter) error
		msg   string
	}{
		{"label twice", func(cw *CodeWriter) error {
			require.NoError(t, cw.WriteFunction("Foo.f", 0))
			require.NoError(t, cw.WriteLabel("LOOP"))
			return cw.WriteLabel("LOOP")
		}, "duplicate label Foo.f$LOOP"},
		{"function twice", func(cw *CodeWriter) error {
			require.NoError(t, cw.WriteFunction("Foo.f", 0))
			cw.SetFileName("Bar")
			return cw.WriteFunction("Foo.f", 1)
		}, "duplicate label Foo.f"},
		{"function named END", func(cw *CodeWriter) error {
			return cw.WriteFunction(EndLabel, 0)
		}, "END is reserved for the end loop"},
		{"function named like a return address", func(cw *CodeWriter) error {
			require.NoError(t, cw.WriteCall("Foo.f", 0))
			return cw.WriteFunction("Foo.f$0ret.0", 0)
		}, "duplicate label Foo.f$0ret.0"},
		{"return address taken by a function", func(cw *CodeWriter) error {
			require.NoError(t, cw.WriteFunction("Foo.g$0ret.0", 0))
			return cw.WriteCall("Foo.g", 0)
		}, "duplicate label Foo.g$0ret.0"},
		{"comparison label taken by a function", func(cw *CodeWriter) error {
			require.NoError(t, cw.WriteFunction("Foo.f$0eq.true.0", 0))
			require.NoError(t, cw.WriteFunction("Foo.f", 0))
			return cw.WriteArithmetic(OpEq)
		}, "duplicate label Foo.f$0eq.true.0"},
	}
	for _, tt := range testData {
		t.Run(tt.name, func(t *testing.T) {
			cw, out := newTestWriter(true)
			err := tt.write(cw)
			var emitError *EmitError
			require.True(t, errors.As(err, &emitError))
			assert.Equal(t, tt.msg, emitError.Msg)
			assertLabelsUnique(t, outputLines(t, cw, out))
		})
	}
}

func TestCodeWriter_GeneratedLabelsAvoidVMLabels(t *testing.T) {
	cw, out := newTestWriter(false)
	require.NoError(t, cw.WriteFunction("Foo.f", 0))
	for _, label := range []string{"ret.0", "eq.true.0", "eq.end.0", "END"} {
		require.NoError(t, cw.WriteLabel(label))
	}
	require.NoError(t, cw.WriteArithmetic(OpEq))
	require.NoError(t, cw.WriteCall("Foo.f", 0))
	require.NoError(t, cw.Close())
	lines := outputLines(t, cw, out)
	assert.Contains(t, lines, "(Foo.f$ret.0)")
	assert.Contains(t, lines, "(Foo.f$0ret.0)")
	assert.Contains(t, lines, "(Foo.f$eq.true.0)")
	assert.Contains(t, lines, "(Foo.f$0eq.true.0)")
	assert.Contains(t, lines, "(Foo.f$END)")
	assertLabelsUnique(t, lines)
}
