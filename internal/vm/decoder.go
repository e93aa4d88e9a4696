package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xiaobogaga/hackvm/util"
)

// Decoder turns the lines of one vm file into Commands. Each line holds at most one command,
// optionally followed by a `//` comment. Blank and comment-only lines are skipped.
type Decoder struct {
	fileName string
	lenient  bool
	scanner  *bufio.Scanner
	line     int

	next *Command
	err  error
	// failed is set once a read error has been returned; it ends the decoding.
	failed bool
}

// NewDecoder reads vm commands from rd. fileName is only used in errors. In lenient mode
// lines starting with an unknown keyword are skipped instead of failing.
func NewDecoder(rd io.Reader, fileName string, lenient bool) *Decoder {
	return &Decoder{
		fileName: fileName,
		lenient:  lenient,
		scanner:  bufio.NewScanner(rd),
	}
}

// HasMore reports whether Next will return a command or an error other than io.EOF.
func (d *Decoder) HasMore() bool {
	if d.failed {
		return false
	}
	if d.next == nil && d.err == nil {
		cmd, err := d.advance()
		if err != nil {
			d.err = err
		} else {
			d.next = &cmd
		}
	}
	return d.next != nil || (d.err != nil && d.err != io.EOF)
}

// Next returns the next meaningful command, or io.EOF once the input is exhausted.
// A DecodeError only consumes its own line, so decoding may resume after it. A read error
// is returned by every later call.
func (d *Decoder) Next() (Command, error) {
	if d.failed {
		return Command{}, d.err
	}
	if !d.HasMore() {
		return Command{}, io.EOF
	}
	if d.next != nil {
		cmd := *d.next
		d.next = nil
		return cmd, nil
	}
	err := d.err
	if _, ok := err.(*DecodeError); ok {
		d.err = nil
	} else {
		d.failed = true
	}
	return Command{}, err
}

// Line returns the number of lines read so far.
func (d *Decoder) Line() int {
	return d.line
}

func (d *Decoder) advance() (Command, error) {
	for d.scanner.Scan() {
		d.line++
		text := d.scanner.Text()
		if d.line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		cmd, err := d.decodeLine(text)
		if err != nil {
			return Command{}, err
		}
		if cmd.Type != SkippableCommand {
			return cmd, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Command{}, fmt.Errorf("read %s: %w", d.fileName, err)
	}
	return Command{}, io.EOF
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func (d *Decoder) decodeLine(line string) (Command, error) {
	text := stripComment(line)
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return Command{Type: SkippableCommand, Line: d.line}, nil
	}
	kw, ok := keyWordsMap[tokens[0]]
	if !ok {
		if d.lenient {
			return Command{Type: SkippableCommand, Line: d.line, Text: text}, nil
		}
		return Command{}, d.makeError(text, "unknown command "+tokens[0], closestMatch(tokens[0], keyWordList))
	}
	cmd := Command{Type: kw.tp, Line: d.line, Text: text}
	args := tokens[1:]
	var err error
	switch kw.tp {
	case ArithmeticCommand:
		cmd.Op = kw.op
		err = d.expectArgs(text, args, 0)
	case ReturnCommand:
		err = d.expectArgs(text, args, 0)
	case PushCommand, PopCommand:
		if err = d.expectArgs(text, args, 2); err != nil {
			break
		}
		seg, exist := segmentsMap[args[0]]
		if !exist {
			err = d.makeError(text, "unknown segment "+args[0], closestMatch(args[0], segmentList))
			break
		}
		cmd.Segment = seg
		cmd.Index, err = d.getIntegerValue(text, args[1])
	case LabelCommand, GotoCommand, IfGotoCommand:
		if err = d.expectArgs(text, args, 1); err != nil {
			break
		}
		cmd.Name, err = d.getSymbol(text, args[0])
	case FunctionCommand, CallCommand:
		if err = d.expectArgs(text, args, 2); err != nil {
			break
		}
		if cmd.Name, err = d.getSymbol(text, args[0]); err != nil {
			break
		}
		cmd.Index, err = d.getIntegerValue(text, args[1])
	}
	if err != nil {
		return Command{}, err
	}
	return cmd, nil
}

func (d *Decoder) expectArgs(text string, args []string, n int) error {
	if len(args) == n {
		return nil
	}
	if len(args) < n {
		return d.makeError(text, fmt.Sprintf("expected %d arguments, got %d", n, len(args)), "")
	}
	return d.makeError(text, "unexpected token "+args[n], "")
}

// getIntegerValue parses a non-negative 16-bit decimal argument.
func (d *Decoder) getIntegerValue(text, token string) (int, error) {
	value, err := strconv.ParseInt(token, 10, 16)
	if err != nil {
		return 0, d.makeError(text, fmt.Sprintf("expected a 16-bit number, got %s", token), "")
	}
	if value < 0 {
		return 0, d.makeError(text, fmt.Sprintf("negative number %s", token), "")
	}
	return int(value), nil
}

func (d *Decoder) getSymbol(text, token string) (string, error) {
	if !util.IsSymbol(token) {
		return "", d.makeError(text, "invalid symbol "+token, "")
	}
	return token, nil
}

func (d *Decoder) makeError(text, msg, hint string) error {
	return &DecodeError{File: d.fileName, Line: d.line, Text: text, Msg: msg, Hint: hint}
}
