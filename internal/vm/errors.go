package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DecodeError reports a malformed command line.
type DecodeError struct {
	File string
	Line int
	Text string
	Msg  string
	// Hint is a suggested keyword when the offending token looks like a typo.
	Hint string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("SyntaxError: %s near %q at %s:%d", e.Msg, e.Text, e.File, e.Line)
	if e.Hint != "" {
		msg += fmt.Sprintf(", did you mean %q?", e.Hint)
	}
	return msg
}

// EmitError reports a command that decoded fine but has no translation,
// such as an out of range pointer index.
type EmitError struct {
	File string
	Line int
	Text string
	Msg  string
}

func (e *EmitError) Error() string {
	return fmt.Sprintf("EmitError: %s near %q at %s:%d", e.Msg, e.Text, e.File, e.Line)
}

// closestMatch returns the best fuzzy match of target among candidates, or "".
func closestMatch(target string, candidates []string) string {
	if target == "" {
		return ""
	}
	ranks := fuzzy.RankFindFold(target, candidates)
	if len(ranks) == 0 {
		return ""
	}
	best := ranks[0]
	for _, r := range ranks[1:] {
		if r.Distance < best.Distance {
			best = r
		}
	}
	return best.Target
}

// Report renders err as a multi-line diagnostic:
//
//	error: syntax error
//	 --> Main.vm:3
//	  |
//	3 | push foo 1
//	  | unknown segment foo, did you mean "local"?
//
// Errors that are neither DecodeError nor EmitError are rendered on one line. With color on,
// the global color.NoColor setting still applies.
func Report(err error, withColor bool) string {
	palette := []*color.Color{
		color.New(color.FgRed, color.Bold),
		color.New(color.FgBlue),
		color.New(color.FgYellow),
	}
	if !withColor {
		for _, c := range palette {
			c.DisableColor()
		}
	}
	redBold, blue, yellow := palette[0].SprintFunc(), palette[1].SprintFunc(), palette[2].SprintFunc()

	var (
		classification, file, text, msg, hint string
		line                                  int
	)
	var decodeErr *DecodeError
	var emitErr *EmitError
	switch {
	case errors.As(err, &decodeErr):
		classification = "syntax error"
		file, line, text, msg, hint = decodeErr.File, decodeErr.Line, decodeErr.Text, decodeErr.Msg, decodeErr.Hint
	case errors.As(err, &emitErr):
		classification = "translation error"
		file, line, text, msg = emitErr.File, emitErr.Line, emitErr.Text, emitErr.Msg
	default:
		return redBold("error: ") + err.Error()
	}

	lineNum := fmt.Sprintf("%d", line)
	margin := strings.Repeat(" ", len(lineNum))
	if hint != "" {
		msg += fmt.Sprintf(", did you mean %q?", hint)
	}
	lines := []string{
		redBold("error: " + classification),
		fmt.Sprintf("%s%s %s:%d", margin, blue("-->"), file, line),
		blue(margin + " |"),
		fmt.Sprintf("%s %s", blue(lineNum+" |"), text),
		fmt.Sprintf("%s %s", blue(margin+" |"), yellow(msg)),
	}
	return strings.Join(lines, "\n")
}
