package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/peterh/liner"
	"github.com/urfave/cli"

	"github.com/xiaobogaga/hackvm/internal/asm"
	"github.com/xiaobogaga/hackvm/internal/cpu"
	"github.com/xiaobogaga/hackvm/internal/vm"
	"github.com/xiaobogaga/hackvm/util"
)

// A simple program to translate hack vm codes to hack assembler.

var (
	output      string
	verbose     bool
	noColor     bool
	noComments  bool
	lenient     bool
	bootstrap   bool
	noBootstrap bool
	entry       string
	maxCycles   int

	logger = log.New(io.Discard, "[vmtranslator] ", 0)
)

const historyFile = ".vmtranslator_history"

// config builds the translation config of p from the command line flags.
func config(p *program) vm.Config {
	cfg := vm.DefaultConfig()
	cfg.Bootstrap = p.wholeProgram
	if bootstrap {
		cfg.Bootstrap = true
	}
	if noBootstrap {
		cfg.Bootstrap = false
	}
	if entry != "" {
		cfg.EntryFunction = entry
	}
	cfg.Comments = !noComments
	cfg.Lenient = lenient
	return cfg
}

func translateProgram(p *program, cfg vm.Config) ([]byte, error) {
	var buf bytes.Buffer
	translator := vm.NewTranslator(&buf, cfg)
	for _, file := range p.files {
		logger.Printf("translating %s", file)
		f, err := os.Open(file)
		if err != nil {
			return nil, err
		}
		err = translator.TranslateFile(staticName(file), f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	if err := translator.Close(); err != nil {
		return nil, err
	}
	files, commands := translator.Stats()
	logger.Printf("translated %d commands from %d files", commands, files)
	return buf.Bytes(), nil
}

func fail(err error) error {
	fmt.Fprintln(os.Stderr, vm.Report(err, !noColor))
	return cli.NewExitError("", 1)
}

func setup(c *cli.Context) (*program, error) {
	if verbose {
		logger.SetOutput(os.Stderr)
	}
	if noColor {
		color.NoColor = true
	}
	if c.NArg() != 1 {
		return nil, cli.NewExitError("expected exactly one .vm file or directory", 2)
	}
	p, err := collectProgram(c.Args().First())
	if err != nil {
		return nil, fail(err)
	}
	return p, nil
}

func translateAction(c *cli.Context) error {
	p, err := setup(c)
	if err != nil {
		return err
	}
	code, err := translateProgram(p, config(p))
	if err != nil {
		return fail(err)
	}
	path := p.output
	if output != "" {
		path = output
	}
	if err := os.WriteFile(path, code, 0644); err != nil {
		return fail(err)
	}
	logger.Printf("saved to %s", path)
	return nil
}

func runAction(c *cli.Context) error {
	p, err := setup(c)
	if err != nil {
		return err
	}
	cfg := config(p)
	code, err := translateProgram(p, cfg)
	if err != nil {
		return fail(err)
	}
	assembler := asm.New()
	if _, err := assembler.Parse(bytes.NewReader(code)); err != nil {
		return fail(err)
	}
	machine := cpu.New(assembler.Binary())
	machine.RAM[cpu.SP] = int16(cfg.StackBase)
	cycles, err := machine.Run(maxCycles)
	if err != nil {
		return fail(err)
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %d\n", bold("cycles:"), cycles)
	fmt.Printf("%s %d\n", bold("SP:"), machine.RAM[cpu.SP])
	fmt.Printf("%s %v\n", bold("stack:"), machine.StackFrom(cfg.StackBase))
	if machine.Halted() {
		fmt.Println(color.GreenString("halted"))
	} else {
		fmt.Println(color.YellowString("still running after %d cycles", maxCycles))
	}
	return nil
}

func replAction(c *cli.Context) error {
	if verbose {
		logger.SetOutput(os.Stderr)
	}
	if noColor {
		color.NoColor = true
	}
	cfg := vm.DefaultConfig()
	cfg.Comments = !noComments
	fileName := "Repl"
	writer := vm.NewCodeWriter(os.Stdout, cfg)
	writer.SetFileName(fileName)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Println("hack vm translator, :help for commands")
	for {
		line, err := ln.Prompt("vm> ")
		if err != nil {
			fmt.Println()
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(line, ":") {
			fields := strings.Fields(line)
			switch fields[0] {
			case ":quit", ":q":
				return saveHistory(ln, histPath)
			case ":file":
				if len(fields) != 2 || !util.IsSymbol(fields[1]) {
					fmt.Println(color.RedString("usage: :file Name, where Name is a valid symbol"))
					continue
				}
				fileName = fields[1]
				writer.SetFileName(fileName)
			case ":help":
				fmt.Println("  :file Name   use Name as the static variable namespace")
				fmt.Println("  :quit        leave")
			default:
				fmt.Println(color.RedString("unknown command %s", fields[0]))
			}
			continue
		}

		decoder := vm.NewDecoder(strings.NewReader(line), fileName, false)
		for decoder.HasMore() {
			cmd, err := decoder.Next()
			if err == nil {
				err = writer.Write(cmd)
			}
			if flushErr := writer.Flush(); err == nil {
				err = flushErr
			}
			if err != nil {
				fmt.Println(vm.Report(err, !noColor))
			}
		}
	}
	return saveHistory(ln, histPath)
}

func saveHistory(ln *liner.State, histPath string) error {
	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "vmtranslator"
	app.Usage = "translate hack vm code to hack assembler"

	verboseFlag := cli.BoolFlag{
		Name:        "verbose, v",
		Usage:       "log the translation progress",
		Destination: &verbose,
	}
	noColorFlag := cli.BoolFlag{
		Name:        "no-color",
		Usage:       "hide colors in error messages",
		Destination: &noColor,
	}
	noCommentsFlag := cli.BoolFlag{
		Name:        "no-comments",
		Usage:       "do not write a comment before each translated command",
		Destination: &noComments,
	}
	translateFlags := []cli.Flag{
		verboseFlag,
		noColorFlag,
		noCommentsFlag,
		cli.BoolFlag{
			Name:        "lenient",
			Usage:       "skip lines with unknown commands",
			Destination: &lenient,
		},
		cli.BoolFlag{
			Name:        "bootstrap",
			Usage:       "write the bootstrap code even for a single file",
			Destination: &bootstrap,
		},
		cli.BoolFlag{
			Name:        "no-bootstrap",
			Usage:       "do not write the bootstrap code for a directory",
			Destination: &noBootstrap,
		},
		cli.StringFlag{
			Name:        "entry",
			Usage:       "the function the bootstrap calls",
			Value:       "Sys.init",
			Destination: &entry,
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "translate",
			Aliases:   []string{"t"},
			Usage:     "Translate a .vm file or a directory of .vm files",
			ArgsUsage: "<file.vm|dir>",
			Flags: append(translateFlags, cli.StringFlag{
				Name:        "output, o",
				Usage:       "the saved path, defaults to the .asm file next to the input",
				Destination: &output,
			}),
			Action: translateAction,
		},
		{
			Name:      "run",
			Aliases:   []string{"r"},
			Usage:     "Translate, assemble and execute on the hack cpu emulator",
			ArgsUsage: "<file.vm|dir>",
			Flags: append(translateFlags, cli.IntFlag{
				Name:        "cycles",
				Usage:       "the maximum number of instructions to execute",
				Value:       1000000,
				Destination: &maxCycles,
			}),
			Action: runAction,
		},
		{
			Name:   "repl",
			Usage:  "Translate vm commands interactively",
			Flags:  []cli.Flag{verboseFlag, noColorFlag, noCommentsFlag},
			Action: replAction,
		},
	}

	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
