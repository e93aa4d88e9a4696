package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/xiaobogaga/hackvm/internal/asm"
)

// a simple program accepts a input assemble code file supported by hack assemble language and transforms
// the content to the corresponding hack machine language.

var (
	outputPath string
	verbose    bool
	noColor    bool
)

func assemble(inputPath string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer f.Close()
	assembler := asm.New()
	commands, err := assembler.Parse(f)
	if err != nil {
		return err
	}
	if verbose {
		for _, command := range commands {
			fmt.Println(command)
		}
	}
	var buf bytes.Buffer
	if err := assembler.WriteHack(&buf); err != nil {
		return err
	}
	path := outputPath
	if path == "" {
		path = strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ".hack"
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	if verbose {
		log.Printf("[assembler] saved %d instructions to %s", len(commands), path)
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "assembler"
	app.Usage = "assemble hack assembly into hack machine code"
	app.ArgsUsage = "<file.asm>"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "output, o",
			Usage:       "the output hack binary code file path, defaults to the .hack file next to the input",
			Destination: &outputPath,
		},
		cli.BoolFlag{
			Name:        "verbose, v",
			Usage:       "print all transformed binary code",
			Destination: &verbose,
		},
		cli.BoolFlag{
			Name:        "no-color",
			Usage:       "hide colors in error messages",
			Destination: &noColor,
		},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() != 1 {
			cli.ShowAppHelp(c)
			return cli.NewExitError("expected exactly one .asm file", 2)
		}
		if err := assemble(c.Args().First()); err != nil {
			color.NoColor = noColor
			return cli.NewExitError(color.RedString("error: ")+err.Error(), 1)
		}
		return nil
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
