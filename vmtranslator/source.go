package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// program is the set of vm files translated into one .asm file.
type program struct {
	files []string
	// output is the .asm path next to the sources.
	output string
	// wholeProgram is set when translating a directory, which implies a bootstrap.
	wholeProgram bool
}

// staticName returns the static variable namespace of a vm file: its base name without
// the extension.
func staticName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// collectProgram resolves the translate argument. A .vm file is translated on its own into
// File.asm. A directory is a whole program: every top level .vm file whose name starts with an
// upper case letter, in name order, into Dir/Dir.asm.
func collectProgram(path string) (*program, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		if filepath.Ext(abs) != ".vm" {
			return nil, fmt.Errorf("%s is not a .vm file", path)
		}
		return &program{
			files:  []string{abs},
			output: filepath.Join(filepath.Dir(abs), staticName(abs)+".asm"),
		}, nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		// Ignore sub path
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != ".vm" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(name)
		if !unicode.IsUpper(first) {
			continue
		}
		files = append(files, filepath.Join(abs, name))
	}
	if len(files) == 0 {
		return nil, errors.New("folder contains no .vm files beginning with an uppercase letter")
	}
	sort.Strings(files)
	return &program{
		files:        files,
		output:       filepath.Join(abs, filepath.Base(abs)+".asm"),
		wholeProgram: true,
	}, nil
}
