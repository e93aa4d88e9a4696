package vm

import (
	"fmt"
	"io"

	"github.com/xiaobogaga/hackvm/util"
)

// Translator turns the files of one program into a single assembler output. Files are
// translated in the order they are given; each one gets its own Decoder while the
// CodeWriter, and with it every label counter, is shared by the whole program.
type Translator struct {
	writer     *CodeWriter
	cfg        Config
	started    bool
	closed     bool
	fileCount  int
	commandCnt int
}

func NewTranslator(w io.Writer, cfg Config) *Translator {
	return &Translator{writer: NewCodeWriter(w, cfg), cfg: cfg}
}

// TranslateFile translates one vm file. fileName is the static variable namespace, usually
// the file's base name without the `.vm` extension. The first error stops the translation.
func (translator *Translator) TranslateFile(fileName string, rd io.Reader) error {
	if !util.IsSymbol(fileName) {
		return fmt.Errorf("file name %q cannot name static variables: not a valid symbol", fileName)
	}
	if err := translator.start(); err != nil {
		return err
	}
	translator.fileCount++
	translator.writer.SetFileName(fileName)
	decoder := NewDecoder(rd, fileName, translator.cfg.Lenient)
	for decoder.HasMore() {
		cmd, err := decoder.Next()
		if err != nil {
			return err
		}
		if err := translator.writer.Write(cmd); err != nil {
			return err
		}
		translator.commandCnt++
	}
	return nil
}

// Close writes the terminal loop and flushes the output. It must be called exactly once,
// after the last file.
func (translator *Translator) Close() error {
	if translator.closed {
		return nil
	}
	if err := translator.start(); err != nil {
		return err
	}
	translator.closed = true
	return translator.writer.Close()
}

// Stats returns the number of files and commands translated so far.
func (translator *Translator) Stats() (files, commands int) {
	return translator.fileCount, translator.commandCnt
}

func (translator *Translator) start() error {
	if translator.started {
		return nil
	}
	translator.started = true
	if translator.cfg.Bootstrap {
		return translator.writer.WriteBootstrap()
	}
	return nil
}

// Source is one named vm file.
type Source struct {
	Name   string
	Reader io.Reader
}

// TranslateProgram translates sources in order into w.
func TranslateProgram(w io.Writer, cfg Config, sources []Source) error {
	translator := NewTranslator(w, cfg)
	for _, src := range sources {
		if err := translator.TranslateFile(src.Name, src.Reader); err != nil {
			return err
		}
	}
	return translator.Close()
}
