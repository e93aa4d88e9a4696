package vm

// Config controls how one program is translated.
type Config struct {
	// Bootstrap writes the stack initialization and the call to EntryFunction before the
	// first file. Whole-program translations set it, single-file ones do not.
	Bootstrap bool
	// EntryFunction is the function the bootstrap calls.
	EntryFunction string
	// StackBase is the address the bootstrap stores in SP.
	StackBase int
	// Comments writes a `// command` line before the code of every command.
	Comments bool
	// Lenient skips lines with unknown keywords instead of failing.
	Lenient bool
}

func DefaultConfig() Config {
	return Config{
		Bootstrap:     true,
		EntryFunction: "Sys.init",
		StackBase:     256,
		Comments:      true,
	}
}
