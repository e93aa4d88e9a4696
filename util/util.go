package util

// Character classes for symbols shared by the vm language and hack assembler.
// A symbol is a non-empty sequence of letters, digits, '_', '.', '$' and ':'
// that does not begin with a digit.

func IsNumber(b byte) bool {
	return b >= '0' && b <= '9'
}

func IsLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func IsSymbolPunct(b byte) bool {
	return b == '_' || b == '.' || b == '$' || b == ':'
}

func IsSymbolStart(b byte) bool {
	return IsLetter(b) || IsSymbolPunct(b)
}

func IsSymbolChar(b byte) bool {
	return IsSymbolStart(b) || IsNumber(b)
}

// IsSymbol reports whether s can be used as a label, function name or assembler symbol.
func IsSymbol(s string) bool {
	if len(s) == 0 || !IsSymbolStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !IsSymbolChar(s[i]) {
			return false
		}
	}
	return true
}

// IsDecimal reports whether s is a non-empty run of decimal digits.
func IsDecimal(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !IsNumber(s[i]) {
			return false
		}
	}
	return true
}
