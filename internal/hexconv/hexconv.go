package hexconv

// Halfbyte maps every hexadecimal digit to its value. All other characters are mapped
// to 0xFF.
var Halfbyte = [256]byte{}

func init() {
	for i := range Halfbyte {
		Halfbyte[i] = 0xFF
	}

	for c := byte('0'); c <= '9'; c++ {
		Halfbyte[c] = c - '0'
	}

	for c := byte('a'); c <= 'f'; c++ {
		Halfbyte[c] = c - 'a' + 10
		Halfbyte[c-'a'+'A'] = c - 'a' + 10
	}
}

// ParseUint parses a non-empty sequence of hexadecimal digits. Leading zeroes are allowed
// in any amount, however the significant part must fit into 64 bits.
func ParseUint(digits []byte) (n uint64, ok bool) {
	if len(digits) == 0 {
		return 0, false
	}

	significant := 0

	for _, char := range digits {
		val := Halfbyte[char]
		if val == 0xFF {
			return 0, false
		}

		if significant > 0 || val != 0 {
			if significant++; significant > 16 {
				return 0, false
			}
		}

		n = (n << 4) | uint64(val)
	}

	return n, true
}
