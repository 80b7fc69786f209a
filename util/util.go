package util

import "log"

// Debug is the highest DPrintf level that is printed. The driver raises it
// with -v before any simulation starts.
var Debug uint64 = 0

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

func CloneByteSlice(s []byte) []byte {
	if s == nil {
		return nil
	}
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}

// IsZero reports whether every byte of s is zero (true for an empty slice)
func IsZero(s []byte) bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

// TrimZero drops trailing zero bytes, so that a zero-padded block compares
// equal to the payload it was padded from.
func TrimZero(s []byte) []byte {
	n := len(s)
	for n > 0 && s[n-1] == 0 {
		n--
	}
	return s[:n]
}
