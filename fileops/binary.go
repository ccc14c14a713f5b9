package fileops

import (
	"bytes"
	"unicode/utf8"
)

const binaryProbeSize = 4096

// looksBinary inspects the leading bytes of a file. A NUL byte or invalid
// UTF-8 marks the file as binary. fullProbe reports whether the sample was
// cut at the probe boundary, in which case a rune split across the cut is
// tolerated.
func looksBinary(sample []byte, fullProbe bool) bool {
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	if utf8.Valid(sample) {
		return false
	}
	if !fullProbe {
		return true
	}
	for i := 1; i <= 3 && i < len(sample); i++ {
		if utf8.Valid(sample[:len(sample)-i]) {
			return false
		}
	}
	return true
}
