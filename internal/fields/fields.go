// Package fields decodes the fixed-width numeric and string fields that make
// up a ustar header record: octal integers, the GNU-sparse "longest run"
// variant of octal, NUL/space trimmed strings, and the header checksum.
//
// Grounded on archive/tar's octal/numeric/cString/checksum helpers
// (common.go, reader.go), split out into their own leaf package since
// numeric/field decoding is an independent concern from header assembly.
package fields

import (
	"bytes"
	"strconv"
)

// MaxOctal is the largest value Octal decodes: the int64 maximum. Larger
// values overflow and are rejected.
const MaxOctal = 1<<63 - 1

// TrimString returns the logical content of a fixed-width field: the bytes
// up to the first NUL, or the whole field if no NUL is present. No charset
// conversion is performed.
func TrimString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Octal decodes a space/NUL-padded ASCII octal field per spec: leading NULs
// and spaces are stripped, decoding stops at the first NUL, space, or field
// end, and any other character is rejected. An all-blank field decodes to
// zero. Overflow beyond MaxOctal is reported via ok=false.
func Octal(b []byte) (v int64, ok bool) {
	trimmed := bytes.Trim(b, " \x00")
	if len(trimmed) == 0 {
		return 0, true
	}
	// Stop at the first NUL or space that terminates the field early,
	// rejecting anything that isn't a valid octal digit in between.
	end := len(trimmed)
	for i, c := range trimmed {
		switch {
		case c == 0 || c == ' ':
			end = i
		case c >= '0' && c <= '7':
			continue
		default:
			return 0, false
		}
		break
	}
	digits := trimmed[:end]
	if len(digits) == 0 {
		return 0, true
	}
	n, err := strconv.ParseInt(string(digits), 8, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SparseOctal decodes the GNU-sparse header-overlay variant: a tar writer
// may embed leading junk in these fields, so this scans for the longest
// contiguous run of '0'..'7' anywhere in the field and decodes that run.
// This deviates from strict octal decoding and must only be used inside the
// GNU-sparse overlay, never on standard ustar fields. A field with no octal
// digit decodes to zero when it is blank (only NULs and spaces) and is
// rejected otherwise.
func SparseOctal(b []byte) (v int64, ok bool) {
	bestStart, bestLen := 0, 0
	curStart, curLen := 0, 0
	for i, c := range b {
		if c >= '0' && c <= '7' {
			if curLen == 0 {
				curStart = i
			}
			curLen++
			if curLen > bestLen {
				bestStart, bestLen = curStart, curLen
			}
		} else {
			curLen = 0
		}
	}
	if bestLen == 0 {
		if len(bytes.Trim(b, " \x00")) > 0 {
			return 0, false
		}
		return 0, true
	}
	n, err := strconv.ParseInt(string(b[bestStart:bestStart+bestLen]), 8, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Checksum sums a 512-byte header record as unsigned octets, treating the
// 8-byte checksum field (offset 148) as eight spaces, per the POSIX
// checksum algorithm. Both the unsigned sum (standard) and the signed sum
// (some Sun tars) are returned so callers can accept either.
func Checksum(header []byte) (unsigned, signed int64) {
	for i := 0; i < len(header); i++ {
		if i == 148 {
			unsigned += ' ' * 8
			signed += ' ' * 8
			i += 7
			continue
		}
		unsigned += int64(header[i])
		signed += int64(int8(header[i]))
	}
	return
}

// Slicer carves successive fixed-width fields out of a header record.
type Slicer []byte

// Next returns and consumes the next n bytes.
func (s *Slicer) Next(n int) []byte {
	b := (*s)[:n]
	*s = (*s)[n:]
	return b
}
