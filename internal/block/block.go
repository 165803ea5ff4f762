// Package block implements the fixed 512-byte record framing that every
// ustar-derived format is built on: reading one record at a time and
// recognizing the two-zero-record archive terminator.
//
// Grounded on archive/tar's readHeader loop, which inlines this logic;
// pulled into its own leaf package since block framing is an independent
// concern from header decoding.
package block

import (
	"io"

	"github.com/pkg/errors"
)

// Size is the fixed tar record length.
const Size = 512

// ErrCorrupt is returned when a lone zero record is followed by a non-zero
// record: a single zero record is only a valid terminator when the stream
// genuinely ends there.
var ErrCorrupt = errors.New("tar: corrupt archive: zero record not followed by end of stream or second zero record")

var zero [Size]byte

// ReadRecord reads exactly one 512-byte record from r. A short read that
// produces zero bytes and then io.EOF is reported as io.EOF (end of
// stream); any other short read is io.ErrUnexpectedEOF.
func ReadRecord(r io.Reader) ([Size]byte, error) {
	var rec [Size]byte
	n, err := io.ReadFull(r, rec[:])
	if err != nil {
		if err == io.ErrUnexpectedEOF || (err == io.EOF && n > 0) {
			return rec, io.ErrUnexpectedEOF
		}
		return rec, err
	}
	return rec, nil
}

// IsZero reports whether rec is an all-zero record.
func IsZero(rec [Size]byte) bool {
	return rec == zero
}

// ReadHeaderRecord reads the next header record, consuming and validating
// the two-zero-record terminator along the way.
//
// It returns (rec, false, nil) for an ordinary record, (zero, true, nil)
// when the terminator was found (the stream should be considered ended,
// not an error), or a non-nil error — io.EOF if the stream ended cleanly
// before any record, or ErrCorrupt if a lone zero record was followed by a
// non-zero one.
func ReadHeaderRecord(r io.Reader) (rec [Size]byte, terminated bool, err error) {
	rec, err = ReadRecord(r)
	if err != nil {
		return rec, false, err // io.EOF here means a clean empty archive/stream end
	}
	if !IsZero(rec) {
		return rec, false, nil
	}

	// Found one zero record; the next record determines whether this is the
	// two-record terminator or a corrupt stream with stray zero padding.
	rec2, err := ReadRecord(r)
	if err != nil {
		if err == io.EOF {
			// Stream ended right after a single zero record: accepted as a
			// soft terminator.
			return rec, true, nil
		}
		return rec, false, err
	}
	if IsZero(rec2) {
		return rec2, true, nil
	}
	return rec2, false, ErrCorrupt
}

// Skip discards n bytes from r, reporting io.ErrUnexpectedEOF if fewer than
// n bytes were available.
func Skip(r io.Reader, n int64) error {
	if n <= 0 {
		return nil
	}
	copied, err := io.CopyN(io.Discard, r, n)
	if err != nil {
		if err == io.EOF && copied < n {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

// PaddingFor returns the number of padding bytes following a data section
// of size n to reach the next Size-byte boundary.
func PaddingFor(n int64) int64 {
	return -n & (Size - 1)
}
