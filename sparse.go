package tar

import (
	"bytes"
	"io"
	"math"
	"strconv"

	"github.com/TierOne-Software/tar/internal/block"
	"github.com/TierOne-Software/tar/internal/fields"
)

// SparseSegment is a physically-stored byte range within a sparse file's
// logical address space .
type SparseSegment struct {
	Offset int64
	Length int64
}

// SparseInfo describes a GNU sparse file: its logical size and the ordered,
// non-overlapping segments of physically stored data. Bytes outside every
// segment are zero by definition. Grounded on original_source's
// sparse::sparse_metadata (sparse.hpp), which carries the same real_size +
// segment-list shape plus a total_data_size() accessor, kept here as
// PhysicalSize.
type SparseInfo struct {
	RealSize int64
	segments []SparseSegment

	// needsDataMapPrefix marks a PAX sparse-1.0 entry whose map is stored
	// as a prefix of the data payload rather than in the header or PAX
	// records; the assembler must consume it before exposing logical
	// bytes.
	needsDataMapPrefix bool
}

// Segments returns the sparse file's data segments, sorted by offset.
func (s *SparseInfo) Segments() []SparseSegment { return s.segments }

// PhysicalSize returns the sum of all segment lengths: the number of bytes
// actually stored in the archive for this entry.
func (s *SparseInfo) PhysicalSize() int64 {
	var total int64
	for _, seg := range s.segments {
		total += seg.Length
	}
	return total
}

func validateSegments(segs []SparseSegment, realSize int64) error {
	for i, s := range segs {
		switch {
		case s.Offset < 0 || s.Length < 0:
			return newError(KindCorruptArchive, "sparse segment has a negative offset or length")
		case s.Offset > math.MaxInt64-s.Length:
			return newError(KindCorruptArchive, "sparse segment overflows")
		case s.Offset+s.Length > realSize:
			return sizeError(KindCorruptArchive, "sparse segment extends beyond real size", realSize)
		case i > 0 && segs[i-1].Offset+segs[i-1].Length > s.Offset:
			return newError(KindCorruptArchive, "sparse segments overlap or are unordered")
		}
	}
	return nil
}

// --- GNU sparse format 0.0: header overlay + continuation records ---

const (
	overlayArrayOffset      = 386
	overlayIsExtendedOffset = 482
	overlayRealSizeOffset   = 483
	overlayNumEntries       = 4

	contArrayOffset      = 0
	contIsExtendedOffset = 504
	contNumEntries       = 21

	sparseFieldWidth = 12
)

// decodeSparseOverlay reads the GNU-sparse reinterpretation of header bytes
// 345..511  for a type-flag 'S' record. A record with no
// non-zero-length segment entries is still a valid sparse descriptor — the
// zero-segment case original_source's sparse.cpp treats as an all-zero hole
// spanning the whole real size — so this only fails on genuinely
// unparsable octal fields.
func decodeSparseOverlay(rec [block.Size]byte) (sp *SparseInfo, extended bool, err error) {
	s := fields.Slicer(rec[overlayArrayOffset:])
	var segs []SparseSegment
	for i := 0; i < overlayNumEntries; i++ {
		off, okOff := fields.SparseOctal(s.Next(sparseFieldWidth))
		length, okLen := fields.SparseOctal(s.Next(sparseFieldWidth))
		if !okOff || !okLen {
			return nil, false, newError(KindInvalidHeader, "GNU sparse header overlay has an invalid octal field")
		}
		if off == 0 && length == 0 {
			break
		}
		segs = append(segs, SparseSegment{Offset: off, Length: length})
	}

	realSize, okSize := fields.SparseOctal(rec[overlayRealSizeOffset : overlayRealSizeOffset+sparseFieldWidth])
	if !okSize {
		return nil, false, newError(KindInvalidHeader, "GNU sparse header overlay has an invalid real size field")
	}
	if realSize == 0 && len(segs) > 0 {
		last := segs[len(segs)-1]
		realSize = last.Offset + last.Length
	}

	return &SparseInfo{RealSize: realSize, segments: segs}, rec[overlayIsExtendedOffset] == '1', nil
}

// readOldGNUSparseContinuation follows the extended-sparse continuation
// records that hold the remainder of the sparse map when more than four
// segments are needed. r must be positioned immediately after the header
// record.
func readOldGNUSparseContinuation(r io.Reader, sp *SparseInfo) error {
	var blk [block.Size]byte
	for {
		_, err := io.ReadFull(r, blk[:])
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return newErrorf(KindCorruptArchive, "truncated GNU sparse continuation record: %v", err)
			}
			return wrapError(KindIOError, err, "reading GNU sparse continuation record")
		}
		s := fields.Slicer(blk[contArrayOffset:])
		stop := false
		for i := 0; i < contNumEntries; i++ {
			off, okOff := fields.SparseOctal(s.Next(sparseFieldWidth))
			length, okLen := fields.SparseOctal(s.Next(sparseFieldWidth))
			if !okOff || !okLen {
				return newError(KindCorruptArchive, "invalid sparse continuation entry")
			}
			if off == 0 && length == 0 {
				stop = true
				break
			}
			sp.segments = append(sp.segments, SparseSegment{Offset: off, Length: length})
		}
		if stop || blk[contIsExtendedOffset] != '1' {
			return nil
		}
	}
}

// --- GNU sparse format 1.0: map stored as a prefix of the data payload ---

// readSparseMap1x0 reads exactly one 512-byte block from r and parses the
// decimal-newline sparse map stored there: a count, then that many
// offset/length pairs, each newline delimited. Bytes of the block beyond
// the map belong to the real data payload and are returned as leftover so
// the caller can deliver them ahead of the rest of the physical stream.
func readSparseMap1x0(r io.Reader) (segs []SparseSegment, leftover []byte, err error) {
	var blk [block.Size]byte
	if _, e := io.ReadFull(r, blk[:]); e != nil {
		if e == io.EOF || e == io.ErrUnexpectedEOF {
			return nil, nil, newErrorf(KindCorruptArchive, "truncated sparse 1.0 data-map block: %v", e)
		}
		return nil, nil, wrapError(KindIOError, e, "reading sparse 1.0 data-map block")
	}

	buf := blk[:]
	nextToken := func() (string, bool) {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return "", false
		}
		tok := string(buf[:i])
		buf = buf[i+1:]
		return tok, true
	}

	countTok, ok := nextToken()
	if !ok {
		return nil, nil, newError(KindCorruptArchive, "sparse 1.0 data map missing entry count")
	}
	count, convErr := strconv.ParseInt(countTok, 10, 64)
	if convErr != nil || count < 0 {
		return nil, nil, newError(KindCorruptArchive, "sparse 1.0 data map has an invalid entry count")
	}

	segs = make([]SparseSegment, 0, count)
	for i := int64(0); i < count; i++ {
		offTok, ok := nextToken()
		if !ok {
			return nil, nil, newError(KindCorruptArchive, "sparse 1.0 data map truncated before offset")
		}
		lenTok, ok := nextToken()
		if !ok {
			return nil, nil, newError(KindCorruptArchive, "sparse 1.0 data map truncated before length")
		}
		off, e1 := strconv.ParseInt(offTok, 10, 64)
		length, e2 := strconv.ParseInt(lenTok, 10, 64)
		if e1 != nil || e2 != nil {
			return nil, nil, newError(KindCorruptArchive, "sparse 1.0 data map entry is not a valid decimal")
		}
		segs = append(segs, SparseSegment{Offset: off, Length: length})
	}

	return segs, buf, nil
}

// --- GNU sparse formats 0.1 / PAX-map-in-header: "off,len,off,len,..." ---

func parseSparseMapCSV(csv string) ([]SparseSegment, error) {
	parts := splitNonEmpty(csv, ',')
	if len(parts)%2 != 0 {
		return nil, newError(KindCorruptArchive, "GNU.sparse.map has an odd number of values")
	}
	numEntries := len(parts) / 2
	if numEntries == 0 {
		return nil, nil
	}
	segs := make([]SparseSegment, 0, numEntries)
	for i := 0; i < numEntries; i++ {
		off, e1 := strconv.ParseInt(parts[2*i], 10, 64)
		length, e2 := strconv.ParseInt(parts[2*i+1], 10, 64)
		if e1 != nil || e2 != nil {
			return nil, newError(KindCorruptArchive, "GNU.sparse.map entry is not a valid decimal")
		}
		segs = append(segs, SparseSegment{Offset: off, Length: length})
	}
	return segs, nil
}

func splitNonEmpty(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// --- sparse-aware data view ---

// sparseReader presents a logical byte range over a sparse entry's
// physical data stream plus its hole map, re-synthesizing hole bytes as
// zeros so consumers see a logical file . It maintains two
// counters — logical position and physical bytes consumed via the
// embedded segment cursor — so advancing across a hole costs no physical
// I/O while advancing across a segment consumes exactly that segment's
// byte count, per original_source's sparse.cpp two-cursor scheme.
//
// It implements numBytesReader so the reader's skip-unread accounting
// (reader.go) can discard exactly the remaining *physical* bytes
// regardless of how much logical data the caller consumed.
type sparseReader struct {
	phys     numBytesReader
	segs     []SparseSegment
	realSize int64
	pos      int64 // next logical offset to be returned
}

// newSparseReader constructs a view over phys (yielding exactly
// sum(segment.Length) bytes starting at segment-data offset 0) and sp.
func newSparseReader(phys numBytesReader, sp *SparseInfo) (*sparseReader, error) {
	if sp.RealSize < 0 {
		return nil, newError(KindCorruptArchive, "sparse real size is negative")
	}
	if err := validateSegments(sp.segments, sp.RealSize); err != nil {
		return nil, err
	}
	return &sparseReader{phys: phys, segs: sp.segments, realSize: sp.RealSize}, nil
}

func (sr *sparseReader) numBytes() int64 { return sr.phys.numBytes() }

// Seek advances the logical read position. Only non-decreasing offsets are
// accepted in streaming mode; skipping forward across a hole is free, while
// skipping forward across a segment consumes the corresponding physical
// bytes.
func (sr *sparseReader) Seek(offset int64) error {
	if offset < sr.pos {
		return newError(KindInvalidOperation, "sparse reader does not support seeking backward in streaming mode")
	}
	buf := make([]byte, 32*1024)
	for sr.pos < offset {
		want := buf
		if remain := offset - sr.pos; remain < int64(len(want)) {
			want = want[:remain]
		}
		n, err := sr.Read(want)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// Read implements the logical read contract: zero bytes for holes, physical
// bytes for segments, clamped to RealSize, with short reads legal
// at segment/hole boundaries.
func (sr *sparseReader) Read(b []byte) (int, error) {
	if sr.pos >= sr.realSize {
		return 0, io.EOF
	}
	if int64(len(b)) > sr.realSize-sr.pos {
		b = b[:sr.realSize-sr.pos]
	}

	for len(sr.segs) > 0 && sr.segs[0].Length == 0 {
		sr.segs = sr.segs[1:]
	}
	if len(sr.segs) == 0 {
		n := len(b)
		for i := range b {
			b[i] = 0
		}
		sr.pos += int64(n)
		return n, nil
	}

	seg := sr.segs[0]
	if sr.pos < seg.Offset {
		n := int64(len(b))
		if n > seg.Offset-sr.pos {
			n = seg.Offset - sr.pos
		}
		for i := int64(0); i < n; i++ {
			b[i] = 0
		}
		sr.pos += n
		return int(n), nil
	}

	// Inside this segment: read physical bytes.
	segEnd := seg.Offset + seg.Length
	want := b
	if int64(len(want)) > segEnd-sr.pos {
		want = want[:segEnd-sr.pos]
	}
	n, err := sr.phys.Read(want)
	sr.pos += int64(n)
	if err == io.EOF {
		if sr.pos < segEnd {
			err = io.ErrUnexpectedEOF
		} else if sr.pos < sr.realSize {
			err = nil
		}
	}
	if sr.pos == segEnd {
		sr.segs = sr.segs[1:]
	}
	return n, err
}
