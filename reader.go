// Package tar implements a streaming reader for POSIX ustar archives,
// including the GNU long-name/long-link and sparse extensions and the PAX
// extended-header format. It is deliberately read-only and forward-only:
// writing, random access across entries, and filesystem extraction are
// left to external collaborators.
package tar

import (
	"bytes"
	"io"
	"time"

	"github.com/apex/log"

	"github.com/TierOne-Software/tar/internal/block"
)

// numBytesReader is an io.Reader that also reports how many bytes remain
// to be read from it, so skip-unread accounting works identically whether
// the current entry is a plain file or a sparse one.
type numBytesReader interface {
	io.Reader
	numBytes() int64
}

// regFileReader is a numBytesReader bounding reads to an entry's physical
// data section.
type regFileReader struct {
	r  io.Reader
	nb int64
}

func newRegFileReader(r io.Reader, nb int64) (*regFileReader, error) {
	if nb < 0 {
		return nil, sizeError(KindInvalidHeader, "negative entry size", nb)
	}
	return &regFileReader{r: r, nb: nb}, nil
}

func (rfr *regFileReader) Read(b []byte) (int, error) {
	if rfr.nb == 0 {
		return 0, io.EOF
	}
	if int64(len(b)) > rfr.nb {
		b = b[:rfr.nb]
	}
	n, err := rfr.r.Read(b)
	rfr.nb -= int64(n)
	if err == io.EOF && rfr.nb > 0 {
		err = io.ErrUnexpectedEOF
	}
	return n, err
}

func (rfr *regFileReader) numBytes() int64 { return rfr.nb }

// nopLogger discards every diagnostic event. It is the Reader's default so
// zero-configuration use stays silent; callers that want the discarding-a-
// global-PAX-header/following-a-sparse-continuation/skipping-an-unsupported-
// extension events can attach a real one with WithLogger the way
// opencontainers-umoci threads an apex/log.Interface through its
// TarExtractor.
type nopLogger struct{}

func (nopLogger) Debug(string)           {}
func (nopLogger) Info(string)            {}
func (nopLogger) Warn(string)            {}
func (nopLogger) Error(string)           {}
func (nopLogger) Fatal(string)           {}
func (nopLogger) Debugf(string, ...any)  {}
func (nopLogger) Infof(string, ...any)   {}
func (nopLogger) Warnf(string, ...any)   {}
func (nopLogger) Errorf(string, ...any)  {}
func (nopLogger) Fatalf(string, ...any)  {}
func (nopLogger) Trace(string) *log.Entry {
	return &log.Entry{}
}
func (nopLogger) WithField(key string, value any) *log.Entry {
	return &log.Entry{}
}
func (nopLogger) WithFields(log.Fielder) *log.Entry { return &log.Entry{} }
func (nopLogger) WithError(error) *log.Entry        { return &log.Entry{} }
func (nopLogger) WithDuration(time.Duration) *log.Entry { return &log.Entry{} }

// Option configures a Reader at construction time.
type Option func(*Reader)

// WithLogger attaches an apex/log.Interface that receives this Reader's
// diagnostic events.
func WithLogger(l log.Interface) Option {
	return func(r *Reader) { r.logger = l }
}

// extensionContext accumulates state contributed by GNU/PAX extension
// records between one regular entry and the next. It is cleared after
// being applied.
type extensionContext struct {
	longName *string
	longLink *string
	pax      map[string]string
}

func (c *extensionContext) reset() {
	c.longName = nil
	c.longLink = nil
	c.pax = nil
}

func (c *extensionContext) mergePAX(records map[string]string) {
	if c.pax == nil {
		c.pax = make(map[string]string, len(records))
	}
	for k, v := range records {
		c.pax[k] = v
	}
}

// Reader yields a lazy, forward-only sequence of Entry values decoded from
// a ustar/GNU/PAX byte stream: one fully-assembled Entry per Next call,
// accounting for any payload the caller left unread plus its
// block-alignment padding before advancing.
type Reader struct {
	r      io.Reader
	err    error
	logger log.Interface

	pad  int64
	curr numBytesReader

	ctx extensionContext
}

// NewReader constructs a Reader over r. r need not implement io.Seeker;
// when it does, skipping unread payload uses it as an optimization to
// surface I/O errors early.
func NewReader(r io.Reader, opts ...Option) *Reader {
	tr := &Reader{r: r, logger: nopLogger{}}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// Err returns the first error encountered, latched for the lifetime of the
// Reader. Once set, Next always returns (nil, io.EOF).
func (tr *Reader) Err() error { return tr.err }

// Next advances to the next entry, discarding any data the caller left
// unread in the previous entry. It returns io.EOF (not wrapped) at the
// true end of the archive. Any other error also ends the sequence and
// latches the Reader: that call and every later one return (nil, io.EOF),
// with the original error retained in Err.
func (tr *Reader) Next() (*Entry, error) {
	if tr.err != nil {
		return nil, io.EOF
	}
	hdr, err := tr.next()
	if err != nil {
		if err != io.EOF {
			tr.err = err
		}
		return nil, io.EOF
	}
	return hdr, nil
}

func (tr *Reader) next() (*Entry, error) {
	for {
		if err := tr.skipUnread(); err != nil {
			return nil, err
		}

		rec, terminated, err := block.ReadHeaderRecord(tr.r)
		if terminated {
			return nil, io.EOF
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			if err == block.ErrCorrupt {
				return nil, newError(KindCorruptArchive, "zero record followed by non-zero record")
			}
			if err == io.ErrUnexpectedEOF {
				return nil, newError(KindCorruptArchive, "short read in the middle of a header record")
			}
			return nil, wrapError(KindIOError, err, "reading header record")
		}

		dh, err := decodeHeaderRecord(rec)
		if err != nil {
			return nil, err
		}

		switch dh.typeflag {
		case tfXHeader:
			entry, err := tr.readExtensionPayload(dh)
			if err != nil {
				return nil, err
			}
			records, err := parsePAXRecords(entry)
			if err != nil {
				return nil, err
			}
			tr.ctx.mergePAX(records)
			continue

		case tfXGlobalHeader:
			// Global PAX headers are parsed (so malformed ones are still
			// surfaced as errors) but discarded: this core does not apply
			// them to later entries, an acknowledged limitation inherited
			// from the format's own checkered adoption history.
			payload, err := tr.readExtensionPayload(dh)
			if err != nil {
				return nil, err
			}
			if _, err := parsePAXRecords(payload); err != nil {
				return nil, err
			}
			tr.logger.Debugf("tar: discarding global PAX header for %q", dh.hdr.Name)
			continue

		case tfGNULongName, tfGNULongLink:
			payload, err := tr.readExtensionPayload(dh)
			if err != nil {
				return nil, err
			}
			name := cString(payload)
			if dh.typeflag == tfGNULongName {
				tr.ctx.longName = &name
			} else {
				tr.ctx.longLink = &name
			}
			continue

		case tfGNUVolHeader, tfGNUMultiVol:
			// Unsupported-but-known extension magic: skip payload and
			// padding, stay in the current state.
			if err := tr.skipExtensionPayload(dh); err != nil {
				return nil, err
			}
			tr.logger.Debugf("tar: skipping unsupported extension type %q for %q", dh.typeflag, dh.hdr.Name)
			continue

		case tfGNUSparse:
			sp := dh.rawSparse
			if sp == nil {
				return nil, newError(KindInvalidHeader, "GNU sparse entry missing a valid sparse overlay")
			}
			if dh.extended {
				if err := readOldGNUSparseContinuation(tr.r, sp); err != nil {
					return nil, err
				}
				tr.logger.Debugf("tar: followed GNU sparse continuation records for %q", dh.hdr.Name)
			}
			return tr.assembleEntry(dh, sp)

		default:
			return tr.assembleEntry(dh, nil)
		}
	}
}

// assembleEntry applies the field-precedence chain (ustar fields → GNU long
// name/link → PAX path/size → PAX xattr/ACL → sparse descriptor),
// constructs the entry's data view, and clears the extension context.
func (tr *Reader) assembleEntry(dh *decodedHeader, oldSparse *SparseInfo) (*Entry, error) {
	hdr := dh.hdr

	if tr.ctx.longName != nil {
		hdr.Name = *tr.ctx.longName
	}
	if tr.ctx.longLink != nil {
		hdr.Linkname = *tr.ctx.longLink
	}
	if tr.ctx.pax != nil {
		if err := applyPAXRecords(&hdr, tr.ctx.pax); err != nil {
			tr.ctx.reset()
			return nil, err
		}
	}

	sparse := oldSparse
	if sparse == nil && tr.ctx.pax != nil {
		sp, err := sparseFromPAXHeader(&hdr, tr.ctx.pax)
		if err != nil {
			tr.ctx.reset()
			return nil, err
		}
		sparse = sp
	}
	tr.ctx.reset()

	if sparse != nil && isHeaderOnlyType(hdr.Type) {
		return nil, newError(KindInvalidHeader, "sparse descriptor on a header-only entry type")
	}

	physSize := hdr.Size
	tr.pad = block.PaddingFor(physSize)
	phys, err := newRegFileReader(tr.r, physSize)
	if err != nil {
		return nil, err
	}

	var curr numBytesReader = phys
	if sparse != nil {
		if sparse.needsDataMapPrefix {
			segs, leftover, err := readSparseMap1x0(phys)
			if err != nil {
				return nil, err
			}
			sparse.segments = segs
			sparse.needsDataMapPrefix = false
			curr = &prefixedReader{leftover: leftover, rest: phys}
		}
		hdr.Size = sparse.RealSize
		hdr.Sparse = sparse
		sr, err := newSparseReader(curr, sparse)
		if err != nil {
			return nil, err
		}
		curr = sr
	}

	tr.curr = curr
	return &Entry{Header: hdr, tr: tr, reader: curr}, nil
}

// prefixedReader re-attaches the leftover bytes of a partially-consumed
// physical block (after the sparse 1.0 data-map prefix was parsed out of
// it) ahead of the rest of the physical stream, while still reporting the
// combined remaining byte count for skip-unread accounting.
type prefixedReader struct {
	leftover []byte
	rest     numBytesReader
}

func (p *prefixedReader) Read(b []byte) (int, error) {
	if len(p.leftover) > 0 {
		n := copy(b, p.leftover)
		p.leftover = p.leftover[n:]
		return n, nil
	}
	return p.rest.Read(b)
}

func (p *prefixedReader) numBytes() int64 {
	return int64(len(p.leftover)) + p.rest.numBytes()
}

func isHeaderOnlyType(t EntryType) bool {
	switch t {
	case TypeHardLink, TypeSymlink, TypeCharDevice, TypeBlockDevice, TypeDirectory, TypeFifo:
		return true
	default:
		return false
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// readExtensionPayload reads an extension record's full payload (the
// record holds no size-accounting state of its own — it behaves like any
// other entry's data section) plus its padding, leaving the stream
// positioned at the next header.
func (tr *Reader) readExtensionPayload(dh *decodedHeader) ([]byte, error) {
	rfr, err := newRegFileReader(tr.r, dh.hdr.Size)
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(rfr)
	if err != nil {
		return nil, wrapError(KindIOError, err, "reading extension payload")
	}
	if err := block.Skip(tr.r, block.PaddingFor(dh.hdr.Size)); err != nil {
		return nil, wrapError(KindIOError, err, "skipping extension padding")
	}
	return buf, nil
}

func (tr *Reader) skipExtensionPayload(dh *decodedHeader) error {
	if err := block.Skip(tr.r, dh.hdr.Size); err != nil {
		return wrapError(KindIOError, err, "skipping unsupported extension payload")
	}
	return block.Skip(tr.r, block.PaddingFor(dh.hdr.Size))
}

// skipUnread discards whatever remains of the previous entry's payload
// plus its alignment padding. Using a Seeker when available surfaces
// truncation errors early instead of silently discarding past them.
func (tr *Reader) skipUnread() error {
	if tr.curr == nil {
		return nil
	}
	nd := tr.curr.numBytes()
	nb := nd + tr.pad
	tr.curr, tr.pad = nil, 0

	var skipped int64
	if sk, ok := tr.r.(io.Seeker); ok && nd > 1 {
		pos1, _ := sk.Seek(0, io.SeekCurrent)
		pos2, _ := sk.Seek(nd-1, io.SeekCurrent)
		skipped = pos2 - pos1
	}

	_, err := io.CopyN(io.Discard, tr.r, nb-skipped)
	if err != nil {
		if err == io.EOF {
			if skipped < nd {
				return wrapError(KindIOError, io.ErrUnexpectedEOF, "truncated archive while skipping unread entry data")
			}
			return nil
		}
		return wrapError(KindIOError, err, "skipping unread entry data")
	}
	return nil
}

// Entry is one fully-assembled archive member: read-only metadata plus an
// on-demand data-access handle. The handle is valid only until the
// Reader's next Next call.
type Entry struct {
	Header
	tr     *Reader
	reader numBytesReader
}

// Read implements io.Reader over the entry's logical data, transparently
// re-synthesizing sparse holes when the entry is a sparse file. It returns
// invalid-operation if called on an entry type with no data section.
func (e *Entry) Read(b []byte) (int, error) {
	if isHeaderOnlyType(e.Type) {
		return 0, newError(KindInvalidOperation, "cannot read data of a non-regular entry")
	}
	if e.tr.curr != e.reader {
		return 0, newError(KindInvalidOperation, "entry data is no longer valid: the reader has advanced past it")
	}
	n, err := e.reader.Read(b)
	if err != nil && err != io.EOF {
		e.tr.err = err
	}
	return n, err
}

// ReadAll reads the entry's data to completion, returning a freshly
// allocated slice. Safe to call exactly once per entry.
func (e *Entry) ReadAll() ([]byte, error) {
	return io.ReadAll(e)
}

// ReadData returns up to length bytes of the entry's logical data starting
// at offset; it returns fewer when the data ends first. Only
// non-decreasing offsets are supported, matching
// the reader's forward-only streaming contract: offset must be at or past
// whatever has already been consumed. For a sparse entry this seeks via
// the sparse reader's own hole-skipping Seek, so advancing across a hole
// costs no physical I/O; for a plain entry it falls back to discarding
// bytes up to offset.
func (e *Entry) ReadData(offset, length int64) ([]byte, error) {
	if isHeaderOnlyType(e.Type) {
		return nil, newError(KindInvalidOperation, "cannot read data of a non-regular entry")
	}
	if e.tr.curr != e.reader {
		return nil, newError(KindInvalidOperation, "entry data is no longer valid: the reader has advanced past it")
	}
	if offset < 0 || length < 0 {
		return nil, newError(KindInvalidOperation, "ReadData requires a non-negative offset and length")
	}

	if sr, ok := e.reader.(*sparseReader); ok {
		if err := sr.Seek(offset); err != nil {
			e.tr.err = err
			return nil, err
		}
	} else {
		pos := e.Size - e.reader.numBytes()
		if offset < pos {
			return nil, newError(KindInvalidOperation, "ReadData does not support seeking backward in streaming mode")
		}
		if _, err := io.CopyN(io.Discard, e.reader, offset-pos); err != nil {
			err = wrapError(KindIOError, err, "seeking to ReadData offset")
			e.tr.err = err
			return nil, err
		}
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(e.reader, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		e.tr.err = err
		return nil, err
	}
	return buf[:n], nil
}

// Digest computes a content digest of the entry's logical data not yet read
// (all of it on an entry that has not been read from) using the given
// algorithm, grounded on the opencontainers/go-digest usage
// common to meigma-blob, moby-moby, and opencontainers-umoci wherever they
// need to verify or address a tar-stream layer by its content hash. It
// consumes the entry's data exactly as ReadAll would.
func (e *Entry) Digest(algo digestAlgorithm) (string, error) {
	return digestEntry(e, algo)
}
