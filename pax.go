package tar

import (
	"strconv"
	"strings"
)

// PAX extended-header keyword constants.
const (
	paxPath          = "path"
	paxSize          = "size"
	paxGNUSparseMaj  = "GNU.sparse.major"
	paxGNUSparseMin  = "GNU.sparse.minor"
	paxGNUSparseReal = "GNU.sparse.realsize"
	paxGNUSparseMap  = "GNU.sparse.map"
	paxGNUSparseName = "GNU.sparse.name"
	paxGNUSparseNum  = "GNU.sparse.numblocks" // 0.1 only
	paxSchilyXattr   = "SCHILY.xattr."
	paxLibarchXattr  = "LIBARCHIVE.xattr."
	paxSchilyACLAcc  = "SCHILY.acl.access"
	paxSchilyACLDef  = "SCHILY.acl.default"
)

// parsePAXRecords decodes the `<len> <key>=<value>\n` record stream of a
// PAX extended header. Duplicate keys let the later record win; parsing
// stops at a NUL byte or buffer end, matching the grammar's "concatenated
// with no separator" allowance.
func parsePAXRecords(data []byte) (map[string]string, error) {
	records := make(map[string]string)
	for len(data) > 0 {
		if data[0] == 0 {
			break
		}

		sp := indexByte(data, ' ')
		if sp < 0 {
			return nil, newError(KindInvalidHeader, "PAX record missing length/key separator")
		}
		for _, c := range data[:sp] {
			if c < '0' || c > '9' {
				return nil, newError(KindInvalidHeader, "PAX record length is not numeric")
			}
		}
		n, err := strconv.ParseInt(string(data[:sp]), 10, 64)
		if err != nil || n <= 0 {
			return nil, newError(KindInvalidHeader, "PAX record has an invalid or zero length")
		}
		if n > int64(len(data)) {
			return nil, newError(KindCorruptArchive, "PAX record extends beyond its buffer")
		}

		record := data[sp+1 : n]
		rest := data[n:]
		if len(record) > 0 && record[len(record)-1] == '\n' {
			record = record[:len(record)-1]
		}

		eq := indexByte(record, '=')
		if eq < 0 {
			return nil, newError(KindInvalidHeader, "PAX record missing '=' between key and value")
		}
		key := string(record[:eq])
		value := string(record[eq+1:])
		records[key] = value

		data = rest
	}
	return records, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// applyPAXRecords merges PAX key/value pairs into hdr and the sparse/xattr/
// ACL side-tables: path and size first, then xattr and ACL keys. GNU sparse
// keys are handled separately by the assembler since they determine the
// SparseInfo, not a Header field.
func applyPAXRecords(hdr *Header, records map[string]string) error {
	if hdr.PAXRecords == nil {
		hdr.PAXRecords = make(map[string]string, len(records))
	}
	for k, v := range records {
		hdr.PAXRecords[k] = v
	}

	if v, ok := records[paxPath]; ok {
		hdr.Name = v
	}
	if v, ok := records[paxSize]; ok {
		// Invalid numeric PAX size overrides are silently ignored and the
		// original ustar size is retained.
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			hdr.Size = n
		}
	}

	for k, v := range records {
		switch {
		case strings.HasPrefix(k, paxSchilyXattr):
			setXattr(hdr, k[len(paxSchilyXattr):], v)
		case strings.HasPrefix(k, paxLibarchXattr):
			setXattr(hdr, k[len(paxLibarchXattr):], v)
		case k == paxSchilyACLAcc:
			acl, err := parseACLText(v)
			if err != nil {
				return err
			}
			hdr.AccessACL = acl
		case k == paxSchilyACLDef:
			acl, err := parseACLText(v)
			if err != nil {
				return err
			}
			hdr.DefaultACL = acl
		}
	}
	return nil
}

func setXattr(hdr *Header, name, value string) {
	if hdr.Xattrs == nil {
		hdr.Xattrs = make(map[string]string)
	}
	hdr.Xattrs[name] = value
}
