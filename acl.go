package tar

import (
	"strconv"
	"strings"
)

// ACLTag classifies a POSIX ACL entry, mirroring
// original_source's acl_entry::type enum (metadata.hpp) but without its
// bitmask-flag representation, since Go callers gain nothing from ACL
// tags being independently combinable.
type ACLTag int

const (
	ACLUserObj ACLTag = iota
	ACLGroupObj
	ACLUser
	ACLGroup
	ACLMask
	ACLOther
)

func (t ACLTag) String() string {
	switch t {
	case ACLUserObj:
		return "user-obj"
	case ACLGroupObj:
		return "group-obj"
	case ACLUser:
		return "user"
	case ACLGroup:
		return "group"
	case ACLMask:
		return "mask"
	case ACLOther:
		return "other"
	default:
		return "unknown"
	}
}

// ACL permission bits.
const (
	ACLRead    = 4
	ACLWrite   = 2
	ACLExecute = 1
)

// ACLEntry is one decoded entry from a SCHILY.acl.access/default PAX
// record.
type ACLEntry struct {
	Tag  ACLTag
	ID   int // meaningful only when Tag is ACLUser or ACLGroup
	Perm int // three bits: ACLRead|ACLWrite|ACLExecute
}

// parseACLText decodes the comma-separated `type:id:perm` grammar,
// grounded on original_source's pax::parse_acl_text (pax_parser.hpp),
// which accepts exactly this grammar with the same obj-variant rule for
// an empty id on user/group entries.
func parseACLText(text string) ([]ACLEntry, error) {
	var entries []ACLEntry
	for _, raw := range strings.Split(text, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, newErrorf(KindInvalidHeader, "malformed ACL entry %q: expected type:id:perm", entry)
		}
		typ, idStr, permStr := parts[0], parts[1], parts[2]

		perm, err := parseACLPerm(permStr)
		if err != nil {
			return nil, err
		}

		var tag ACLTag
		var id int
		switch typ {
		case "user":
			if idStr == "" {
				tag = ACLUserObj
			} else {
				tag = ACLUser
				id, err = parseACLID(idStr)
			}
		case "group":
			if idStr == "" {
				tag = ACLGroupObj
			} else {
				tag = ACLGroup
				id, err = parseACLID(idStr)
			}
		case "mask":
			if idStr != "" {
				return nil, newErrorf(KindInvalidHeader, "ACL mask entry must have an empty id, got %q", idStr)
			}
			tag = ACLMask
		case "other":
			if idStr != "" {
				return nil, newErrorf(KindInvalidHeader, "ACL other entry must have an empty id, got %q", idStr)
			}
			tag = ACLOther
		default:
			return nil, newErrorf(KindInvalidHeader, "unknown ACL type %q", typ)
		}
		if err != nil {
			return nil, err
		}

		entries = append(entries, ACLEntry{Tag: tag, ID: id, Perm: perm})
	}
	return entries, nil
}

func parseACLID(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, newErrorf(KindInvalidHeader, "ACL id %q is not a non-negative decimal integer", s)
	}
	return n, nil
}

func parseACLPerm(s string) (int, error) {
	if len(s) != 3 {
		return 0, newErrorf(KindInvalidHeader, "ACL permission %q must be exactly 3 characters", s)
	}
	var perm int
	letters := [3]struct {
		ch  byte
		bit int
	}{{'r', ACLRead}, {'w', ACLWrite}, {'x', ACLExecute}}
	for i, want := range letters {
		switch s[i] {
		case want.ch:
			perm |= want.bit
		case '-':
		default:
			return 0, newErrorf(KindInvalidHeader, "ACL permission %q has an invalid character at position %d", s, i)
		}
	}
	return perm, nil
}
