package tar

import "fmt"

// buildHeader assembles a single 512-byte ustar/GNU header record by hand,
// filling every fixed-width field and computing a correct checksum. It
// mirrors the field layout decodeHeaderRecord expects, letting tests
// exercise the decoder without binary testdata fixtures.
type rawHeaderFields struct {
	name     string
	mode     int64
	uid      int64
	gid      int64
	size     int64
	mtime    int64
	typeflag byte
	linkname string
	magic    string
	version  string
	uname    string
	gname    string
	devmajor int64
	devminor int64
	prefix   string
}

func octalField(v int64, width int) []byte {
	s := fmt.Sprintf("%0*o", width-1, v)
	b := make([]byte, width)
	copy(b, s)
	b[width-1] = 0
	return b
}

func strField(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

func buildHeader(f rawHeaderFields) [512]byte {
	var blk [512]byte
	copy(blk[0:100], strField(f.name, 100))
	copy(blk[100:108], octalField(f.mode, 8))
	copy(blk[108:116], octalField(f.uid, 8))
	copy(blk[116:124], octalField(f.gid, 8))
	copy(blk[124:136], octalField(f.size, 12))
	copy(blk[136:148], octalField(f.mtime, 12))
	for i := 148; i < 156; i++ {
		blk[i] = ' '
	}
	blk[156] = f.typeflag
	copy(blk[157:257], strField(f.linkname, 100))
	magic := f.magic
	if magic == "" {
		magic = magicUSTAR
	}
	copy(blk[257:263], strField(magic, 6))
	copy(blk[263:265], strField(f.version, 2))
	copy(blk[265:297], strField(f.uname, 32))
	copy(blk[297:329], strField(f.gname, 32))
	copy(blk[329:337], octalField(f.devmajor, 8))
	copy(blk[337:345], octalField(f.devminor, 8))
	copy(blk[345:500], strField(f.prefix, 155))

	unsigned, _ := computeChecksum(blk)
	copy(blk[148:156], octalField(unsigned, 8))
	return blk
}

// computeChecksum duplicates fields.Checksum's algorithm so the test
// fixtures compute their checksums independently of the code under test.
func computeChecksum(blk [512]byte) (unsigned, signed int64) {
	for i := 0; i < len(blk); i++ {
		if i == 148 {
			unsigned += ' ' * 8
			signed += ' ' * 8
			i += 7
			continue
		}
		unsigned += int64(blk[i])
		signed += int64(int8(blk[i]))
	}
	return
}
