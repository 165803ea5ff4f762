package tar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePAXRecords(t *testing.T) {
	data := []byte("16 path=foo.txt\n21 GNU.sparse.name=x\n")
	records, err := parsePAXRecords(data)
	require.NoError(t, err)
	assert.Equal(t, "foo.txt", records["path"])
	assert.Equal(t, "x", records["GNU.sparse.name"])
}

func TestParsePAXRecordsDuplicateKeyLastWins(t *testing.T) {
	data := []byte("7 a=1\n7 a=2\n")
	records, err := parsePAXRecords(data)
	require.NoError(t, err)
	assert.Equal(t, "2", records["a"])
}

func TestParsePAXRecordsMissingEquals(t *testing.T) {
	data := []byte("8 nokey\n")
	_, err := parsePAXRecords(data)
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))
}

func TestParsePAXRecordsBadLength(t *testing.T) {
	_, err := parsePAXRecords([]byte("abc path=x\n"))
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))
}

func TestParsePAXRecordsLengthOverrun(t *testing.T) {
	_, err := parsePAXRecords([]byte("999 path=x\n"))
	require.Error(t, err)
	assert.Equal(t, KindCorruptArchive, Kind(err))
}

func TestApplyPAXRecordsOverridesNameAndSize(t *testing.T) {
	hdr := &Header{Name: "short", Size: 4}
	err := applyPAXRecords(hdr, map[string]string{
		paxPath: "a/very/long/path.txt",
		paxSize: "123456789012",
	})
	require.NoError(t, err)
	assert.Equal(t, "a/very/long/path.txt", hdr.Name)
	assert.EqualValues(t, 123456789012, hdr.Size)
	assert.Equal(t, "123456789012", hdr.PAXRecords[paxSize])
}

func TestApplyPAXRecordsInvalidSizeIgnored(t *testing.T) {
	hdr := &Header{Name: "f", Size: 4}
	err := applyPAXRecords(hdr, map[string]string{paxSize: "not-a-number"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, hdr.Size)
}

func TestApplyPAXRecordsXattrs(t *testing.T) {
	hdr := &Header{}
	err := applyPAXRecords(hdr, map[string]string{
		paxSchilyXattr + "user.comment": "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", hdr.Xattrs["user.comment"])
}

func TestApplyPAXRecordsACL(t *testing.T) {
	hdr := &Header{}
	err := applyPAXRecords(hdr, map[string]string{
		paxSchilyACLAcc: "user::rwx,group::r-x,other::r--",
	})
	require.NoError(t, err)
	require.Len(t, hdr.AccessACL, 3)
	assert.Equal(t, ACLUserObj, hdr.AccessACL[0].Tag)
}
