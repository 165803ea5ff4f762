package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimString(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte("hello\x00\x00\x00"), "hello"},
		{[]byte("\x00\x00\x00"), ""},
		{[]byte("nopad"), "nopad"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, TrimString(c.in))
	}
}

func TestOctal(t *testing.T) {
	cases := []struct {
		in     []byte
		want   int64
		wantOk bool
	}{
		{[]byte("0000644\x00"), 0644, true},
		{[]byte("        "), 0, true},
		{[]byte("\x00\x00\x00\x00\x00\x00\x00\x00"), 0, true},
		{[]byte("0000008\x00"), 0, false}, // '8' is not an octal digit
		{[]byte("00007777777"), 07777777, true},
	}
	for _, c := range cases {
		got, ok := Octal(c.in)
		require.Equal(t, c.wantOk, ok)
		if ok {
			assert.Equal(t, c.want, got)
		}
	}
}

func TestSparseOctal(t *testing.T) {
	// SparseOctal tolerates leading junk by taking the longest run of octal
	// digits anywhere in the field.
	v, ok := SparseOctal([]byte("\x80\x00\x00\x00\x00\x00\x00\x0012345"))
	require.True(t, ok)
	assert.Equal(t, int64(012345), v)

	v, ok = SparseOctal([]byte("\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"))
	require.True(t, ok)
	assert.Equal(t, int64(0), v)
}

func TestChecksum(t *testing.T) {
	header := make([]byte, 512)
	for i := range header {
		header[i] = byte(i % 7)
	}
	unsigned, signed := Checksum(header)
	assert.NotZero(t, unsigned)
	assert.NotZero(t, signed)

	// The checksum field itself must be treated as eight spaces regardless
	// of what bytes were actually present there.
	copy(header[148:156], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	unsigned2, signed2 := Checksum(header)
	assert.Equal(t, unsigned, unsigned2)
	assert.Equal(t, signed, signed2)
}

func TestSlicer(t *testing.T) {
	s := Slicer([]byte("abcdefghij"))
	assert.Equal(t, []byte("abc"), s.Next(3))
	assert.Equal(t, []byte("def"), s.Next(3))
	assert.Equal(t, []byte("ghij"), s.Next(4))
}
