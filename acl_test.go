package tar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseACLTextBasic(t *testing.T) {
	entries, err := parseACLText("user::rwx,group::r-x,other::r--")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ACLEntry{Tag: ACLUserObj, Perm: ACLRead | ACLWrite | ACLExecute}, entries[0])
	assert.Equal(t, ACLEntry{Tag: ACLGroupObj, Perm: ACLRead | ACLExecute}, entries[1])
	assert.Equal(t, ACLEntry{Tag: ACLOther, Perm: ACLRead}, entries[2])
}

func TestParseACLTextNamedUserAndGroup(t *testing.T) {
	entries, err := parseACLText("user:1000:rw-,group:2000:r--,mask::r-x")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ACLEntry{Tag: ACLUser, ID: 1000, Perm: ACLRead | ACLWrite}, entries[0])
	assert.Equal(t, ACLEntry{Tag: ACLGroup, ID: 2000, Perm: ACLRead}, entries[1])
	assert.Equal(t, ACLEntry{Tag: ACLMask, Perm: ACLRead | ACLExecute}, entries[2])
}

func TestParseACLTextSkipsBlankEntries(t *testing.T) {
	entries, err := parseACLText("user::rwx,,other::r--")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseACLTextMalformedGrammar(t *testing.T) {
	_, err := parseACLText("user:1000")
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))
}

func TestParseACLTextUnknownType(t *testing.T) {
	_, err := parseACLText("bogus::rwx")
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))
}

func TestParseACLTextInvalidPerm(t *testing.T) {
	_, err := parseACLText("user::rzx")
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))

	_, err = parseACLText("user::rw")
	require.Error(t, err)
}

func TestParseACLTextInvalidID(t *testing.T) {
	_, err := parseACLText("user:notanumber:rwx")
	require.Error(t, err)
	assert.Equal(t, KindInvalidHeader, Kind(err))

	_, err = parseACLText("user:-5:rwx")
	require.Error(t, err)
}

func TestParseACLTextMaskAndOtherRejectIDs(t *testing.T) {
	_, err := parseACLText("mask:5:rwx")
	require.Error(t, err)

	_, err = parseACLText("other:5:rwx")
	require.Error(t, err)
}
