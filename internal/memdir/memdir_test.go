package memdir

import (
	"testing"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

func TestCreateTypedThenGetEntry(t *testing.T) {
	s := New()
	root := ktypes.UID{High: 1}
	s.Root(root)

	child, st := s.CreateTyped(root, "file.txt", 1)
	require.True(t, st.OK())
	require.True(t, s.Exists(child))

	got, found, st := s.GetEntry(root, "file.txt", nil)
	require.True(t, st.OK())
	require.True(t, found)
	require.Equal(t, child, got)
}

func TestAddLinkRejectsDuplicateName(t *testing.T) {
	s := New()
	root := ktypes.UID{High: 1}
	s.Root(root)
	target := ktypes.UID{High: 2}

	require.True(t, s.AddLink(root, "a", target, false).OK())
	require.Equal(t, status.BitAlreadyFree, s.AddLink(root, "a", target, false))
}

func TestDropLinkThenGetEntryMisses(t *testing.T) {
	s := New()
	root := ktypes.UID{High: 1}
	s.Root(root)
	target := ktypes.UID{High: 2}
	s.AddLink(root, "a", target, false)

	require.True(t, s.DropLink(root, "a", false).OK())
	_, found, st := s.GetEntry(root, "a", nil)
	require.True(t, st.OK())
	require.False(t, found)
}

func TestOperationsOnMissingUIDReturnFileNotFound(t *testing.T) {
	s := New()
	missing := ktypes.UID{High: 99}
	require.Equal(t, status.FileNotFound, s.SetACL(missing, nil))
	require.Equal(t, status.FileNotFound, s.TruncateDelete(missing, 0))
}
