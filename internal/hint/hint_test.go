package hint

import (
	"path/filepath"
	"testing"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/stretchr/testify/require"
)

func TestAddThenLookup(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "hints.db"), 1, 2)
	require.NoError(t, err)

	uid := ktypes.UID{Low: 12345}
	f.Add(uid, 7, 0, 7, ktypes.UID{Low: 99})

	node, ok := f.Lookup(uid, 0)
	require.True(t, ok)
	require.EqualValues(t, 7, node)
	require.True(t, f.EachBucketValid())
}

func TestMostRecentContactShiftsToFront(t *testing.T) {
	f, _ := Open(filepath.Join(t.TempDir(), "hints.db"), 1, 2)
	uid := ktypes.UID{Low: 55}

	f.Add(uid, 1, 0, 9, ktypes.UID{})
	f.Add(uid, 2, 0, 9, ktypes.UID{})
	f.Add(uid, 3, 0, 9, ktypes.UID{})

	node, ok := f.Lookup(uid, 0)
	require.True(t, ok)
	require.EqualValues(t, 3, node)

	// Re-contacting node 1 should move it back to the front.
	f.Add(uid, 1, 0, 9, ktypes.UID{})
	node, _ = f.Lookup(uid, 10000)
	require.EqualValues(t, 1, node)
}

func TestVersionMismatchInvalidatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.db")
	f, _ := Open(path, 1, 2)
	f.Add(ktypes.UID{Low: 1}, 5, 0, 9, ktypes.UID{})
	require.NoError(t, f.Flush())

	reopened, err := Open(path, 1, 3) // different net_info
	require.NoError(t, err)
	_, ok := reopened.Lookup(ktypes.UID{Low: 1}, 0)
	require.False(t, ok)
}
