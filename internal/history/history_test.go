package history

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out
}

func TestLog_EvictsOldestFirst(t *testing.T) {
	l, err := Open("", 3)
	require.NoError(t, err)
	for _, n := range []string{"a", "b", "c", "d"} {
		require.NoError(t, l.Append(Entry{Name: n, Tool: "merge"}))
	}
	assert.Equal(t, []string{"b", "c", "d"}, names(l.Entries()))
	assert.False(t, l.Entries()[0].Timestamp.IsZero())

	require.NoError(t, l.SetMax(1))
	assert.Equal(t, []string{"d"}, names(l.Entries()))
}

func TestLog_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.json")
	l, err := Open(path, 5)
	require.NoError(t, err)
	require.NoError(t, l.Append(Entry{Name: "merged.pdf", Tool: "merge", Size: 42, Handle: "blob:1"}))
	require.NoError(t, l.Append(Entry{Name: "split.zip", Tool: "split", Size: 7}))

	reopened, err := Open(path, 1)
	require.NoError(t, err)
	entries := reopened.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "split.zip", entries[0].Name)
	assert.Equal(t, 7, entries[0].Size)

	require.NoError(t, reopened.Clear())
	again, err := Open(path, 5)
	require.NoError(t, err)
	assert.Empty(t, again.Entries())
}

func TestOpen_InvalidSize(t *testing.T) {
	_, err := Open("", 0)
	assert.Error(t, err)
}
