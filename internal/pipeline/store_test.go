package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ConsumeOnce(t *testing.T) {
	s := NewStore()
	s.Set(File{Data: []byte("out"), Name: "merged.pdf", MIMEType: "application/pdf", OriginalData: []byte("in")})
	assert.True(t, s.Pending())

	f, ok := s.Consume()
	require.True(t, ok)
	assert.Equal(t, "merged.pdf", f.Name)
	assert.Equal(t, []byte("in"), f.OriginalData)

	_, ok = s.Consume()
	assert.False(t, ok)
	assert.False(t, s.Pending())
}

func TestStore_LastWriteWins(t *testing.T) {
	s := NewStore()
	s.Set(File{Name: "first.pdf"})
	s.Set(File{Name: "second.pdf"})
	f, ok := s.Consume()
	require.True(t, ok)
	assert.Equal(t, "second.pdf", f.Name)
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()
	s.Set(File{Name: "a.pdf"})
	s.Clear()
	_, ok := s.Consume()
	assert.False(t, ok)
}

func TestStore_WithdrawOnlyOwnFile(t *testing.T) {
	s := NewStore()
	s.Set(File{Name: "a.pdf", Source: "merge-1"})

	assert.False(t, s.Withdraw("split-2"))
	assert.True(t, s.Pending())

	assert.True(t, s.Withdraw("merge-1"))
	assert.False(t, s.Pending())
	assert.False(t, s.Withdraw("merge-1"))
}
