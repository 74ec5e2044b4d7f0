package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_LockedThenUnlocked(t *testing.T) {
	doc := NewDocument("secret.pdf", []byte("%PDF"))
	require.Equal(t, StatusPending, doc.Status)
	require.NotEmpty(t, doc.ID)

	require.NoError(t, doc.MarkLocked())
	assert.True(t, doc.Locked)
	assert.Zero(t, doc.PageCount)

	// A wrong passphrase keeps the document locked.
	require.NoError(t, doc.MarkLocked())

	require.NoError(t, doc.MarkUnlocked(7, "pw", []byte("png")))
	assert.False(t, doc.Locked)
	assert.Equal(t, 7, doc.PageCount)
	assert.Equal(t, "pw", doc.Passphrase)
}

func TestDocument_ProcessingLifecycle(t *testing.T) {
	doc := NewDocument("a.pdf", []byte("%PDF"))
	require.NoError(t, doc.MarkUnlocked(3, "", nil))
	require.NoError(t, doc.MarkProcessing())
	require.NoError(t, doc.MarkFailed(errors.New("boom")))
	assert.Equal(t, StatusError, doc.Status)
	assert.Equal(t, "boom", doc.Err)

	require.NoError(t, doc.Resubmit())
	assert.Equal(t, StatusPending, doc.Status)
	assert.Empty(t, doc.Err)
	assert.Zero(t, doc.PageCount)

	require.NoError(t, doc.MarkUnlocked(3, "", nil))
	require.NoError(t, doc.MarkProcessing())
	require.NoError(t, doc.MarkCompleted())
	assert.Equal(t, StatusCompleted, doc.Status)
}

func TestDocument_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Document)
		move  func(*Document) error
	}{
		{"pending to processing", func(*Document) {}, (*Document).MarkProcessing},
		{"locked to processing", func(d *Document) { _ = d.MarkLocked() }, (*Document).MarkProcessing},
		{"unlocked to completed", func(d *Document) { _ = d.MarkUnlocked(1, "", nil) }, (*Document).MarkCompleted},
		{"pending to pending", func(*Document) {}, (*Document).Resubmit},
		{"completed to processing", func(d *Document) {
			_ = d.MarkUnlocked(1, "", nil)
			_ = d.MarkProcessing()
			_ = d.MarkCompleted()
		}, (*Document).MarkProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument("x.pdf", nil)
			tt.setup(doc)
			before := doc.Status
			err := tt.move(doc)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, before, doc.Status)
		})
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("smallest")
	require.NoError(t, err)
	s, ok := tier.Settings()
	require.True(t, ok)
	assert.Equal(t, 2.0, s.Scale)
	assert.Equal(t, 0.7, s.Quality)

	_, err = ParseTier("tiny")
	assert.Error(t, err)
}

func TestValidate_Requests(t *testing.T) {
	valid := SplitRequest{
		Input:    InputDocument{Name: "a.pdf", Data: []byte("x")},
		Pages:    []int{2, 4, 6},
		Mode:     SplitSingle,
		BaseName: "a",
	}
	assert.NoError(t, Validate(valid))

	bad := valid
	bad.Pages = []int{0}
	assert.Error(t, Validate(bad))

	bad = valid
	bad.Mode = "pairs"
	assert.Error(t, Validate(bad))

	bad = valid
	bad.Input.Rotation = 45
	assert.Error(t, Validate(bad))

	assert.Error(t, Validate(MergeRequest{}))
	assert.Error(t, Validate(CompressRequest{Name: "a.pdf", Tier: TierHigh}))
}
