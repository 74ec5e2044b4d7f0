package pdf_test

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/docpipeline/internal/pdf"
	"github.com/Lllllllleong/docpipeline/internal/pdf/pdftest"
)

func TestLibrary_PageCount(t *testing.T) {
	lib := pdf.NewLibrary()
	data := pdftest.Pages(t, 4)

	n, err := lib.PageCount(data, pdf.Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestLibrary_EncryptedNeedsPassphrase(t *testing.T) {
	lib := pdf.NewLibrary()
	locked := pdftest.Encrypt(t, pdftest.Pages(t, 2), "hunter2")

	_, err := lib.PageCount(locked, pdf.Options{Relaxed: true})
	assert.ErrorIs(t, err, pdf.ErrPasswordRequired)

	_, err = lib.PageCount(locked, pdf.Options{Passphrase: "wrong", Relaxed: true})
	assert.ErrorIs(t, err, pdf.ErrPasswordRequired)

	n, err := lib.PageCount(locked, pdf.Options{Passphrase: "hunter2", Relaxed: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	plain, err := lib.Decrypt(locked, "hunter2")
	require.NoError(t, err)
	n, err = lib.PageCount(plain, pdf.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// AES-256 output declares V=5 in a pre-2.0 file, which only relaxed
// validation accepts.
func TestLibrary_EncryptedStrictOpenFails(t *testing.T) {
	lib := pdf.NewLibrary()
	locked := pdftest.Encrypt(t, pdftest.Pages(t, 2), "hunter2")

	_, err := lib.PageCount(locked, pdf.Options{Passphrase: "hunter2"})
	assert.Error(t, err)

	n, err := lib.PageCount(locked, pdf.Options{Passphrase: "hunter2", Relaxed: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLibrary_Garbage(t *testing.T) {
	_, err := pdf.NewLibrary().PageCount([]byte("definitely not a pdf"), pdf.Options{Relaxed: true})
	assert.ErrorIs(t, err, pdf.ErrUnreadable)
}

func TestLibrary_TruncatedIsUnreadable(t *testing.T) {
	lib := pdf.NewLibrary()
	data := pdftest.Pages(t, 3)

	for _, relaxed := range []bool{false, true} {
		require.NotPanics(t, func() {
			_, err := lib.PageCount(data[:100], pdf.Options{Relaxed: relaxed})
			assert.ErrorIs(t, err, pdf.ErrUnreadable)
			_, err = lib.PageWidths(data[:100], pdf.Options{Relaxed: relaxed})
			assert.ErrorIs(t, err, pdf.ErrUnreadable)
		})
	}
	require.NotPanics(t, func() {
		_, err := lib.Optimize(data[:100], "")
		assert.ErrorIs(t, err, pdf.ErrUnreadable)
	})
}

func TestLibrary_TruncatedEncryptedNeverPanics(t *testing.T) {
	lib := pdf.NewLibrary()
	locked := pdftest.Encrypt(t, pdftest.Pages(t, 3), "pw")

	for _, cut := range [][]byte{locked[:100], locked[:len(locked)/2], locked[:len(locked)-20]} {
		require.NotPanics(t, func() {
			_, _ = lib.PageCount(cut, pdf.Options{})
			_, _ = lib.PageCount(cut, pdf.Options{Relaxed: true})
			_, _ = lib.PageWidths(cut, pdf.Options{Passphrase: "pw", Relaxed: true})
			_, _ = lib.Decrypt(cut, "pw")
			_, _ = lib.Optimize(cut, "pw")
		})
	}
}

func TestLibrary_LenientOnlyInRelaxedMode(t *testing.T) {
	lib := pdf.NewLibrary()
	data := pdftest.Lenient(t, 3)

	_, err := lib.PageCount(data, pdf.Options{})
	assert.ErrorIs(t, err, pdf.ErrUnreadable)

	n, err := lib.PageCount(data, pdf.Options{Relaxed: true})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestLibrary_CollectKeepsSelectionOrder(t *testing.T) {
	lib := pdf.NewLibrary()
	data := pdftest.Pages(t, 10)
	all := pdftest.PageWidths(t, data, "")

	out, err := lib.Collect(data, []int{6, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, []int{all[5], all[1], all[3]}, pdftest.PageWidths(t, out, ""))
}

func TestLibrary_Merge(t *testing.T) {
	lib := pdf.NewLibrary()
	a := pdftest.Document(t, 100, 110, 120)
	b := pdftest.Document(t, 300, 310)

	out, err := lib.Merge([][]byte{a, b})
	require.NoError(t, err)

	want := append(pdftest.PageWidths(t, a, ""), pdftest.PageWidths(t, b, "")...)
	assert.Equal(t, want, pdftest.PageWidths(t, out, ""))
}

func TestLibrary_RotateRejectsOddAngles(t *testing.T) {
	_, err := pdf.NewLibrary().Rotate(pdftest.Pages(t, 1), 45)
	assert.Error(t, err)
}

func TestThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 600))
	thumb := pdf.Thumbnail(src, 100)
	assert.Equal(t, 100, thumb.Bounds().Dx())
	assert.Equal(t, 150, thumb.Bounds().Dy())

	small := image.NewRGBA(image.Rect(0, 0, 50, 50))
	assert.Same(t, small, pdf.Thumbnail(small, 100))
}
