// Package archive packages several outputs into one zip for download.
package archive

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/Lllllllleong/docpipeline/internal/models"
)

// MIMEType is the media type of archives built by Build.
const MIMEType = "application/zip"

// Build writes every file as a flat entry under its own name. Names are not
// de-duplicated: a repeated name produces a second entry, which shadows the
// first when extracted.
func Build(files []models.NamedFile) ([]byte, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("failed to build archive: no files")
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	modified := time.Now()
	for _, f := range files {
		name := flatten(f.Name)
		if name == "" {
			return nil, fmt.Errorf("failed to build archive: empty entry name")
		}
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to add %s to archive: %w", name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("failed to write %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish archive: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten drops any directory part so the archive has no nesting.
func flatten(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
