package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// ExtractZIPSingle extracts the payload of an archive that holds exactly one
// file and returns the path it was written to. Catalog snapshots ship as a
// single zipped CSV or XLSX, sometimes nested inside a folder entry; the
// payload lands directly in destDir under its base name.
func ExtractZIPSingle(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}

	switch len(files) {
	case 0:
		return "", eris.New("zip: archive is empty")
	case 1:
		return writeZIPEntry(files[0], destDir)
	default:
		return "", eris.Errorf("zip: archive has %d files, want one", len(files))
	}
}

// writeZIPEntry copies one entry into destDir. Flattening to the base name
// keeps hostile entry paths from escaping destDir.
func writeZIPEntry(f *zip.File, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create destination directory")
	}
	destPath := filepath.Join(destDir, filepath.Base(f.Name))

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}

	return destPath, nil
}
