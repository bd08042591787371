package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// IsCandidate reports whether name has a .pdf extension, in any case
func IsCandidate(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Discover lists the candidate files directly inside folder, sorted by
// name. Subfolders, the outcome folders among them, are not entered.
func Discover(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "scan %s", folder), errors.ErrFilesystem)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsCandidate(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(folder, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// statSource describes path without reading it
func statSource(path string) (*SourceDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "stat %s", path), errors.ErrFilesystem)
	}
	return &SourceDocument{
		Path: path,
		Name: filepath.Base(path),
		Size: info.Size(),
	}, nil
}

// load reads the content, at most limit+1 bytes, so a file that grew past
// the limit after its stat is still reported as too large
func (d *SourceDocument) load(limit int64) error {
	f, err := os.Open(d.Path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open %s", d.Path), errors.ErrFilesystem)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "read %s", d.Path), errors.ErrFilesystem)
	}
	d.Content = content
	d.Size = int64(len(content))
	return nil
}
