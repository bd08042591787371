// Package organizer files processed source documents into outcome folders.
package organizer

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// Destination is an outcome folder
type Destination int

const (
	Processed Destination = iota
	Duplicates
	Errors
)

func (d Destination) String() string {
	switch d {
	case Processed:
		return "processed"
	case Duplicates:
		return "duplicates"
	case Errors:
		return "errors"
	default:
		return "unknown"
	}
}

// Default folder names, created under the source folder
const (
	DefaultProcessedDir  = "Processados"
	DefaultDuplicatesDir = "Duplicatas"
	DefaultErrorsDir     = "Erros"
)

// maxCollisions bounds the numbered suffixes tried for one name
const maxCollisions = 1000

// Options configures an Organizer
type Options struct {
	ProcessedDir  string
	DuplicatesDir string
	ErrorsDir     string
	// DatePartition nests files under a YYYY-MM-DD folder
	DatePartition bool
	Now           func() time.Time
}

// DefaultOptions places the three folders under source
func DefaultOptions(source string) Options {
	return Options{
		ProcessedDir:  filepath.Join(source, DefaultProcessedDir),
		DuplicatesDir: filepath.Join(source, DefaultDuplicatesDir),
		ErrorsDir:     filepath.Join(source, DefaultErrorsDir),
		DatePartition: true,
	}
}

// Organizer moves files without ever overwriting an existing one, also
// when several workers move files of the same name at once.
type Organizer struct {
	dirs          map[Destination]string
	datePartition bool
	now           func() time.Time
}

// New returns an Organizer for opts
func New(opts Options) *Organizer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Organizer{
		dirs: map[Destination]string{
			Processed:  opts.ProcessedDir,
			Duplicates: opts.DuplicatesDir,
			Errors:     opts.ErrorsDir,
		},
		datePartition: opts.DatePartition,
		now:           opts.Now,
	}
}

// EnsureDirs creates the three outcome folders
func (o *Organizer) EnsureDirs() error {
	for _, d := range []Destination{Processed, Duplicates, Errors} {
		dir := o.dirs[d]
		if dir == "" {
			return errors.Newf("organizer: no folder configured for %s", d)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Mark(errors.Wrapf(err, "create %s folder", d), errors.ErrFilesystem)
		}
	}
	return nil
}

// Dir returns the folder of d
func (o *Organizer) Dir(d Destination) string {
	return o.dirs[d]
}

// Move relocates src into the folder of dest and returns the final path.
// With date partitioning the file lands under the study date, or today's
// date when studyDate is zero. Errors are marked errors.ErrFilesystem.
func (o *Organizer) Move(src string, dest Destination, studyDate time.Time) (string, error) {
	dir, ok := o.dirs[dest]
	if !ok || dir == "" {
		return "", errors.Mark(errors.Newf("organizer: unknown destination %d", dest), errors.ErrFilesystem)
	}

	now := o.now()
	if o.datePartition {
		day := studyDate
		if day.IsZero() {
			day = now
		}
		dir = filepath.Join(dir, day.Format("2006-01-02"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "create %s", dir), errors.ErrFilesystem)
	}

	target, err := reserve(dir, filepath.Base(src), now)
	if err != nil {
		return "", errors.Mark(err, errors.ErrFilesystem)
	}

	if err := moveFile(src, target); err != nil {
		os.Remove(target)
		return "", errors.Mark(errors.Wrapf(err, "move %s", src), errors.ErrFilesystem)
	}
	return target, nil
}

// reserve claims a free name in dir by creating it exclusively. Candidates
// are name, name-HHMMSS and name-HHMMSS-n, keeping the extension.
func reserve(dir, name string, now time.Time) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamp := now.Format("150405")

	for n := 0; n <= maxCollisions; n++ {
		var candidate string
		switch n {
		case 0:
			candidate = name
		case 1:
			candidate = stem + "-" + stamp + ext
		default:
			candidate = stem + "-" + stamp + "-" + strconv.Itoa(n-1) + ext
		}

		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", errors.Wrapf(err, "reserve %s", path)
		}
	}
	return "", errors.Newf("no free name for %s in %s", name, dir)
}

// moveFile renames src over the reserved target, copying when they are on
// different devices
func moveFile(src, target string) error {
	err := os.Rename(src, target)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Err != syscall.EXDEV {
		return err
	}
	if err := copyFile(src, target); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, target string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
