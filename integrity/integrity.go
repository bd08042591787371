// Package integrity rejects truncated or non-PDF source documents before any
// registry traffic happens.
package integrity

import (
	"bytes"
	"fmt"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// Reason codes of a failed check
const (
	ReasonTooSmall         = "too-small"
	ReasonTooLarge         = "too-large"
	ReasonMissingSignature = "missing-signature"
	ReasonMissingTrailer   = "missing-trailer"
)

// Defaults
const (
	DefaultMinSize       = 64
	DefaultMaxSize       = 50 << 20
	DefaultTrailerWindow = 1024
)

var (
	pdfSignature = []byte("%PDF-")
	pdfTrailer   = []byte("%%EOF")
)

// Options configures the checker; zero values take the defaults
type Options struct {
	MinSize       int64
	MaxSize       int64
	TrailerWindow int
}

// Checker validates raw document bytes
type Checker struct {
	minSize       int64
	maxSize       int64
	trailerWindow int
}

// NewChecker returns a Checker
func NewChecker(opts Options) *Checker {
	if opts.MinSize <= 0 {
		opts.MinSize = DefaultMinSize
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.TrailerWindow <= 0 {
		opts.TrailerWindow = DefaultTrailerWindow
	}
	return &Checker{
		minSize:       opts.MinSize,
		maxSize:       opts.MaxSize,
		trailerWindow: opts.TrailerWindow,
	}
}

// CorruptionError describes the first failed check
type CorruptionError struct {
	Reason string
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("corrupted document (%s): %s", e.Reason, e.Detail)
}

func corrupted(reason, format string, args ...interface{}) error {
	return errors.Mark(&CorruptionError{Reason: reason, Detail: fmt.Sprintf(format, args...)}, errors.ErrCorruptedSource)
}

// MaxSize is the largest accepted document in bytes
func (c *Checker) MaxSize() int64 {
	return c.maxSize
}

// CheckSize applies the size bounds alone, so a file can be rejected from
// its stat before it is read
func (c *Checker) CheckSize(size int64) error {
	if size < c.minSize {
		return corrupted(ReasonTooSmall, "%d bytes, minimum is %d", size, c.minSize)
	}
	if size > c.maxSize {
		return corrupted(ReasonTooLarge, "%d bytes, maximum is %d", size, c.maxSize)
	}
	return nil
}

// Check runs the size, signature and trailer checks in that order
func (c *Checker) Check(content []byte) error {
	if err := c.CheckSize(int64(len(content))); err != nil {
		return err
	}
	if !bytes.HasPrefix(content, pdfSignature) {
		return corrupted(ReasonMissingSignature, "no %s header", pdfSignature)
	}

	tail := content
	if len(tail) > c.trailerWindow {
		tail = tail[len(tail)-c.trailerWindow:]
	}
	if !bytes.Contains(tail, pdfTrailer) {
		return corrupted(ReasonMissingTrailer, "no %s in the last %d bytes", pdfTrailer, c.trailerWindow)
	}

	return nil
}

// Reason returns the reason code of a Check error, or "" when err is not one
func Reason(err error) string {
	var ce *CorruptionError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ""
}
