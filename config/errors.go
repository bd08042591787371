package config

import (
	"fmt"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// Error names the offending key
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return "config: " + e.Key + " " + e.Reason
}

func newError(key, reason string) error {
	return errors.WithStack(&Error{Key: key, Reason: reason})
}

func newErrorf(key, format string, args ...interface{}) error {
	return errors.WithStack(&Error{Key: key, Reason: fmt.Sprintf(format, args...)})
}
