package identity

import (
	"time"

	"github.com/caio-sobreiro/pdfpacs/errors"
)

// DefaultCenturyBuffer is how many years past the current two-digit year a
// six-digit date may still fall in the current century.
const DefaultCenturyBuffer = 1

// DateResolver turns 6 and 8 digit date tokens into calendar dates.
//
// Six-digit tokens are DDMMYY. The two-digit year yy belongs to the current
// century when yy <= (currentYear % 100) + CenturyBuffer, and to the
// previous century otherwise. In 2025 with a buffer of 1, "26" is 2026 and
// "27" is 1927. The same cutoff written with a strict yy < current + B
// needs B = CenturyBuffer + 1, so a buffer of 1 here matches a buffer of 2
// in that form.
//
// Eight-digit tokens are read as DDMMYYYY first and as YYYYMMDD (years
// 1900-2099) when that is not a real date.
type DateResolver struct {
	CenturyBuffer int
	Now           func() time.Time
}

// NewDateResolver returns a resolver using the wall clock
func NewDateResolver(centuryBuffer int) DateResolver {
	return DateResolver{CenturyBuffer: centuryBuffer, Now: time.Now}
}

func (r DateResolver) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Resolve parses a date token
func (r DateResolver) Resolve(token string) (time.Time, error) {
	if !isDigits(token) {
		return time.Time{}, errors.Newf("date token %q is not numeric", token)
	}

	switch len(token) {
	case 6:
		day, month, yy := atoi(token[0:2]), atoi(token[2:4]), atoi(token[4:6])
		return calendarDate(r.resolveCentury(yy), month, day)
	case 8:
		if d, err := calendarDate(atoi(token[4:8]), atoi(token[2:4]), atoi(token[0:2])); err == nil {
			return d, nil
		}
		year := atoi(token[0:4])
		if year < 1900 || year > 2099 {
			return time.Time{}, errors.Newf("date token %q is not a valid date", token)
		}
		return calendarDate(year, atoi(token[4:6]), atoi(token[6:8]))
	default:
		return time.Time{}, errors.Newf("date token %q must have 6 or 8 digits", token)
	}
}

func (r DateResolver) resolveCentury(yy int) int {
	current := r.now().Year()
	century := current - current%100
	if yy <= current%100+r.CenturyBuffer {
		return century + yy
	}
	return century - 100 + yy
}

// calendarDate rejects dates that time.Date would normalize, like 31/02
func calendarDate(year, month, day int) (time.Time, error) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, errors.Newf("%04d-%02d-%02d is not a valid date", year, month, day)
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day || int(d.Month()) != month {
		return time.Time{}, errors.Newf("%04d-%02d-%02d is not a valid date", year, month, day)
	}
	return d, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
