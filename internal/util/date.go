package util

import (
	"fmt"
	"regexp"
	"time"
)

// PRISM daily grids embed the observation date as an 8-digit run in the
// file name, e.g. PRISM_tmax_stable_4kmD2_20110121_bil.zip.
var fileDateRegex = regexp.MustCompile(`\d{8}`)

const fileDateLayout = "20060102"

// ExtractFileDate pulls the first embedded 8-digit YYYYMMDD substring out
// of name and parses it as a UTC calendar date. A name without a valid
// date substring is an error; grids are useless without one.
func ExtractFileDate(name string) (time.Time, error) {
	match := fileDateRegex.FindString(name)
	if match == "" {
		return time.Time{}, fmt.Errorf("no 8-digit date substring in %q", name)
	}
	t, err := time.ParseInLocation(fileDateLayout, match, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q from %q: %w", match, name, err)
	}
	return t, nil
}
