package extractor

import (
	"fmt"
	"strconv"
	"time"
)

// missingMarker is written for zones with no valid cell under the grid,
// e.g. coastal tracts falling entirely on nodata water cells. Downstream
// R and Python tooling both read "NA" as missing.
const missingMarker = "NA"

// Stat is a zonal statistic that may be missing. Missing is a legitimate
// outcome, not an error: the zone row is still emitted so every output
// file carries the full zone set.
type Stat struct {
	Mean  float64
	Valid bool
}

func (s Stat) MarshalCSV() ([]byte, error) {
	if !s.Valid {
		return []byte(missingMarker), nil
	}
	return strconv.AppendFloat(nil, s.Mean, 'f', -1, 64), nil
}

func (s *Stat) UnmarshalCSV(data []byte) error {
	if string(data) == missingMarker {
		*s = Stat{}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse stat %q: %w", data, err)
	}
	*s = Stat{Mean: v, Valid: true}
	return nil
}

// Date is a calendar date serialized as YYYY-MM-DD.
type Date time.Time

const dateLayout = "2006-01-02"

func (d Date) MarshalCSV() ([]byte, error) {
	return []byte(time.Time(d).Format(dateLayout)), nil
}

func (d *Date) UnmarshalCSV(data []byte) error {
	t, err := time.ParseInLocation(dateLayout, string(data), time.UTC)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", data, err)
	}
	*d = Date(t)
	return nil
}

// Row is one output record: the mean of a grid's valid cells inside one
// zone, on the grid's observation date. The identifier column keeps the
// census tract property name so existing analysis notebooks join on it
// unchanged.
type Row struct {
	ZoneID string `csv:"GEOID10"`
	Date   Date   `csv:"date"`
	Mean   Stat   `csv:"mean"`
}
