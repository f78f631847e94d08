package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/EmanuelC1601/back-end/internal/database"
)

// sqlTimeLayout is how timestamps are bound.  Both mysql DATETIME and the
// sqlite text representation accept it and it sorts lexicographically.
const sqlTimeLayout = "2006-01-02 15:04:05"

// now returns the insertion timestamp, truncated to what DATETIME keeps.
func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func sqlTime(t time.Time) string { return t.UTC().Format(sqlTimeLayout) }

var textLayouts = []string{
	sqlTimeLayout,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
	"2006-01-02",
}

// timeScanner accepts the representations drivers return for DATETIME
// columns and aggregates over them: time.Time from mysql with parseTime,
// text from sqlite.  NULL leaves Valid false.
type timeScanner struct {
	T     time.Time
	Valid bool
}

func (s *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		s.T, s.Valid = time.Time{}, false
		return nil
	case time.Time:
		s.T, s.Valid = v.UTC(), true
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (s *timeScanner) parse(v string) error {
	for _, layout := range textLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			s.T, s.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", v)
}

// mapInsertErr turns unique key violations into ErrDuplicate while keeping
// the original chain.
func mapInsertErr(op string, err error) error {
	if errors.Is(err, database.ErrConstraint) {
		return fmt.Errorf("%s: %w: %w", op, ErrDuplicate, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
