// Package datespec parses user-entered dates: ISO dates first, then English
// phrases such as "tomorrow" or "next friday".
package datespec

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// Parse resolves s relative to now and returns the calendar day in now's
// location.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(schema.DateLayout, s, now.Location()); err == nil {
		return t, nil
	}
	if strings.EqualFold(s, "today") {
		return day(now), nil
	}

	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return day(r.Time.In(now.Location())), nil
}

// Format parses s and returns it as a stored date.
func Format(s string, now time.Time) (string, error) {
	t, err := Parse(s, now)
	if err != nil {
		return "", err
	}
	return t.Format(schema.DateLayout), nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
