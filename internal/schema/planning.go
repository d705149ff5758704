package schema

import "time"

// Planning reserves a person's hours on a project for one week.
type Planning struct {
	ID        string  `yaml:"id" json:"id" toml:"id"`
	PersonID  string  `yaml:"personId" json:"personId" toml:"personId"`
	ProjectID string  `yaml:"projectId" json:"projectId" toml:"projectId"`
	WeekStart string  `yaml:"weekStart" json:"weekStart" toml:"weekStart"`
	Hours     float64 `yaml:"hours" json:"hours" toml:"hours"`
	Note      string  `yaml:"note,omitempty" json:"note,omitempty" toml:"note,omitempty"`
}

func (p Planning) EntityID() string { return p.ID }
func (Planning) Kind() Kind         { return KindPlanning }

func (p Planning) Validate() error {
	v := &ValidationError{}
	v.required("id", p.ID)
	v.required("personId", p.PersonID)
	v.required("projectId", p.ProjectID)
	v.date("weekStart", p.WeekStart, true)
	if d, err := ParseDate(p.WeekStart); err == nil && d.Weekday() != time.Monday {
		v.Add("weekStart", "must be a Monday")
	}
	if p.Hours < 0 || p.Hours > 168 {
		v.Add("hours", "must be between 0 and 168")
	}
	return v.Err()
}

// WeekStartOf returns the Monday on or before t, as a stored date.
func WeekStartOf(t time.Time) string {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format(DateLayout)
}
