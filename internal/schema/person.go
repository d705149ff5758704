package schema

// Person is a team member that tasks can be assigned to.
type Person struct {
	ID         string `yaml:"id" json:"id" toml:"id"`
	Name       string `yaml:"name" json:"name" toml:"name"`
	Initials   string `yaml:"initials" json:"initials" toml:"initials"`
	Color      string `yaml:"color" json:"color" toml:"color"`
	Email      string `yaml:"email,omitempty" json:"email,omitempty" toml:"email,omitempty"`
	IsArchived bool   `yaml:"isArchived" json:"isArchived" toml:"isArchived"`
}

func (p Person) EntityID() string { return p.ID }
func (Person) Kind() Kind         { return KindPerson }

// Validate checks if the Person has valid field values.
func (p Person) Validate() error {
	v := &ValidationError{}
	v.required("id", p.ID)
	v.required("name", p.Name)
	v.maxLen("name", p.Name, 200)
	if n := len([]rune(p.Initials)); n < 1 || n > 3 {
		v.Add("initials", "must be 1 to 3 characters")
	}
	v.color("color", p.Color)
	return v.Err()
}
