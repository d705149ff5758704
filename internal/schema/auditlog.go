package schema

import "time"

// Action is the kind of mutation an audit record describes.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// AllEntities is the entity id recorded for whole-collection replacements.
const AllEntities = "*"

// Changes holds the untyped payloads of one mutation. Items is set only for
// whole-collection replacements.
type Changes struct {
	Before Record   `yaml:"before,omitempty" json:"before,omitempty" toml:"before,omitempty"`
	After  Record   `yaml:"after,omitempty" json:"after,omitempty" toml:"after,omitempty"`
	Items  []Record `yaml:"items,omitempty" json:"items,omitempty" toml:"items,omitempty"`
}

// AuditLog is the immutable record of one committed mutation. TargetID is
// the id of the mutated entity (stored as entityId).
type AuditLog struct {
	ID         string    `yaml:"id" json:"id" toml:"id"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp" toml:"timestamp"`
	UserID     string    `yaml:"userId" json:"userId" toml:"userId"`
	Action     Action    `yaml:"action" json:"action" toml:"action"`
	EntityType Kind      `yaml:"entityType" json:"entityType" toml:"entityType"`
	TargetID   string    `yaml:"entityId" json:"entityId" toml:"entityId"`
	Changes    Changes   `yaml:"changes" json:"changes" toml:"changes"`
}

func (a AuditLog) EntityID() string { return a.ID }
func (AuditLog) Kind() Kind         { return KindAuditLog }

func (a AuditLog) Validate() error {
	v := &ValidationError{}
	v.required("id", a.ID)
	if a.Timestamp.IsZero() {
		v.Add("timestamp", "is required")
	}
	if !a.Action.Valid() {
		v.Add("action", "must be CREATE, UPDATE or DELETE")
	}
	if !a.EntityType.Valid() {
		v.Add("entityType", "is not a known kind")
	}
	v.required("entityId", a.TargetID)
	return v.Err()
}
