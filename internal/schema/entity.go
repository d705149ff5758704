// Package schema defines the stored entity kinds and their validation rules.
//
// Every kind is a plain struct with camelCase YAML/JSON tags, an EntityID
// accessor, and a Validate method. Kind-tagged decoding (DecodeJSON,
// FromRecord) turns untyped payloads back into the concrete struct, so
// events can carry typed before/after values.
package schema

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind names an entity collection.
type Kind string

const (
	KindPerson     Kind = "person"
	KindProject    Kind = "project"
	KindMilestone  Kind = "milestone"
	KindTask       Kind = "task"
	KindAssignment Kind = "assignment"
	KindLabel      Kind = "label"
	KindPlanning   Kind = "planning"
	KindAuditLog   Kind = "auditLog"
)

// BusinessKinds are the user-editable collections, in dependency order.
var BusinessKinds = []Kind{
	KindPerson,
	KindProject,
	KindLabel,
	KindMilestone,
	KindTask,
	KindAssignment,
	KindPlanning,
}

var kindInfo = map[Kind]struct {
	plural string
	file   string
}{
	KindPerson:     {"people", "people.yaml"},
	KindProject:    {"projects", "projects.yaml"},
	KindMilestone:  {"milestones", "milestones.yaml"},
	KindTask:       {"tasks", "tasks.yaml"},
	KindAssignment: {"assignments", "assignments.yaml"},
	KindLabel:      {"labels", "labels.yaml"},
	KindPlanning:   {"plannings", "plannings.yaml"},
	KindAuditLog:   {"audit-logs", "audit-logs.yaml"},
}

// Plural returns the collection name used in URLs.
func (k Kind) Plural() string { return kindInfo[k].plural }

// FileName returns the document file name inside the data directory.
func (k Kind) FileName() string { return kindInfo[k].file }

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	_, ok := kindInfo[k]
	return ok
}

// KindFromPlural maps a URL collection name back to its kind.
func KindFromPlural(plural string) (Kind, bool) {
	for k, info := range kindInfo {
		if info.plural == plural {
			return k, true
		}
	}
	return "", false
}

// Entity is implemented by every stored kind.
type Entity interface {
	EntityID() string
	Kind() Kind
	Validate() error
}

// Record is an entity in untyped form.
type Record = map[string]any

// DecodeJSON decodes raw into the struct for kind.
func DecodeJSON(kind Kind, raw []byte) (Entity, error) {
	switch kind {
	case KindPerson:
		return decodeJSON[Person](raw)
	case KindProject:
		return decodeJSON[Project](raw)
	case KindMilestone:
		return decodeJSON[Milestone](raw)
	case KindTask:
		return decodeJSON[Task](raw)
	case KindAssignment:
		return decodeJSON[Assignment](raw)
	case KindLabel:
		return decodeJSON[Label](raw)
	case KindPlanning:
		return decodeJSON[Planning](raw)
	case KindAuditLog:
		return decodeJSON[AuditLog](raw)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func decodeJSON[T Entity](raw []byte) (Entity, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ToRecord converts an entity into its stored field map.
func ToRecord(e Entity) (Record, error) {
	if e == nil {
		return nil, nil
	}
	raw, err := yaml.Marshal(e)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FromRecord converts a stored field map back into the struct for kind.
func FromRecord(kind Kind, rec Record) (Entity, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return DecodeJSON(kind, raw)
}
