package schema

import (
	"strings"
	"unicode"

	"github.com/mschirtzinger/teamboard/internal/store"
)

// DefaultPersonColor is given to people stored before colors existed.
const DefaultPersonColor = "#64748b"

// Migrations returns the migration chain for kind. The chain length is the
// current schema version of that kind's document.
func Migrations(kind Kind) []store.Migration {
	switch kind {
	case KindPerson:
		return personMigrations()
	case KindProject:
		return projectMigrations()
	case KindMilestone:
		return milestoneMigrations()
	case KindTask:
		return taskMigrations()
	case KindAssignment:
		return assignmentMigrations()
	case KindAuditLog:
		return auditLogMigrations()
	default:
		return nil
	}
}

func personMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		AddEach("add color", func(r store.Record) (store.Record, error) {
			if _, ok := r["color"]; !ok {
				r["color"] = DefaultPersonColor
			}
			return r, nil
		}).
		AddEach("derive initials from name", func(r store.Record) (store.Record, error) {
			if s, _ := r["initials"].(string); s == "" {
				name, _ := r["name"].(string)
				r["initials"] = Initials(name)
			}
			return r, nil
		}).
		Build()
}

func projectMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		AddEach("add isArchived", setDefault("isArchived", false)).
		Build()
}

func milestoneMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		AddEach("rename done to isDone", func(r store.Record) (store.Record, error) {
			done, _ := r["done"].(bool)
			delete(r, "done")
			if _, ok := r["isDone"]; !ok {
				r["isDone"] = done
			}
			return r, nil
		}).
		Build()
}

func taskMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		AddEach("add isArchived", setDefault("isArchived", false)).
		AddEach("replace assigneeId with assigneeIds", func(r store.Record) (store.Record, error) {
			ids := []any{}
			if id, _ := r["assigneeId"].(string); id != "" {
				ids = append(ids, id)
			}
			delete(r, "assigneeId")
			if _, ok := r["assigneeIds"]; !ok {
				r["assigneeIds"] = ids
			}
			return r, nil
		}).
		AddEach("add labelIds", setDefault("labelIds", []any{})).
		Build()
}

// legacyAssignment is the stored shape before dates were named date.
type legacyAssignment struct {
	ID       string `yaml:"id"`
	TaskID   string `yaml:"taskId"`
	PersonID string `yaml:"personId"`
	Day      string `yaml:"day"`
	Note     string `yaml:"note,omitempty"`
}

func assignmentMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		Add("rename day to date", store.Step(func(old legacyAssignment) (Assignment, error) {
			return Assignment{
				ID:       old.ID,
				TaskID:   old.TaskID,
				PersonID: old.PersonID,
				Date:     old.Day,
				Note:     old.Note,
			}, nil
		})).
		Build()
}

func auditLogMigrations() []store.Migration {
	return store.NewMigrationBuilder().
		AddEach("move before and after into changes", func(r store.Record) (store.Record, error) {
			changes, _ := r["changes"].(map[string]any)
			if changes == nil {
				changes = map[string]any{}
			}
			for _, key := range []string{"before", "after"} {
				if v, ok := r[key]; ok {
					if v != nil {
						changes[key] = v
					}
					delete(r, key)
				}
			}
			r["changes"] = changes
			return r, nil
		}).
		Build()
}

func setDefault(key string, value any) func(store.Record) (store.Record, error) {
	return func(r store.Record) (store.Record, error) {
		if _, ok := r[key]; !ok {
			r[key] = value
		}
		return r, nil
	}
}

// Initials derives up to three initials from a display name.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() >= 3 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}
