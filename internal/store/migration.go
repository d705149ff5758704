package store

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Record is one stored entity in its raw, schema-agnostic form. Migrations
// operate on records because the shape they receive predates the current
// Go type.
type Record = map[string]any

// Migration upgrades a whole collection from one stored shape to the next.
// A migration is identified only by its position in the chain: the one at
// index i (0-based) brings a document from version i to version i+1.
type Migration struct {
	Description string
	Migrate     func([]Record) ([]Record, error)
}

// MigrationBuilder accumulates a migration chain in declaration order.
// Steps are append-only; Build returns them exactly as added.
type MigrationBuilder struct {
	steps []Migration
}

// NewMigrationBuilder returns an empty builder.
func NewMigrationBuilder() *MigrationBuilder {
	return &MigrationBuilder{}
}

// Add appends a collection-level migration.
func (b *MigrationBuilder) Add(description string, fn func([]Record) ([]Record, error)) *MigrationBuilder {
	if fn == nil {
		panic(fmt.Sprintf("store: migration %q has nil func", description))
	}
	b.steps = append(b.steps, Migration{Description: description, Migrate: fn})
	return b
}

// AddEach appends a migration that rewrites every record independently.
func (b *MigrationBuilder) AddEach(description string, fn func(Record) (Record, error)) *MigrationBuilder {
	if fn == nil {
		panic(fmt.Sprintf("store: migration %q has nil func", description))
	}
	return b.Add(description, EachRecord(fn))
}

// Build returns the finished chain. The builder can keep growing afterwards
// without affecting chains already built.
func (b *MigrationBuilder) Build() []Migration {
	out := make([]Migration, len(b.steps))
	copy(out, b.steps)
	return out
}

// Len reports how many steps have been added. It is also the version a
// document reaches once the built chain has been applied.
func (b *MigrationBuilder) Len() int {
	return len(b.steps)
}

// EachRecord lifts a per-record function to a collection migration.
func EachRecord(fn func(Record) (Record, error)) func([]Record) ([]Record, error) {
	return func(in []Record) ([]Record, error) {
		out := make([]Record, 0, len(in))
		for i, rec := range in {
			next, err := fn(rec)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, next)
		}
		return out, nil
	}
}

// Step builds a migration that threads a typed shape through one step: each
// record is decoded into From, converted, and encoded back from To. From
// must declare every field the stored shape carries, otherwise unlisted
// fields are dropped by the conversion.
func Step[From, To any](fn func(From) (To, error)) func([]Record) ([]Record, error) {
	return EachRecord(func(rec Record) (Record, error) {
		var from From
		if err := convert(rec, &from); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		to, err := fn(from)
		if err != nil {
			return nil, err
		}
		var out Record
		if err := convert(to, &out); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		return out, nil
	})
}

// convert round-trips v through YAML into out, so struct tags on both sides
// decide the field mapping.
func convert(v any, out any) error {
	raw, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(raw, out)
}
