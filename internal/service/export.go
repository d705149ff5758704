package service

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/teamboard/internal/schema"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// Snapshot returns every business collection keyed by its plural name.
func (a *App) Snapshot() map[string][]schema.Entity {
	out := make(map[string][]schema.Entity, len(a.collections))
	for _, c := range a.Collections() {
		out[c.Kind().Plural()] = c.ListEntities()
	}
	return out
}

// Export writes the snapshot to w in format.
func (a *App) Export(w io.Writer, format string) error {
	return WriteSnapshot(w, format, a.Snapshot())
}

// WriteSnapshot encodes a snapshot in format.
func WriteSnapshot(w io.Writer, format string, snapshot any) error {
	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snapshot); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	case FormatTOML:
		return toml.NewEncoder(w).Encode(snapshot)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
