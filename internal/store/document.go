package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	// ErrCorruptDocument means the file is neither a bare sequence nor a
	// {version, data} mapping.
	ErrCorruptDocument = errors.New("document is neither a sequence nor a {version, data} mapping")

	// ErrInvalidData means the records could not be decoded into the current
	// entity shape, failed validation, or broke id uniqueness.
	ErrInvalidData = errors.New("document data does not match the current schema")
)

// document is the on-disk wrapper written for every collection.
type document[T any] struct {
	Version int `yaml:"version"`
	Data    []T `yaml:"data"`
}

// decodeDocument accepts both stored forms. A bare sequence is version 0.
func decodeDocument(raw []byte) (int, []Record, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	node := &root
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return 0, nil, fmt.Errorf("%w: empty document", ErrCorruptDocument)
		}
		node = node.Content[0]
	}

	switch node.Kind {
	case yaml.SequenceNode:
		records, err := decodeRecords(node)
		if err != nil {
			return 0, nil, err
		}
		return 0, records, nil

	case yaml.MappingNode:
		var versionNode, dataNode *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			switch node.Content[i].Value {
			case "version":
				versionNode = node.Content[i+1]
			case "data":
				dataNode = node.Content[i+1]
			}
		}
		if versionNode == nil || dataNode == nil {
			return 0, nil, fmt.Errorf("%w: mapping without version and data", ErrCorruptDocument)
		}
		var version int
		if err := versionNode.Decode(&version); err != nil || version < 0 {
			return 0, nil, fmt.Errorf("%w: bad version %q", ErrCorruptDocument, versionNode.Value)
		}
		if dataNode.Kind != yaml.SequenceNode {
			return 0, nil, fmt.Errorf("%w: data is not a sequence", ErrCorruptDocument)
		}
		records, err := decodeRecords(dataNode)
		if err != nil {
			return 0, nil, err
		}
		return version, records, nil

	default:
		return 0, nil, fmt.Errorf("%w: top-level %s", ErrCorruptDocument, kindName(node.Kind))
	}
}

func decodeRecords(node *yaml.Node) ([]Record, error) {
	records := make([]Record, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: item %d is not a mapping", ErrCorruptDocument, i)
		}
		var rec Record
		if err := item.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrCorruptDocument, i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// decodeEntities converts migrated records into the current Go type,
// rejecting fields the type does not declare.
func decodeEntities[T Entity](records []Record) ([]T, error) {
	if len(records) == 0 {
		return []T{}, nil
	}
	raw, err := yaml.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var items []T
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	seen := make(map[string]bool, len(items))
	for i, item := range items {
		id := item.EntityID()
		if id == "" {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidData, i, ErrEmptyID)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %v %q", ErrInvalidData, ErrDuplicateID, id)
		}
		seen[id] = true
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("%w: item %q: %v", ErrInvalidData, id, err)
		}
	}
	return items, nil
}

func encodeDocument[T any](version int, items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(document[T]{Version: version, Data: items}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeFileAtomic replaces path with data through a synced temp file in the
// same directory, so readers never see a truncated document.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "sequence"
	default:
		return "node"
	}
}
