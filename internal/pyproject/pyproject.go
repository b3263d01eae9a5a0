package pyproject

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/core-unit-bioinformatics/templsync/internal/syncerr"
)

// Document is a parsed pyproject.toml held as nested tables. Mutating one
// key and marshaling leaves every other key and table intact, so version
// fields can be patched without rewriting the rest of the metadata by hand.
type Document struct {
	root map[string]any
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, syncerr.IO(path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, syncerr.StructuredParse(path, err)
	}
	return doc, nil
}

// Parse parses TOML bytes into a Document.
func Parse(data []byte) (*Document, error) {
	root := map[string]any{}
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// Version returns the string value at the dotted key path, for example
// "cubi.metadata.version".
func (d *Document) Version(key string) (string, error) {
	value, err := d.lookup(key)
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("key %s holds %T, not a string", key, value)
	}
	return s, nil
}

// SetVersion replaces the string value at the dotted key path. The key must
// already exist: this tool updates template versions, it does not invent
// metadata sections.
func (d *Document) SetVersion(key, value string) error {
	parts := strings.Split(key, ".")

	table := d.root
	for i, part := range parts[:len(parts)-1] {
		next, ok := table[part].(map[string]any)
		if !ok {
			return fmt.Errorf("%s is not a table", strings.Join(parts[:i+1], "."))
		}
		table = next
	}

	leaf := parts[len(parts)-1]
	if _, ok := table[leaf]; !ok {
		return fmt.Errorf("key %s not present", key)
	}
	table[leaf] = value
	return nil
}

// Marshal serializes the document back to TOML.
func (d *Document) Marshal() ([]byte, error) {
	return toml.Marshal(d.root)
}

func (d *Document) lookup(key string) (any, error) {
	parts := strings.Split(key, ".")

	current := any(d.root)
	for i, part := range parts {
		table, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s is not a table", strings.Join(parts[:i], "."))
		}
		next, ok := table[part]
		if !ok {
			return nil, fmt.Errorf("key %s not present", strings.Join(parts[:i+1], "."))
		}
		current = next
	}
	return current, nil
}
