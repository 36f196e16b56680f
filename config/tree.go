// Package config - parsing, schema checking, and canonical encoding of
// detector configuration documents.
//
// A document is a single YAML or JSON mapping. Scalar keys at the top
// level are run settings; mapping keys are component sections that the
// model builder interprets by name. The package keeps the raw node
// structure of the source, so a loaded document can be re-encoded
// without losing section order or local tags.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format identifies the on-disk encoding of a configuration document.
type Format string

const (
	// FormatYAML is the native document encoding.
	FormatYAML Format = "yaml"
	// FormatJSON covers plain JSON and JSONC with comments and trailing
	// commas.
	FormatJSON Format = "json"
)

// DetectFormat maps a file extension to a document format. Unknown
// extensions fall back to YAML, which also reads plain JSON.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Tree is a parsed configuration document.
//
// The tree keeps the raw node structure of the source so that section
// order, scalar styles, and local tags survive re-encoding. All schema
// interpretation happens on demand.
type Tree struct {
	root *yaml.Node
}

// Parse reads a configuration document from memory.
//
// Arguments:
// - data: Document bytes.
// - format: Encoding of the bytes. JSON input may carry comments and
//   trailing commas.
//
// Returns:
// - The parsed tree.
// - A ParseError for malformed input or a SchemaError when the root is
//   not a mapping.
func Parse(data []byte, format Format) (*Tree, error) {
	if format == FormatJSON {
		data = jsonc.ToJSON(data)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := checkDuplicateKeys(&root); err != nil {
		return nil, &ParseError{Err: err}
	}
	t := &Tree{root: &root}
	if err := t.checkShape(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads and parses a configuration document from disk, detecting
// the format from the file extension.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read document")
	}
	t, err := Parse(data, DetectFormat(path))
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// checkDuplicateKeys walks the node tree and rejects mappings that
// spell the same key twice. The decoder accepts them silently when
// composing raw nodes, and a duplicated key always means a damaged
// document.
func checkDuplicateKeys(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		seen := make(map[string]bool, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind == yaml.ScalarNode {
				if seen[key.Value] {
					return errors.Errorf("duplicate mapping key %q at line %d", key.Value, key.Line)
				}
				seen[key.Value] = true
			}
		}
	}
	for _, c := range n.Content {
		if err := checkDuplicateKeys(c); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) checkShape() error {
	if t.root == nil || t.root.Kind != yaml.DocumentNode || len(t.root.Content) == 0 {
		return Schemaf("", "", "document is empty")
	}
	m := t.mapping()
	if m == nil {
		return Schemaf("", "", "document root must be a mapping")
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		key := m.Content[i]
		if key.Kind != yaml.ScalarNode || key.Tag != "!!str" {
			return Schemaf("", "", "top-level key at line %d must be a plain string", key.Line)
		}
	}
	return nil
}

// mapping returns the document's root mapping node, nil when the
// document is empty or not a mapping.
func (t *Tree) mapping() *yaml.Node {
	if t.root == nil || t.root.Kind != yaml.DocumentNode || len(t.root.Content) == 0 {
		return nil
	}
	n := t.root.Content[0]
	if n.Kind != yaml.MappingNode {
		return nil
	}
	return n
}

// lookup returns the value node for a top-level key, nil when absent.
func (t *Tree) lookup(key string) *yaml.Node {
	m := t.mapping()
	if m == nil {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Has reports whether a top-level key is present, whatever its value.
func (t *Tree) Has(key string) bool {
	return t.lookup(key) != nil
}

// Keys returns the top-level keys in document order.
func (t *Tree) Keys() []string {
	m := t.mapping()
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m.Content)/2)
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys = append(keys, m.Content[i].Value)
	}
	return keys
}

// Section is one top-level mapping entry interpreted as a component
// specification.
type Section struct {
	name string
	node *yaml.Node
}

// Name returns the top-level key the section was found under.
func (s *Section) Name() string { return s.name }

// Node exposes the raw value node, for callers that dispatch on tags.
func (s *Section) Node() *yaml.Node { return s.node }

// Has reports whether the section declares a field, whatever its value.
func (s *Section) Has(field string) bool {
	for i := 0; i+1 < len(s.node.Content); i += 2 {
		if s.node.Content[i].Value == field {
			return true
		}
	}
	return false
}

// Decode unmarshals the section into out, rejecting fields the target
// does not declare. Fields absent from the document leave the target
// untouched, so defaults survive in pre-filled fields.
func (s *Section) Decode(out interface{}) error {
	if err := DecodeStrict(s.node, out); err != nil {
		return &SchemaError{Section: s.name, Err: err}
	}
	return nil
}

// Section returns the named top-level section. Only mapping values are
// sections; scalar run keys are not visible through this accessor.
func (t *Tree) Section(name string) (*Section, bool) {
	n := t.lookup(name)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, false
	}
	return &Section{name: name, node: n}, nil
}

// Sections returns every top-level mapping entry in document order.
func (t *Tree) Sections() []*Section {
	m := t.mapping()
	if m == nil {
		return nil
	}
	var secs []*Section
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i+1].Kind == yaml.MappingNode {
			secs = append(secs, &Section{name: m.Content[i].Value, node: m.Content[i+1]})
		}
	}
	return secs
}

// DecodeStrict unmarshals a raw node into out, rejecting unknown
// fields. The node is re-encoded and run through a strict decoder, the
// only decoding path that enforces known fields.
func DecodeStrict(node *yaml.Node, out interface{}) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Encode renders the tree in the given format.
//
// YAML output preserves section order, scalar styles, and local tags.
// JSON output is normalized: keys sorted, comments dropped, local tags
// folded into "!tag" fields. Both forms parse back to a tree with the
// same fingerprint.
func (t *Tree) Encode(format Format) ([]byte, error) {
	if format == FormatJSON {
		plain, err := t.normalized()
		if err != nil {
			return nil, err
		}
		out, err := json.MarshalIndent(plain, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "encode document")
		}
		return append(out, '\n'), nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t.root); err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encode document")
	}
	return buf.Bytes(), nil
}
