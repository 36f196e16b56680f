package config

import (
	"encoding/hex"
	"math"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// TagKey carries a node's local tag through normalization, where the
// tag syntax itself cannot survive. JSON documents use the field
// directly, since JSON has no tag syntax at all.
const TagKey = "!tag"

// Fingerprint is a content hash over the meaning of a document. Two
// documents that differ only in encoding, comments, key order, or
// scalar style share a fingerprint.
type Fingerprint [32]byte

// String returns the full lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Short returns the leading 12 hex digits, enough to tell documents
// apart in listings.
func (f Fingerprint) Short() string {
	return f.String()[:12]
}

// detMode encodes normalized documents deterministically: sorted map
// keys, shortest integer forms, RFC 8949 core deterministic encoding.
var detMode cbor.EncMode

func init() {
	var err error
	detMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// Fingerprint hashes the normalized document.
//
// The tree is reduced to plain maps, slices, and scalars, encoded with
// deterministic CBOR, and hashed with BLAKE3. Numbers are compared by
// value, so 0 and 0.0 normalize identically.
//
// Returns:
// - The 32-byte document fingerprint.
// - An error when the document holds values that cannot be normalized.
func (t *Tree) Fingerprint() (Fingerprint, error) {
	var fp Fingerprint
	plain, err := t.normalized()
	if err != nil {
		return fp, err
	}
	raw, err := detMode.Marshal(plain)
	if err != nil {
		return fp, errors.Wrap(err, "encode normalized document")
	}
	return Fingerprint(blake3.Sum256(raw)), nil
}

// normalized reduces the tree to plain maps, slices, and scalars.
func (t *Tree) normalized() (map[string]interface{}, error) {
	m := t.mapping()
	if m == nil {
		return nil, Schemaf("", "", "document root must be a mapping")
	}
	plain, err := normalizeNode(m)
	if err != nil {
		return nil, err
	}
	return plain.(map[string]interface{}), nil
}

func normalizeNode(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return normalizeNode(n.Content[0])

	case yaml.AliasNode:
		return normalizeNode(n.Alias)

	case yaml.ScalarNode:
		v, err := normalizeScalar(n)
		if err != nil {
			return nil, err
		}
		if tag := localTag(n); tag != "" {
			return map[string]interface{}{TagKey: tag, "value": v}, nil
		}
		return v, nil

	case yaml.SequenceNode:
		items := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := normalizeNode(c)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		if tag := localTag(n); tag != "" {
			return map[string]interface{}{TagKey: tag, "items": items}, nil
		}
		return items, nil

	case yaml.MappingNode:
		out := make(map[string]interface{}, len(n.Content)/2+1)
		if tag := localTag(n); tag != "" {
			out[TagKey] = tag
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if key.Kind != yaml.ScalarNode {
				return nil, Schemaf("", "", "mapping key at line %d must be a scalar", key.Line)
			}
			v, err := normalizeNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[key.Value] = v
		}
		return out, nil
	}
	return nil, Schemaf("", "", "cannot normalize node kind %d", n.Kind)
}

func normalizeScalar(n *yaml.Node) (interface{}, error) {
	switch n.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, Schemaf("", "", "boolean at line %d: %v", n.Line, err)
		}
		return b, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, Schemaf("", "", "integer at line %d: %v", n.Line, err)
		}
		return i, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, Schemaf("", "", "number at line %d: %v", n.Line, err)
		}
		// Integral floats collapse to integers: JSON has one number
		// type, so 0 and 0.0 must mean the same document.
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f), nil
		}
		return f, nil
	default:
		return n.Value, nil
	}
}

// localTag returns the node's application tag without its leading bang,
// or "" for standard tags.
func localTag(n *yaml.Node) string {
	if strings.HasPrefix(n.Tag, "!") && !strings.HasPrefix(n.Tag, "!!") {
		return strings.TrimPrefix(n.Tag, "!")
	}
	return ""
}
