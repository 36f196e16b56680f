package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadCanonicalDocument verifies that a stock document loads and
// exposes its keys and sections.
func TestLoadCanonicalDocument(t *testing.T) {
	tree, err := Load("testdata/yolov3_r34_voc.yml")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"architecture", "use_gpu", "max_iters", "log_smooth_window",
		"save_dir", "snapshot_iter", "metric", "map_type",
		"pretrain_weights", "weights", "num_classes", "weight_prefix_name",
		"YOLOv3", "ResNet", "YOLOv3Head",
	}, tree.Keys(), "top-level keys should come back in document order")

	assert.True(t, tree.Has("architecture"))
	assert.True(t, tree.Has("YOLOv3"))
	assert.False(t, tree.Has("DarkNet"))

	sec, ok := tree.Section("ResNet")
	require.True(t, ok)
	assert.Equal(t, "ResNet", sec.Name())
	assert.True(t, sec.Has("depth"))
	assert.False(t, sec.Has("width"))

	_, ok = tree.Section("metric")
	assert.False(t, ok, "scalar run keys are not sections")

	secs := tree.Sections()
	require.Len(t, secs, 3)
	assert.Equal(t, "YOLOv3", secs[0].Name())
}

// TestLoadMissingFile verifies that an unreadable path surfaces as a
// plain error, not a parse failure.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/no_such_document.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read document")
}

// TestParseRejectsMalformedDocuments verifies the split between parse
// failures and schema failures on the document root.
func TestParseRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		wantParse  bool
		wantSchema bool
	}{
		{
			name:      "broken yaml syntax",
			doc:       "architecture: [unclosed",
			wantParse: true,
		},
		{
			name:      "duplicate top-level key",
			doc:       "metric: VOC\nmetric: COCO\n",
			wantParse: true,
		},
		{
			name:      "duplicate nested key",
			doc:       "ResNet:\n  depth: 34\n  depth: 50\n",
			wantParse: true,
		},
		{
			name:       "sequence root",
			doc:        "- a\n- b\n",
			wantSchema: true,
		},
		{
			name:       "scalar root",
			doc:        "just a string\n",
			wantSchema: true,
		},
		{
			name:       "empty document",
			doc:        "",
			wantSchema: true,
		},
		{
			name:       "non-string top-level key",
			doc:        "20: classes\n",
			wantSchema: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			require.Error(t, err)

			var pe *ParseError
			var se *SchemaError
			if tt.wantParse {
				assert.ErrorAs(t, err, &pe, "expected a parse error, got %v", err)
			}
			if tt.wantSchema {
				assert.ErrorAs(t, err, &se, "expected a schema error, got %v", err)
			}
		})
	}
}

// TestParseJSONC verifies that JSON documents may carry comments and
// trailing commas.
func TestParseJSONC(t *testing.T) {
	doc := `{
		// run settings
		"architecture": "YOLOv3",
		"metric": "VOC",
		"num_classes": 20, /* background excluded */
	}`
	tree, err := Parse([]byte(doc), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"architecture", "metric", "num_classes"}, tree.Keys())
}

// TestDetectFormat verifies the extension to format mapping.
func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("model.yml"))
	assert.Equal(t, FormatYAML, DetectFormat("model.yaml"))
	assert.Equal(t, FormatJSON, DetectFormat("model.json"))
	assert.Equal(t, FormatJSON, DetectFormat("MODEL.JSONC"))
	assert.Equal(t, FormatYAML, DetectFormat("model"))
}

// TestSectionDecode verifies strict section decoding: unknown fields
// and ill-typed values are schema errors, absent fields keep whatever
// the target already holds.
func TestSectionDecode(t *testing.T) {
	type backbone struct {
		Depth       int   `yaml:"depth"`
		FeatureMaps []int `yaml:"feature_maps"`
	}

	parse := func(t *testing.T, doc string) *Section {
		t.Helper()
		tree, err := Parse([]byte(doc), FormatYAML)
		require.NoError(t, err)
		sec, ok := tree.Section("ResNet")
		require.True(t, ok)
		return sec
	}

	t.Run("decodes declared fields", func(t *testing.T) {
		sec := parse(t, "ResNet:\n  depth: 34\n  feature_maps: [3, 4, 5]\n")
		var b backbone
		require.NoError(t, sec.Decode(&b))
		assert.Equal(t, backbone{Depth: 34, FeatureMaps: []int{3, 4, 5}}, b)
	})

	t.Run("keeps defaults for absent fields", func(t *testing.T) {
		sec := parse(t, "ResNet:\n  depth: 101\n")
		b := backbone{Depth: 50, FeatureMaps: []int{3, 4, 5}}
		require.NoError(t, sec.Decode(&b))
		assert.Equal(t, 101, b.Depth)
		assert.Equal(t, []int{3, 4, 5}, b.FeatureMaps)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		sec := parse(t, "ResNet:\n  depth: 34\n  depht: 50\n")
		var b backbone
		err := sec.Decode(&b)
		var se *SchemaError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "ResNet", se.Section)
		assert.Contains(t, err.Error(), "depht")
	})

	t.Run("rejects ill-typed values", func(t *testing.T) {
		sec := parse(t, "ResNet:\n  depth: deep\n")
		var b backbone
		err := sec.Decode(&b)
		var se *SchemaError
		require.ErrorAs(t, err, &se)
	})
}

// TestEncodeYAMLRoundTrip verifies that a document re-encoded as YAML
// keeps its key order and parses back to the same meaning.
func TestEncodeYAMLRoundTrip(t *testing.T) {
	tree, err := Load("testdata/yolov3_r34_voc_full.yml")
	require.NoError(t, err)

	out, err := tree.Encode(FormatYAML)
	require.NoError(t, err)

	again, err := Parse(out, FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, tree.Keys(), again.Keys(), "re-encoding should preserve key order")

	fp1, err := tree.Fingerprint()
	require.NoError(t, err)
	fp2, err := again.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "re-encoding should preserve meaning")
}

// TestEncodeJSONRoundTrip verifies that the normalized JSON form of a
// document, local tags included, parses back to the same meaning.
func TestEncodeJSONRoundTrip(t *testing.T) {
	tree, err := Load("testdata/yolov3_r34_voc_full.yml")
	require.NoError(t, err)

	out, err := tree.Encode(FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"!tag": "PiecewiseDecay"`,
		"scheduler tags should fold into tag fields")

	again, err := Parse(out, FormatJSON)
	require.NoError(t, err)

	fp1, err := tree.Fingerprint()
	require.NoError(t, err)
	fp2, err := again.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}
