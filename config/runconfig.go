package config

import (
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detcfg/common"
)

// RunConfig carries the scalar run settings of a document: everything
// at the top level that is not a component section.
type RunConfig struct {
	// Architecture names the root section the model builder starts from.
	Architecture string `yaml:"architecture"`
	// UseGPU requests device placement for the run.
	UseGPU bool `yaml:"use_gpu"`
	// MaxIters is the training iteration budget, 0 when not set.
	MaxIters int `yaml:"max_iters"`
	// LogSmoothWindow is the iteration window training metrics are
	// averaged over before logging.
	LogSmoothWindow int `yaml:"log_smooth_window"`
	// SaveDir is where run artifacts are written.
	SaveDir string `yaml:"save_dir"`
	// SnapshotIter is the checkpoint interval in iterations, 0 when not
	// set.
	SnapshotIter int `yaml:"snapshot_iter"`
	// Metric selects the evaluation protocol.
	Metric common.Metric `yaml:"metric"`
	// MapType selects the average precision integration method.
	MapType common.MapType `yaml:"map_type"`
	// PretrainWeights locates backbone weights to start from.
	PretrainWeights string `yaml:"pretrain_weights"`
	// Weights locates the final weights of the run.
	Weights string `yaml:"weights"`
	// NumClasses is the object category count, background excluded.
	// Shared with every section that predicts over classes.
	NumClasses int `yaml:"num_classes"`
	// WeightPrefixName prefixes parameter names when several models
	// share one weight namespace. Shared like NumClasses.
	WeightPrefixName string `yaml:"weight_prefix_name"`
}

// requiredRunKeys must be spelled out in every document. Everything
// else has a usable default.
var requiredRunKeys = []string{"architecture", "metric", "num_classes"}

// DefaultRunConfig returns the run settings a document starts from
// before its own keys are applied.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		LogSmoothWindow: 20,
		MapType:         common.MapTypeIntegral,
	}
}

// RunConfig decodes the document's scalar run keys over their defaults.
//
// Top-level mapping values are component sections and are skipped here;
// every remaining key must be a known run setting of the right type.
//
// Returns:
// - The decoded run settings.
// - A SchemaError for unknown keys, ill-typed values, or missing
//   required keys.
func (t *Tree) RunConfig() (*RunConfig, error) {
	m := t.mapping()
	if m == nil {
		return nil, Schemaf("", "", "document root must be a mapping")
	}
	scalars := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i+1].Kind == yaml.MappingNode {
			continue
		}
		scalars.Content = append(scalars.Content, m.Content[i], m.Content[i+1])
	}
	cfg := DefaultRunConfig()
	if err := DecodeStrict(scalars, &cfg); err != nil {
		return nil, &SchemaError{Err: err}
	}
	for _, key := range requiredRunKeys {
		if !t.Has(key) {
			return nil, Schemaf("", key, "required key is missing")
		}
	}
	return &cfg, nil
}

// Validate checks run settings for range and enum violations.
func (c *RunConfig) Validate() error {
	if c.Architecture == "" {
		return Validationf("", "architecture", "must not be empty")
	}
	if !c.Metric.Valid() {
		return Validationf("", "metric", "unknown metric %q, want VOC or COCO", string(c.Metric))
	}
	if !c.MapType.Valid() {
		return Validationf("", "map_type", "unknown map type %q, want 11point or integral", string(c.MapType))
	}
	if c.NumClasses < 1 {
		return Validationf("", "num_classes", "must be at least 1, got %d", c.NumClasses)
	}
	if c.LogSmoothWindow < 1 {
		return Validationf("", "log_smooth_window", "must be at least 1, got %d", c.LogSmoothWindow)
	}
	if c.MaxIters < 0 {
		return Validationf("", "max_iters", "must not be negative, got %d", c.MaxIters)
	}
	if c.SnapshotIter < 0 {
		return Validationf("", "snapshot_iter", "must not be negative, got %d", c.SnapshotIter)
	}
	return nil
}

// Lint reports run settings that are legal but probably not intended.
func (c *RunConfig) Lint() []Warning {
	var warns []Warning
	if c.Metric == common.MetricCOCO && c.MapType == common.MapType11Point {
		warns = append(warns, Warningf("", "map_type",
			"11point is a VOC protocol; COCO evaluation ignores it"))
	}
	if c.SnapshotIter > 0 && c.MaxIters > 0 && c.SnapshotIter > c.MaxIters {
		warns = append(warns, Warningf("", "snapshot_iter",
			"interval %d exceeds max_iters %d, so no snapshot is ever written", c.SnapshotIter, c.MaxIters))
	}
	return warns
}
