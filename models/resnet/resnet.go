// Package resnet - the residual backbone section of a detector
// document.
package resnet

import (
	"github.com/nvr-ai/go-detcfg/common"
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// Depths lists the residual network variants a document may request.
var Depths = []int{18, 34, 50, 101, 152}

// ResNet describes the backbone: which variant to instantiate, where to
// freeze it, and which stage outputs to expose to the head.
type ResNet struct {
	// NormType selects the normalization layer.
	NormType common.NormType `yaml:"norm_type"`
	// FreezeAt freezes parameters up to and including the given stage.
	// Zero freezes nothing.
	FreezeAt int `yaml:"freeze_at"`
	// FreezeNorm keeps normalization statistics fixed during training.
	FreezeNorm bool `yaml:"freeze_norm"`
	// NormDecay is the weight decay applied to normalization
	// parameters.
	NormDecay float64 `yaml:"norm_decay"`
	// Depth is the residual network variant.
	Depth int `yaml:"depth"`
	// FeatureMaps lists the stages whose outputs feed the head, in
	// declaration order.
	FeatureMaps []int `yaml:"feature_maps"`

	section string
}

// Defaults returns the backbone settings a document starts from.
func Defaults() ResNet {
	return ResNet{
		NormType:    common.NormTypeBN,
		FreezeAt:    2,
		Depth:       50,
		FeatureMaps: []int{3, 4, 5},
	}
}

// New builds the backbone from its document section.
//
// Arguments:
// - ctx: The running document build.
// - sec: The section to interpret.
//
// Returns:
// - The backbone module.
// - A SchemaError or ValidationError when the section is unusable.
func New(ctx model.BuildContext, sec *config.Section) (model.Module, error) {
	spec := Defaults()
	if err := sec.Decode(&spec); err != nil {
		return nil, err
	}
	spec.section = sec.Name()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	for _, w := range spec.Lint() {
		ctx.Warn(w)
	}
	return &spec, nil
}

// SectionName reports the document key the backbone was built from.
func (r *ResNet) SectionName() string { return r.section }

// Scales returns the stages whose outputs feed the head.
func (r *ResNet) Scales() []int { return r.FeatureMaps }

// Validate checks every backbone field against its allowed range.
func (r *ResNet) Validate() error {
	if !r.NormType.Valid() {
		return config.Validationf(r.section, "norm_type",
			"unknown norm type %q, want bn, sync_bn, or affine_channel", string(r.NormType))
	}
	if r.FreezeAt < 0 || r.FreezeAt > 4 {
		return config.Validationf(r.section, "freeze_at", "stage %d outside 0..4", r.FreezeAt)
	}
	if r.NormDecay < 0 {
		return config.Validationf(r.section, "norm_decay", "must not be negative, got %g", r.NormDecay)
	}
	supported := false
	for _, d := range Depths {
		if r.Depth == d {
			supported = true
			break
		}
	}
	if !supported {
		return config.Validationf(r.section, "depth", "unsupported depth %d, want one of %v", r.Depth, Depths)
	}
	if len(r.FeatureMaps) == 0 {
		return config.Validationf(r.section, "feature_maps", "must list at least one stage")
	}
	prev := 0
	for _, stage := range r.FeatureMaps {
		if stage < 2 || stage > 5 {
			return config.Validationf(r.section, "feature_maps", "stage %d outside 2..5", stage)
		}
		if stage <= prev {
			return config.Validationf(r.section, "feature_maps",
				"stages must be strictly ascending, got %v", r.FeatureMaps)
		}
		prev = stage
	}
	return nil
}

// Lint reports backbone settings that are legal but contradictory.
func (r *ResNet) Lint() []config.Warning {
	var warns []config.Warning
	if r.FreezeNorm && r.NormDecay > 0 {
		warns = append(warns, config.Warningf(r.section, "norm_decay",
			"decay %g has no effect on frozen normalization parameters", r.NormDecay))
	}
	return warns
}
