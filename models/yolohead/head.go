// Package yolohead - the dense detection head section of a YOLOv3
// document.
package yolohead

import (
	"github.com/nvr-ai/go-detcfg/common"
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// Head describes the detection head: its anchor set, how anchors are
// split across output scales, and the suppression applied to raw
// detections.
type Head struct {
	// AnchorMasks assigns anchors to output scales by index, coarsest
	// scale first. The masks must partition the anchor set.
	AnchorMasks []common.AnchorMask `yaml:"anchor_masks"`
	// Anchors are the prior box sizes, smallest to largest.
	Anchors []common.Anchor `yaml:"anchors"`
	// NormDecay is the weight decay applied to normalization
	// parameters inside the head.
	NormDecay float64 `yaml:"norm_decay"`
	// IgnoreThresh is the overlap above which an unassigned prediction
	// stops counting as background during training.
	IgnoreThresh float64 `yaml:"ignore_thresh"`
	// LabelSmooth softens one-hot class targets during training.
	LabelSmooth bool `yaml:"label_smooth"`
	// NMS is the suppression applied to raw detections.
	NMS NMS `yaml:"nms"`

	section      string
	numClasses   int
	weightPrefix string
}

// DefaultAnchors is the stock nine-anchor set fit on COCO, smallest to
// largest.
func DefaultAnchors() []common.Anchor {
	return []common.Anchor{
		{Width: 10, Height: 13}, {Width: 16, Height: 30}, {Width: 33, Height: 23},
		{Width: 30, Height: 61}, {Width: 62, Height: 45}, {Width: 59, Height: 119},
		{Width: 116, Height: 90}, {Width: 156, Height: 198}, {Width: 373, Height: 326},
	}
}

// DefaultAnchorMasks splits the stock anchors across three scales, the
// largest anchors on the coarsest scale.
func DefaultAnchorMasks() []common.AnchorMask {
	return []common.AnchorMask{{6, 7, 8}, {3, 4, 5}, {0, 1, 2}}
}

// Defaults returns the head settings a document starts from.
func Defaults() Head {
	return Head{
		AnchorMasks:  DefaultAnchorMasks(),
		Anchors:      DefaultAnchors(),
		IgnoreThresh: 0.7,
		LabelSmooth:  true,
		NMS:          DefaultNMS(),
	}
}

// New builds the head from its document section, pulling the shared
// class count and weight prefix from the document.
func New(ctx model.BuildContext, sec *config.Section) (model.Module, error) {
	spec := Defaults()
	if err := sec.Decode(&spec); err != nil {
		return nil, err
	}
	spec.section = sec.Name()
	globals := ctx.Globals()
	spec.numClasses = globals.NumClasses
	spec.weightPrefix = globals.WeightPrefixName
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	for _, w := range spec.Lint() {
		ctx.Warn(w)
	}
	return &spec, nil
}

// SectionName reports the document key the head was built from.
func (h *Head) SectionName() string { return h.section }

// MaskGroups returns the number of output scales the head predicts
// over.
func (h *Head) MaskGroups() int { return len(h.AnchorMasks) }

// NumClasses returns the category count injected from the document's
// shared settings.
func (h *Head) NumClasses() int { return h.numClasses }

// WeightPrefixName returns the parameter name prefix injected from the
// document's shared settings.
func (h *Head) WeightPrefixName() string { return h.weightPrefix }

// AnchorsFor returns the anchors one mask group assigns to its scale.
// The group must be in range and the head validated.
func (h *Head) AnchorsFor(group int) []common.Anchor {
	mask := h.AnchorMasks[group]
	anchors := make([]common.Anchor, 0, len(mask))
	for _, idx := range mask {
		anchors = append(anchors, h.Anchors[idx])
	}
	return anchors
}

// Validate checks the anchor set, its partition into mask groups, and
// the threshold ranges.
func (h *Head) Validate() error {
	if len(h.Anchors) == 0 {
		return config.Validationf(h.section, "anchors", "must list at least one anchor")
	}
	for i, a := range h.Anchors {
		if err := a.Validate(); err != nil {
			return config.Validationf(h.section, "anchors", "anchor %d: %v", i, err)
		}
	}
	if len(h.AnchorMasks) == 0 {
		return config.Validationf(h.section, "anchor_masks", "must list at least one group")
	}
	if err := common.ValidateMaskPartition(h.AnchorMasks, len(h.Anchors)); err != nil {
		return config.Validationf(h.section, "anchor_masks", "%v", err)
	}
	if h.IgnoreThresh < 0 || h.IgnoreThresh > 1 {
		return config.Validationf(h.section, "ignore_thresh", "%g outside [0, 1]", h.IgnoreThresh)
	}
	if h.NormDecay < 0 {
		return config.Validationf(h.section, "norm_decay", "must not be negative, got %g", h.NormDecay)
	}
	return h.NMS.Validate(h.section, h.numClasses)
}

// Lint reports head settings that are legal but probably not intended.
func (h *Head) Lint() []config.Warning {
	var warns []config.Warning
	if !common.AreasAscending(h.Anchors) {
		warns = append(warns, config.Warningf(h.section, "anchors",
			"not ordered by area, smallest first; scale assignment may not be the intended one"))
	}
	warns = append(warns, h.NMS.Lint(h.section)...)
	return warns
}
