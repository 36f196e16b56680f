// Package yolov3 - the single-stage detector architecture section.
package yolov3

import (
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// YOLOv3 is the architecture module: a backbone reference and a head
// reference resolved against the same document.
type YOLOv3 struct {
	// Backbone names the section the backbone is built from.
	Backbone string `yaml:"backbone"`
	// YOLOHead names the section the detection head is built from.
	YOLOHead string `yaml:"yolo_head"`

	section  string
	backbone model.Backbone
	head     model.Head
}

// New builds the architecture from its document section, resolving and
// building the referenced backbone and head first.
//
// The referenced sections must exist, build cleanly, and agree with
// each other: the head predicts over exactly one anchor group per
// backbone scale.
func New(ctx model.BuildContext, sec *config.Section) (model.Module, error) {
	var spec YOLOv3
	if err := sec.Decode(&spec); err != nil {
		return nil, err
	}
	spec.section = sec.Name()
	if spec.Backbone == "" {
		return nil, config.Schemaf(sec.Name(), "backbone", "required key is missing")
	}
	if spec.YOLOHead == "" {
		return nil, config.Schemaf(sec.Name(), "yolo_head", "required key is missing")
	}

	built, err := ctx.Build(spec.Backbone)
	if err != nil {
		return nil, err
	}
	backbone, ok := built.(model.Backbone)
	if !ok {
		return nil, config.Validationf(sec.Name(), "backbone",
			"section %s is not usable as a backbone", spec.Backbone)
	}

	built, err = ctx.Build(spec.YOLOHead)
	if err != nil {
		return nil, err
	}
	head, ok := built.(model.Head)
	if !ok {
		return nil, config.Validationf(sec.Name(), "yolo_head",
			"section %s is not usable as a detection head", spec.YOLOHead)
	}

	if groups, scales := head.MaskGroups(), len(backbone.Scales()); groups != scales {
		return nil, config.Validationf(sec.Name(), "yolo_head",
			"head predicts over %d anchor groups but backbone %s emits %d feature maps",
			groups, spec.Backbone, scales)
	}

	spec.backbone = backbone
	spec.head = head
	return &spec, nil
}

// SectionName reports the document key the architecture was built from.
func (y *YOLOv3) SectionName() string { return y.section }

// BackboneModule returns the resolved backbone.
func (y *YOLOv3) BackboneModule() model.Backbone { return y.backbone }

// HeadModule returns the resolved detection head.
func (y *YOLOv3) HeadModule() model.Head { return y.head }
