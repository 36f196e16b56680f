// Package models - registry of section factories and the interpreter
// that turns a parsed document into a model.
package models

import (
	"sort"

	"github.com/nvr-ai/go-detcfg/models/model"
	"github.com/nvr-ai/go-detcfg/models/resnet"
	"github.com/nvr-ai/go-detcfg/models/yolohead"
	"github.com/nvr-ai/go-detcfg/models/yolov3"
	"github.com/nvr-ai/go-detcfg/optimizer"
)

// registry maps section names, the exact keys documents use, to the
// factories that interpret them.
var registry = map[string]model.Factory{}

// Register installs a factory for a section name.
//
// Factories are wired once at startup, so a second registration of the
// same name is a programming error and panics.
func Register(name string, factory model.Factory) {
	if _, dup := registry[name]; dup {
		panic("models: section " + name + " registered twice")
	}
	registry[name] = factory
}

// Registered returns the known section names, sorted.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("YOLOv3", yolov3.New)
	Register("ResNet", resnet.New)
	Register("YOLOv3Head", yolohead.New)
	Register("LearningRate", optimizer.NewLearningRate)
	Register("OptimizerBuilder", optimizer.NewOptimizerBuilder)
}
