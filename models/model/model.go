// Package model - shared contracts between document sections and the
// components built from them.
package model

import (
	"github.com/nvr-ai/go-detcfg/config"
)

// Module is a component built from one top-level document section.
type Module interface {
	// SectionName reports the document key the module was built from.
	SectionName() string
}

// Backbone is a module that emits multi-scale features for a detection
// head.
type Backbone interface {
	Module
	// Scales returns the backbone stages whose outputs feed the head,
	// in declaration order.
	Scales() []int
}

// Head is a module that turns backbone features into detections.
type Head interface {
	Module
	// MaskGroups returns the number of per-scale anchor groups the head
	// predicts over. One group consumes one backbone scale.
	MaskGroups() int
}

// Globals are document-wide settings injected into sections that use
// them, so a document never has to repeat them per section.
type Globals struct {
	// NumClasses is the object category count, background excluded.
	NumClasses int
	// WeightPrefixName prefixes parameter names when several models
	// share one weight namespace.
	WeightPrefixName string
}

// BuildContext is handed to section factories while a document is being
// interpreted.
type BuildContext interface {
	// Globals returns the document-wide shared settings.
	Globals() Globals
	// Run returns the document's scalar run settings.
	Run() *config.RunConfig
	// Build resolves a reference to another section, building it on
	// first use. Reference cycles fail the build.
	Build(name string) (Module, error)
	// Warn records a non-fatal diagnostic against the document.
	Warn(w config.Warning)
}

// Factory builds a module from its document section.
type Factory func(ctx BuildContext, sec *config.Section) (Module, error)

// Model is a fully interpreted document: the architecture module, every
// other section that was built along the way, and the diagnostics
// raised while building.
type Model struct {
	// Architecture is the root section name.
	Architecture string
	// Run carries the document's scalar run settings.
	Run *config.RunConfig
	// Root is the architecture module.
	Root Module
	// Modules holds every built section, keyed by section name.
	Modules map[string]Module
	// Warnings are the non-fatal diagnostics from the build, in the
	// order they were raised.
	Warnings []config.Warning
	// Fingerprint identifies the source document.
	Fingerprint config.Fingerprint
}

// Module returns a built module by section name.
func (m *Model) Module(name string) (Module, bool) {
	mod, ok := m.Modules[name]
	return mod, ok
}
