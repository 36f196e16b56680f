package models

import (
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// Builder interprets one parsed document. It doubles as the build
// context handed to section factories.
type Builder struct {
	tree     *config.Tree
	run      *config.RunConfig
	modules  map[string]model.Module
	visiting map[string]bool
	warnings []config.Warning
}

// Build interprets a parsed document into a model.
//
// The run settings are checked first, then the architecture section and
// everything it references is built, then every remaining known section
// is built so its settings are checked too. Unknown sections fail the
// build; nothing in a document is ignored.
//
// Arguments:
// - tree: A parsed configuration document.
//
// Returns:
// - The interpreted model with its built modules and any warnings.
// - A SchemaError or ValidationError describing the first problem
//   found.
func Build(tree *config.Tree) (*model.Model, error) {
	run, err := tree.RunConfig()
	if err != nil {
		return nil, err
	}
	if err := run.Validate(); err != nil {
		return nil, err
	}

	b := &Builder{
		tree:     tree,
		run:      run,
		modules:  map[string]model.Module{},
		visiting: map[string]bool{},
	}
	b.warnings = append(b.warnings, run.Lint()...)

	if _, known := registry[run.Architecture]; !known {
		return nil, config.Validationf("", "architecture",
			"unknown architecture %q", run.Architecture)
	}
	if !tree.Has(run.Architecture) {
		return nil, config.Validationf("", "architecture",
			"document has no %s section", run.Architecture)
	}
	root, err := b.Build(run.Architecture)
	if err != nil {
		return nil, err
	}

	// Sections nothing referenced still get interpreted, so a broken
	// schedule or a misspelled section never loads silently.
	for _, sec := range tree.Sections() {
		name := sec.Name()
		if _, done := b.modules[name]; done {
			continue
		}
		if _, known := registry[name]; !known {
			return nil, config.Schemaf("", name, "unknown section")
		}
		if _, err := b.Build(name); err != nil {
			return nil, err
		}
	}

	fp, err := tree.Fingerprint()
	if err != nil {
		return nil, err
	}
	return &model.Model{
		Architecture: run.Architecture,
		Run:          run,
		Root:         root,
		Modules:      b.modules,
		Warnings:     b.warnings,
		Fingerprint:  fp,
	}, nil
}

// Load parses and interprets a document file in one step.
func Load(path string) (*model.Model, error) {
	tree, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return Build(tree)
}

// Globals returns the document-wide shared settings.
func (b *Builder) Globals() model.Globals {
	return model.Globals{
		NumClasses:       b.run.NumClasses,
		WeightPrefixName: b.run.WeightPrefixName,
	}
}

// Run returns the document's scalar run settings.
func (b *Builder) Run() *config.RunConfig { return b.run }

// Warn records a non-fatal diagnostic against the document.
func (b *Builder) Warn(w config.Warning) { b.warnings = append(b.warnings, w) }

// Build resolves a section reference, building the module on first
// use. Modules are built once and shared between referencing sections.
func (b *Builder) Build(name string) (model.Module, error) {
	if mod, done := b.modules[name]; done {
		return mod, nil
	}
	if b.visiting[name] {
		return nil, config.Validationf("", name, "section references form a cycle")
	}
	sec, ok := b.tree.Section(name)
	if !ok {
		if b.tree.Has(name) {
			return nil, config.Schemaf(name, "", "section must be a mapping")
		}
		return nil, config.Validationf("", name, "referenced section is not defined")
	}
	factory, known := registry[name]
	if !known {
		return nil, config.Validationf("", name, "no component is registered for this section")
	}

	b.visiting[name] = true
	mod, err := factory(b, sec)
	delete(b.visiting, name)
	if err != nil {
		return nil, err
	}
	b.modules[name] = mod
	return mod, nil
}
