package optimizer

import (
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// OptimizerTypes lists the supported update rules.
var OptimizerTypes = []string{"Momentum", "Adam", "RMSProp"}

// RegularizerTypes lists the supported weight decay norms.
var RegularizerTypes = []string{"L1", "L2"}

// OptimizerSpec names the update rule and its momentum.
type OptimizerSpec struct {
	Momentum float64 `yaml:"momentum"`
	Type     string  `yaml:"type"`
}

// RegularizerSpec names the weight decay applied during updates.
type RegularizerSpec struct {
	Factor float64 `yaml:"factor"`
	Type   string  `yaml:"type"`
}

// OptimizerBuilder is the optimizer section: the update rule and the
// regularizer it runs with.
type OptimizerBuilder struct {
	Optimizer   OptimizerSpec   `yaml:"optimizer"`
	Regularizer RegularizerSpec `yaml:"regularizer"`

	section string
}

// Defaults returns the optimizer settings a document starts from:
// momentum SGD with a light L2 penalty.
func Defaults() OptimizerBuilder {
	return OptimizerBuilder{
		Optimizer:   OptimizerSpec{Momentum: 0.9, Type: "Momentum"},
		Regularizer: RegularizerSpec{Factor: 0.0005, Type: "L2"},
	}
}

// NewOptimizerBuilder builds the optimizer section.
func NewOptimizerBuilder(ctx model.BuildContext, sec *config.Section) (model.Module, error) {
	spec := Defaults()
	if err := sec.Decode(&spec); err != nil {
		return nil, err
	}
	spec.section = sec.Name()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// SectionName reports the document key the optimizer was built from.
func (o *OptimizerBuilder) SectionName() string { return o.section }

// Validate checks the update rule and regularizer settings.
func (o *OptimizerBuilder) Validate() error {
	if !contains(OptimizerTypes, o.Optimizer.Type) {
		return config.Validationf(o.section, "optimizer.type",
			"unknown optimizer %q, want one of %v", o.Optimizer.Type, OptimizerTypes)
	}
	if o.Optimizer.Momentum < 0 || o.Optimizer.Momentum > 1 {
		return config.Validationf(o.section, "optimizer.momentum",
			"%g outside [0, 1]", o.Optimizer.Momentum)
	}
	if !contains(RegularizerTypes, o.Regularizer.Type) {
		return config.Validationf(o.section, "regularizer.type",
			"unknown regularizer %q, want one of %v", o.Regularizer.Type, RegularizerTypes)
	}
	if o.Regularizer.Factor < 0 {
		return config.Validationf(o.section, "regularizer.factor",
			"must not be negative, got %g", o.Regularizer.Factor)
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
