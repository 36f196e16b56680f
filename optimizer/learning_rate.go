// Package optimizer - the training schedule sections of a detector
// document.
package optimizer

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models/model"
)

// Scheduler is one learning rate schedule component. Document entries
// select the concrete scheduler with a YAML local tag, or a "!tag"
// field in JSON documents.
type Scheduler interface {
	// Kind reports the scheduler's tag name.
	Kind() string
	// Validate checks the scheduler's own fields.
	Validate(section string) error
}

// PiecewiseDecay multiplies the rate by gamma at each milestone
// iteration.
type PiecewiseDecay struct {
	Gamma      float64 `yaml:"gamma"`
	Milestones []int   `yaml:"milestones"`
}

// Kind reports the scheduler's tag name.
func (p *PiecewiseDecay) Kind() string { return "PiecewiseDecay" }

// Validate checks the decay factor and milestone ordering.
func (p *PiecewiseDecay) Validate(section string) error {
	if p.Gamma <= 0 || p.Gamma > 1 {
		return config.Validationf(section, "schedulers",
			"PiecewiseDecay gamma %g outside (0, 1]", p.Gamma)
	}
	if len(p.Milestones) == 0 {
		return config.Validationf(section, "schedulers",
			"PiecewiseDecay needs at least one milestone")
	}
	prev := 0
	for _, m := range p.Milestones {
		if m <= prev {
			return config.Validationf(section, "schedulers",
				"milestones must be positive and strictly ascending, got %v", p.Milestones)
		}
		prev = m
	}
	return nil
}

// LinearWarmup ramps the rate from a fraction of base up to base over
// the first steps of the run.
type LinearWarmup struct {
	StartFactor float64 `yaml:"start_factor"`
	Steps       int     `yaml:"steps"`
}

// Kind reports the scheduler's tag name.
func (l *LinearWarmup) Kind() string { return "LinearWarmup" }

// Validate checks the warmup ramp.
func (l *LinearWarmup) Validate(section string) error {
	if l.StartFactor < 0 || l.StartFactor > 1 {
		return config.Validationf(section, "schedulers",
			"LinearWarmup start_factor %g outside [0, 1]", l.StartFactor)
	}
	if l.Steps < 0 {
		return config.Validationf(section, "schedulers",
			"LinearWarmup steps must not be negative, got %d", l.Steps)
	}
	return nil
}

// LearningRate is the training schedule section.
type LearningRate struct {
	// BaseLR is the rate everything else scales from.
	BaseLR float64
	// Schedulers modify the base rate over the run, applied together.
	Schedulers []Scheduler

	section string
}

// defaultSchedulers is the stock schedule: step decay late in the run
// with a short linear warmup.
func defaultSchedulers() []Scheduler {
	return []Scheduler{
		&PiecewiseDecay{Gamma: 0.1, Milestones: []int{60000, 80000}},
		&LinearWarmup{StartFactor: 1.0 / 3, Steps: 500},
	}
}

// NewLearningRate builds the schedule from its document section.
//
// Scheduler entries dispatch on their tag. A PiecewiseDecay milestone
// beyond the run's iteration budget is flagged but not fatal.
func NewLearningRate(ctx model.BuildContext, sec *config.Section) (model.Module, error) {
	raw := struct {
		BaseLR     float64     `yaml:"base_lr"`
		Schedulers []yaml.Node `yaml:"schedulers"`
	}{BaseLR: 0.01}
	if err := sec.Decode(&raw); err != nil {
		return nil, err
	}

	lr := &LearningRate{BaseLR: raw.BaseLR, section: sec.Name()}
	if lr.BaseLR <= 0 {
		return nil, config.Validationf(sec.Name(), "base_lr", "must be positive, got %g", lr.BaseLR)
	}

	if !sec.Has("schedulers") {
		lr.Schedulers = defaultSchedulers()
	} else {
		for i := range raw.Schedulers {
			s, err := decodeScheduler(sec.Name(), &raw.Schedulers[i])
			if err != nil {
				return nil, err
			}
			lr.Schedulers = append(lr.Schedulers, s)
		}
	}
	for _, s := range lr.Schedulers {
		if err := s.Validate(sec.Name()); err != nil {
			return nil, err
		}
	}

	if run := ctx.Run(); run != nil && run.MaxIters > 0 {
		for _, s := range lr.Schedulers {
			decay, ok := s.(*PiecewiseDecay)
			if !ok {
				continue
			}
			for _, m := range decay.Milestones {
				if m > run.MaxIters {
					ctx.Warn(config.Warningf(sec.Name(), "schedulers",
						"milestone %d is beyond max_iters %d and never triggers", m, run.MaxIters))
				}
			}
		}
	}
	return lr, nil
}

// decodeScheduler turns one schedulers entry into a concrete scheduler.
// YAML entries carry a local tag; JSON entries carry a "!tag" field.
func decodeScheduler(section string, node *yaml.Node) (Scheduler, error) {
	kind := ""
	payload := node
	if tag := node.Tag; strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!") {
		kind = strings.TrimPrefix(tag, "!")
		if node.Kind == yaml.ScalarNode && strings.TrimSpace(node.Value) == "" {
			// A bare tag with no body means all defaults.
			payload = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		} else {
			clone := *node
			clone.Tag = ""
			clone.Style = 0
			payload = &clone
		}
	} else if node.Kind == yaml.MappingNode {
		stripped := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			if key.Value == config.TagKey {
				kind = value.Value
				continue
			}
			stripped.Content = append(stripped.Content, key, value)
		}
		payload = stripped
	}
	if kind == "" {
		return nil, config.Validationf(section, "schedulers",
			"entry at line %d does not name a scheduler type", node.Line)
	}

	var s Scheduler
	switch kind {
	case "PiecewiseDecay":
		s = &PiecewiseDecay{Gamma: 0.1}
	case "LinearWarmup":
		s = &LinearWarmup{StartFactor: 1.0 / 3, Steps: 500}
	default:
		return nil, config.Validationf(section, "schedulers", "unknown scheduler type %q", kind)
	}
	if err := config.DecodeStrict(payload, s); err != nil {
		return nil, config.Schemaf(section, "schedulers", "%s: %v", kind, err)
	}
	return s, nil
}

// SectionName reports the document key the schedule was built from.
func (lr *LearningRate) SectionName() string { return lr.section }

// At returns the effective learning rate at a training iteration.
//
// Decay applies from its milestones on; warmup overrides the earliest
// iterations, ramping toward the base rate. This mirrors how the
// schedule composes at train time.
func (lr *LearningRate) At(iter int) float64 {
	rate := lr.BaseLR
	var warmup *LinearWarmup
	for _, s := range lr.Schedulers {
		switch sched := s.(type) {
		case *PiecewiseDecay:
			for _, m := range sched.Milestones {
				if iter >= m {
					rate *= sched.Gamma
				}
			}
		case *LinearWarmup:
			warmup = sched
		}
	}
	if warmup != nil && iter < warmup.Steps {
		start := lr.BaseLR * warmup.StartFactor
		return start + (lr.BaseLR-start)*float64(iter)/float64(warmup.Steps)
	}
	return rate
}
