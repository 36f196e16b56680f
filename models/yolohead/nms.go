package yolohead

import "github.com/nvr-ai/go-detcfg/config"

// NMS configures multiclass non-maximum suppression over the head's
// raw detections.
type NMS struct {
	// BackgroundLabel is the class index treated as background, -1 when
	// no background class exists.
	BackgroundLabel int `yaml:"background_label"`
	// KeepTopK bounds the detections kept per image after suppression,
	// -1 for unbounded.
	KeepTopK int `yaml:"keep_top_k"`
	// NMSThreshold is the overlap above which boxes suppress each
	// other.
	NMSThreshold float64 `yaml:"nms_threshold"`
	// NMSTopK bounds the candidates entering suppression, -1 for all.
	NMSTopK int `yaml:"nms_top_k"`
	// Normalized marks box coordinates as fractions of the image size.
	Normalized bool `yaml:"normalized"`
	// ScoreThreshold drops detections scored below it before
	// suppression.
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// DefaultNMS returns the suppression settings a head starts from.
func DefaultNMS() NMS {
	return NMS{
		BackgroundLabel: -1,
		KeepTopK:        100,
		NMSThreshold:    0.45,
		NMSTopK:         1000,
		ScoreThreshold:  0.01,
	}
}

// Validate checks suppression settings against their allowed ranges.
// numClasses bounds the background label.
func (n *NMS) Validate(section string, numClasses int) error {
	if n.BackgroundLabel != -1 && (n.BackgroundLabel < 0 || n.BackgroundLabel >= numClasses) {
		return config.Validationf(section, "nms.background_label",
			"label %d outside -1..%d", n.BackgroundLabel, numClasses-1)
	}
	if n.KeepTopK != -1 && n.KeepTopK < 1 {
		return config.Validationf(section, "nms.keep_top_k",
			"want -1 or a positive count, got %d", n.KeepTopK)
	}
	if n.NMSThreshold < 0 || n.NMSThreshold > 1 {
		return config.Validationf(section, "nms.nms_threshold",
			"%g outside [0, 1]", n.NMSThreshold)
	}
	if n.NMSTopK != -1 && n.NMSTopK < 1 {
		return config.Validationf(section, "nms.nms_top_k",
			"want -1 or a positive count, got %d", n.NMSTopK)
	}
	if n.ScoreThreshold < 0 || n.ScoreThreshold > 1 {
		return config.Validationf(section, "nms.score_threshold",
			"%g outside [0, 1]", n.ScoreThreshold)
	}
	return nil
}

// Lint reports suppression settings that are legal but suspicious.
func (n *NMS) Lint(section string) []config.Warning {
	var warns []config.Warning
	if n.NMSTopK != -1 && n.KeepTopK != -1 && n.NMSTopK < n.KeepTopK {
		warns = append(warns, config.Warningf(section, "nms.nms_top_k",
			"candidate cap %d is below keep_top_k %d, which can never fill", n.NMSTopK, n.KeepTopK))
	}
	return warns
}
