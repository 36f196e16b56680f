package common

import (
	"fmt"

	"github.com/chewxy/math32"
	"gopkg.in/yaml.v3"
)

// Anchor is a prior box size on the network input scale.
//
// Configuration documents write anchors as two-element [width, height]
// sequences, so the type carries its own YAML form.
type Anchor struct {
	Width  float32
	Height float32
}

// UnmarshalYAML decodes an anchor from its [width, height] sequence form.
func (a *Anchor) UnmarshalYAML(value *yaml.Node) error {
	var pair []float32
	if err := value.Decode(&pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("anchor must be a [width, height] pair, got %d elements", len(pair))
	}
	a.Width = pair[0]
	a.Height = pair[1]
	return nil
}

// MarshalYAML encodes the anchor back to its sequence form.
func (a Anchor) MarshalYAML() (interface{}, error) {
	return []float32{a.Width, a.Height}, nil
}

// Validate checks that both sides are strictly positive.
func (a Anchor) Validate() error {
	if a.Width <= 0 || a.Height <= 0 {
		return fmt.Errorf("anchor sides must be positive, got [%g, %g]", a.Width, a.Height)
	}
	return nil
}

// Area returns the anchor box area in squared input pixels.
func (a Anchor) Area() float32 {
	return a.Width * a.Height
}

// AspectRatio returns width divided by height.
func (a Anchor) AspectRatio() float32 {
	if a.Height == 0 {
		return 0
	}
	return a.Width / a.Height
}

// IoU computes the intersection over union of two anchors placed on a
// shared center.
//
// Arguments:
// - other: The anchor to compare against.
//
// Returns:
// - The overlap ratio between 0 and 1.
//
// @example
// a := Anchor{Width: 10, Height: 13}
// b := Anchor{Width: 16, Height: 30}
// fmt.Println(a.IoU(b)) // 0.27083334
func (a Anchor) IoU(other Anchor) float32 {
	inter := math32.Min(a.Width, other.Width) * math32.Min(a.Height, other.Height)
	union := a.Area() + other.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func (a Anchor) String() string {
	return fmt.Sprintf("[%g, %g]", a.Width, a.Height)
}

// AreasAscending reports whether anchors are ordered smallest to
// largest by area. Scale assignment reads anchors in that order.
func AreasAscending(anchors []Anchor) bool {
	for i := 1; i < len(anchors); i++ {
		if anchors[i].Area() < anchors[i-1].Area() {
			return false
		}
	}
	return true
}

// AnchorMask selects, by index, the anchors assigned to one output
// scale.
type AnchorMask []int

// ValidateMaskPartition checks that the masks cover every anchor index
// exactly once.
//
// Arguments:
// - masks: Per-scale anchor index groups.
// - anchorCount: Number of anchors the masks must partition.
//
// Returns:
// - nil when the masks form a partition of 0..anchorCount-1.
func ValidateMaskPartition(masks []AnchorMask, anchorCount int) error {
	seen := make([]bool, anchorCount)
	for g, mask := range masks {
		if len(mask) == 0 {
			return fmt.Errorf("mask group %d is empty", g)
		}
		for _, idx := range mask {
			if idx < 0 || idx >= anchorCount {
				return fmt.Errorf("mask group %d references anchor %d, want 0..%d", g, idx, anchorCount-1)
			}
			if seen[idx] {
				return fmt.Errorf("anchor %d assigned to more than one mask group", idx)
			}
			seen[idx] = true
		}
	}
	for idx, ok := range seen {
		if !ok {
			return fmt.Errorf("anchor %d not assigned to any mask group", idx)
		}
	}
	return nil
}
