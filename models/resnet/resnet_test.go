package resnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detcfg/common"
	"github.com/nvr-ai/go-detcfg/config"
)

// TestDefaults verifies the settings a document starts from.
func TestDefaults(t *testing.T) {
	d := Defaults()

	assert.Equal(t, common.NormTypeBN, d.NormType)
	assert.Equal(t, 2, d.FreezeAt)
	assert.False(t, d.FreezeNorm)
	assert.Zero(t, d.NormDecay)
	assert.Equal(t, 50, d.Depth)
	assert.Equal(t, []int{3, 4, 5}, d.FeatureMaps)

	require.NoError(t, d.Validate(), "defaults must validate")
	assert.Empty(t, d.Lint())
}

// TestValidate verifies every backbone range check.
func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*ResNet)
		wantField string
	}{
		{
			name:   "defaults pass",
			mutate: func(*ResNet) {},
		},
		{
			name:   "every supported depth passes",
			mutate: func(r *ResNet) { r.Depth = 152 },
		},
		{
			name:      "unknown norm type",
			mutate:    func(r *ResNet) { r.NormType = "group_norm" },
			wantField: "norm_type",
		},
		{
			name:      "freeze stage too deep",
			mutate:    func(r *ResNet) { r.FreezeAt = 5 },
			wantField: "freeze_at",
		},
		{
			name:      "negative freeze stage",
			mutate:    func(r *ResNet) { r.FreezeAt = -1 },
			wantField: "freeze_at",
		},
		{
			name:      "negative norm decay",
			mutate:    func(r *ResNet) { r.NormDecay = -0.1 },
			wantField: "norm_decay",
		},
		{
			name:      "unsupported depth",
			mutate:    func(r *ResNet) { r.Depth = 42 },
			wantField: "depth",
		},
		{
			name:      "no feature maps",
			mutate:    func(r *ResNet) { r.FeatureMaps = nil },
			wantField: "feature_maps",
		},
		{
			name:      "stage out of range",
			mutate:    func(r *ResNet) { r.FeatureMaps = []int{3, 4, 6} },
			wantField: "feature_maps",
		},
		{
			name:      "stages not ascending",
			mutate:    func(r *ResNet) { r.FeatureMaps = []int{4, 3, 5} },
			wantField: "feature_maps",
		},
		{
			name:      "repeated stage",
			mutate:    func(r *ResNet) { r.FeatureMaps = []int{3, 3, 4} },
			wantField: "feature_maps",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Defaults()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var ve *config.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

// TestLintFrozenNormDecay verifies the warning for decay on frozen
// normalization parameters.
func TestLintFrozenNormDecay(t *testing.T) {
	r := Defaults()
	r.FreezeNorm = true
	r.NormDecay = 0.0001

	warns := r.Lint()
	require.Len(t, warns, 1)
	assert.Equal(t, "norm_decay", warns[0].Field)

	r.NormDecay = 0
	assert.Empty(t, r.Lint(), "zero decay on frozen norm is fine")
}
