package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMovement_VerbatimRelocation(t *testing.T) {
	oldContent := "func charge(amount int) error {\n\treturn gateway.Charge(amount)\n}"
	newFile := "package pay\n\nimport \"billing/gateway\"\n\nfunc charge(amount int) error {\n\treturn gateway.Charge(amount)\n}\n"

	mv := DetectMovement(oldContent, newFile, "")

	assert.True(t, mv.Relocated)
	assert.Equal(t, 1.0, mv.Confidence)
	assert.Equal(t, ReasonExactMove, mv.Reason)
	assert.Equal(t, 5, mv.StartLine)
	assert.Equal(t, 7, mv.EndLine)
}

func TestDetectMovement_PartialOverlap(t *testing.T) {
	oldContent := "total := price * quantity\ntax := total * rate"
	extracted := "total := price * quantity\ntax := total * vatRate"

	mv := DetectMovement(oldContent, "unrelated file body", extracted)

	assert.False(t, mv.Relocated)
	assert.Equal(t, ReasonPartial, mv.Reason)
	assert.Greater(t, mv.Confidence, 0.0)
	assert.Less(t, mv.Confidence, 1.0)
}

func TestDetectMovement_NotFound(t *testing.T) {
	mv := DetectMovement("alpha beta gamma", "delta\nepsilon\n", "zeta eta theta")

	assert.False(t, mv.Relocated)
	assert.Equal(t, 0.0, mv.Confidence)
	assert.Equal(t, ReasonNotFound, mv.Reason)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want func(t *testing.T, got float64)
	}{
		{
			name: "identical",
			a:    "return user.Name",
			b:    "return user.Name",
			want: func(t *testing.T, got float64) { assert.Equal(t, 1.0, got) },
		},
		{
			name: "disjoint",
			a:    "alpha beta",
			b:    "gamma delta",
			want: func(t *testing.T, got float64) { assert.Equal(t, 0.0, got) },
		},
		{
			name: "partial",
			a:    "if err != nil { return err }",
			b:    "if err != nil { return fmt.Errorf(\"wrap: %w\", err) }",
			want: func(t *testing.T, got float64) {
				assert.Greater(t, got, 0.0)
				assert.Less(t, got, 1.0)
			},
		},
		{
			name: "empty side",
			a:    "",
			b:    "anything",
			want: func(t *testing.T, got float64) { assert.Equal(t, 0.0, got) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.want(t, Similarity(tt.a, tt.b))
		})
	}
}
