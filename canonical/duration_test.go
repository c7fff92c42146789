// ABOUTME: Tests for recommended-duration parsing
// ABOUTME: Covers numeric inputs, comma decimals and verbatim text preservation
package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecommendedHours(t *testing.T) {
	tests := []struct {
		name      string
		value     any
		wantHours *float64
		wantText  string
	}{
		{"plain number", float64(14), ptr(14.0), ""},
		{"simple string", "14", ptr(14.0), "14"},
		{"decimal point", "3.5 hours", ptr(3.5), "3.5 hours"},
		{"comma decimal", "3,5 heures", ptr(3.5), "3,5 heures"},
		{"first token wins", "2 jours (14h)", ptr(2.0), "2 jours (14h)"},
		{"no number", "a discuter", nil, "a discuter"},
		{"nil", nil, nil, ""},
		{"object", map[string]any{}, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours, text := ParseRecommendedHours(tt.value)
			if tt.wantHours == nil {
				assert.Nil(t, hours)
			} else {
				require.NotNil(t, hours)
				assert.InDelta(t, *tt.wantHours, *hours, 1e-9)
			}
			assert.Equal(t, tt.wantText, text, "original text must be preserved verbatim")
		})
	}
}

func ptr(f float64) *float64 { return &f }
