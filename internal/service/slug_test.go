package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "vietnamese diacritics stripped",
			input:    "Phòng Khách",
			expected: "phong-khach",
		},
		{
			name:     "tone labels",
			input:    "Xám",
			expected: "xam",
		},
		{
			name:     "already clean",
			input:    "modern",
			expected: "modern",
		},
		{
			name:     "multiple spaces collapse",
			input:    "Phòng   làm  việc",
			expected: "phong-lam-viec",
		},
		{
			name:     "punctuation dropped",
			input:    "Scandinavian (Bắc Âu)",
			expected: "scandinavian-bac-au",
		},
		{
			name:     "underscore and hyphen kept",
			input:    "mid_century-modern",
			expected: "mid_century-modern",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "filter and label agree",
			input:    "PHÒNG NGỦ",
			expected: Slugify("phòng ngủ"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.input))
		})
	}
}
