package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"zero", 0, "$0.00"},
		{"small", 12.3, "$12.30"},
		{"rounding", 12.346, "$12.35"},
		{"thousands", 1234.5, "$1,234.50"},
		{"millions", 1234567.891, "$1,234,567.89"},
		{"negative", -12.3, "-$12.30"},
		{"negative thousands", -1250.5, "-$1,250.50"},
		{"exactly three digits", 999.99, "$999.99"},
		{"four digits", 1000, "$1,000.00"},
		{"nan", math.NaN(), "$0.00"},
		{"positive infinity", math.Inf(1), "$0.00"},
		{"negative infinity", math.Inf(-1), "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCurrency(tt.value))
		})
	}
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "12.34%", FormatPercent(12.336))
	assert.Equal(t, "-5.50%", FormatPercent(-5.5))
	assert.Equal(t, "100.00%", FormatPercent(100))
}

func TestGenerateETag_StableAndDistinct(t *testing.T) {
	type payload struct {
		A string
		B int
	}
	first, err := GenerateETag(payload{"x", 1})
	assert.NoError(t, err)
	second, err := GenerateETag(payload{"x", 1})
	assert.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := GenerateETag(payload{"x", 2})
	assert.NoError(t, err)
	assert.NotEqual(t, first, other)
}
