package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "OPTIMIZATION_STARTED",
			expected: []string{"OPTIMIZATION_STARTED"},
		},
		{
			name:     "two values",
			input:    "JOB_STARTED, JOB_FAILED",
			expected: []string{"JOB_STARTED", "JOB_FAILED"},
		},
		{
			name:     "three values with varied spacing",
			input:    "AAA,  BBB , CCC",
			expected: []string{"AAA", "BBB", "CCC"},
		},
		{
			name:     "no spaces after comma",
			input:    "runs,cache",
			expected: []string{"runs", "cache"},
		},
		{
			name:     "trailing comma",
			input:    "runs,",
			expected: []string{"runs"},
		},
		{
			name:     "leading comma",
			input:    ",cache",
			expected: []string{"cache"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,SYSTEM_STATUS_CHANGED,,ERROR_OCCURRED,,",
			expected: []string{"SYSTEM_STATUS_CHANGED", "ERROR_OCCURRED"},
		},
		{
			name:     "value with internal spaces preserved",
			input:    "S&P 500, Euro Stoxx 50",
			expected: []string{"S&P 500", "Euro Stoxx 50"},
		},
		{
			name:     "mixed spacing around values",
			input:    "  nonlinear  ,  quadratic  ",
			expected: []string{"nonlinear", "quadratic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseCSV(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseCSV_Idempotent(t *testing.T) {
	// Parsing an already-parsed single value should return same result
	firstParse := ParseCSV("OPTIMIZATION_COMPLETED")
	assert.Equal(t, []string{"OPTIMIZATION_COMPLETED"}, firstParse)

	secondParse := ParseCSV(firstParse[0])
	assert.Equal(t, firstParse, secondParse)
}
