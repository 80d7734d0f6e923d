package testing

import (
	"strconv"
	"strings"
)

// ReturnsFixture is a T×N returns matrix with its symbols.
type ReturnsFixture struct {
	Symbols []string
	Returns [][]float64
}

// NewTwoAssetFixture returns four periods of two assets with different
// means and volatilities.
func NewTwoAssetFixture() ReturnsFixture {
	return ReturnsFixture{
		Symbols: []string{"AAA", "BBB"},
		Returns: [][]float64{
			{0.02, 0.010},
			{-0.01, 0.015},
			{0.03, 0.005},
			{0.00, 0.012},
		},
	}
}

// NewSectorFixture returns twelve monthly periods of four assets.
func NewSectorFixture() ReturnsFixture {
	return ReturnsFixture{
		Symbols: []string{"TECH", "ENERGY", "HEALTH", "BONDS"},
		Returns: [][]float64{
			{0.041, -0.012, 0.015, 0.003},
			{-0.022, 0.031, 0.008, 0.004},
			{0.035, 0.006, -0.011, 0.002},
			{0.012, -0.025, 0.019, 0.005},
			{-0.030, 0.018, 0.004, 0.003},
			{0.027, 0.011, 0.013, 0.001},
			{0.019, -0.008, -0.006, 0.004},
			{-0.014, 0.024, 0.017, 0.002},
			{0.044, -0.019, 0.009, 0.003},
			{0.008, 0.015, -0.003, 0.005},
			{-0.017, -0.004, 0.021, 0.002},
			{0.031, 0.009, 0.006, 0.004},
		},
	}
}

// ToCSV renders the fixture as a returns file with a header row.
func (f ReturnsFixture) ToCSV() string {
	var b strings.Builder
	b.WriteString(strings.Join(f.Symbols, ","))
	b.WriteByte('\n')
	for _, row := range f.Returns {
		for j, v := range row {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
