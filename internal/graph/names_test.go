package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGradientNames(t *testing.T) {
	assert.Equal(t, "x_grad", GradName("x"))
	assert.Equal(t, "x_grad/split:2", SplitName("x", 2))
	assert.Equal(t, "x_grad/sum:0", SumName("x", 0))
}

func TestSourceOf(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"x_grad", "x", true},
		{"x_grad/split:1", "x", true},
		{"x_grad/sum:12", "x", true},
		{"layer1/w_grad", "layer1/w", true},
		{"x_grad_grad", "x_grad", true},
		{"x", "", false},
		{"_grad", "", false},
		{"x_grad/split:", "", false},
		{"x_grad/split:a", "", false},
		{"x_grad/tmp", "", false},
		{"/share/grad:0", "", false},
	}
	for _, tt := range tests {
		src, ok := SourceOf(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.src, src, tt.name)
		assert.Equal(t, tt.ok, IsGradName(tt.name), tt.name)
	}
}
