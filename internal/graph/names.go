package graph

import (
	"strconv"
	"strings"
)

// GradSuffix is appended to a tensor name to form the name of its gradient.
const GradSuffix = "_grad"

const (
	splitTag = "/split:"
	sumTag   = "/sum:"
)

// GradName returns the final gradient name of tensor x.
func GradName(x string) string {
	return x + GradSuffix
}

// SplitName returns the name of the n-th partial gradient contribution to x.
func SplitName(x string, n int) string {
	return GradName(x) + splitTag + strconv.Itoa(n)
}

// SumName returns the name of the n-th intermediate accumulator for x.
func SumName(x string, n int) string {
	return GradName(x) + sumTag + strconv.Itoa(n)
}

// SourceOf returns the tensor a gradient name was derived from.
//
//	SourceOf("x_grad")         == "x", true
//	SourceOf("x_grad/split:1") == "x", true
//	SourceOf("x_grad/sum:0")   == "x", true
//	SourceOf("x")              == "",  false
func SourceOf(name string) (string, bool) {
	idx := strings.LastIndex(name, GradSuffix)
	if idx <= 0 {
		return "", false
	}
	rest := name[idx+len(GradSuffix):]
	switch {
	case rest == "":
	case strings.HasPrefix(rest, splitTag) && isDigits(rest[len(splitTag):]):
	case strings.HasPrefix(rest, sumTag) && isDigits(rest[len(sumTag):]):
	default:
		return "", false
	}
	return name[:idx], true
}

// IsGradName reports whether name follows the gradient naming convention.
func IsGradName(name string) bool {
	_, ok := SourceOf(name)
	return ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
