// Package checked provides overflow-checked integer arithmetic for batch
// size derivations.
package checked

import (
	"errors"
	"math"
)

// ErrOverflow is returned when a derivation does not fit in an int.
var ErrOverflow = errors.New("checked: integer overflow")

// Mul returns a*b, or ErrOverflow.
func Mul(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, ErrOverflow
	}
	if a == 0 || b == 0 {
		return 0, nil
	}
	if a > math.MaxInt/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// Add returns a+b, or ErrOverflow.
func Add(a, b int) (int, error) {
	if a < 0 || b < 0 || a > math.MaxInt-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// CeilDiv returns ⌈a/b⌉ for positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
