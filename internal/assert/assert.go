// Package assert holds invariant checks that panic on programmer error
package assert

import (
	"fmt"
)

// Length panics unless value has exactly expected bytes
func Length(value string, expected int) {
	if len(value) != expected {
		msg := fmt.Sprintf("assert.Length expected %d actual %d", expected, len(value))
		panic(msg)
	}
}
