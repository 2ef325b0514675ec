//go:build plumedebug

package particle

import "fmt"

const debugAsserts = true

func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("particle: "+format, args...))
	}
}
