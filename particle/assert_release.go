//go:build !plumedebug

package particle

const debugAsserts = false

// assertf is a no-op outside plumedebug builds; callers clamp instead.
func assertf(bool, string, ...any) {}
