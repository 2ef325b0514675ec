// Package particle implements the particle attribute model and the particle
// group simulation: packed per-particle attribute layouts, a fixed slot pool,
// drift-free flow accumulation and temporally interpolated emission.
package particle

import "strings"

// Attribute identifies a named per-particle attribute.
type Attribute uint8

const (
	Red Attribute = iota
	Green
	Blue
	Alpha
	Size
	Mass
	Angle
	TextureIndex
	RotationSpeed

	// NumAttributes is the number of enumerated attributes.
	NumAttributes
)

var attributeNames = [NumAttributes]string{
	Red:           "red",
	Green:         "green",
	Blue:          "blue",
	Alpha:         "alpha",
	Size:          "size",
	Mass:          "mass",
	Angle:         "angle",
	TextureIndex:  "texture_index",
	RotationSpeed: "rotation_speed",
}

// attributeDefaults are the values a fresh model reports for every attribute.
var attributeDefaults = [NumAttributes]float64{
	Red:   1,
	Green: 1,
	Blue:  1,
	Alpha: 1,
	Size:  1,
	Mass:  1,
}

// Valid reports whether a is inside the enumerated range.
func (a Attribute) Valid() bool {
	return a < NumAttributes
}

// String returns the config name of the attribute.
func (a Attribute) String() string {
	if !a.Valid() {
		return "invalid"
	}
	return attributeNames[a]
}

// Default returns the built-in default value of the attribute.
func (a Attribute) Default() float64 {
	if !a.Valid() {
		return 0
	}
	return attributeDefaults[a]
}

// ParseAttribute looks up an attribute by its config name (case-insensitive).
func ParseAttribute(name string) (Attribute, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range attributeNames {
		if n == name {
			return Attribute(i), true
		}
	}
	return NumAttributes, false
}

// ParamState describes how an attribute is stored and how it evolves.
type ParamState uint8

const (
	Disabled ParamState = iota
	Constant
	Fixed
	Random
	Changing
	ChangingRandom
	Interpolated
)

var stateNames = [...]string{
	Disabled:       "disabled",
	Constant:       "constant",
	Fixed:          "fixed",
	Random:         "random",
	Changing:       "changing",
	ChangingRandom: "changing_random",
	Interpolated:   "interpolated",
}

// String returns the config name of the state.
func (s ParamState) String() string {
	if int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// ParseParamState looks up a state by its config name (case-insensitive).
func ParseParamState(name string) (ParamState, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return ParamState(i), true
		}
	}
	return Disabled, false
}

// storageSize is the number of packed bytes a state needs per particle.
func (s ParamState) storageSize() int {
	switch s {
	case Random, Changing, Interpolated:
		return 4
	case ChangingRandom:
		return 8
	default:
		return 0
	}
}

// stored reports whether the state keeps per-particle data.
func (s ParamState) stored() bool {
	return s.storageSize() > 0
}
