package particle

// DerivedPair couples a target attribute to a rate attribute: while the rate
// has per-particle storage, the target accumulates rate*dt every step on top
// of its own value.
type DerivedPair struct {
	Target Attribute
	Rate   Attribute
}

// DerivedPairs is the fixed table of derived attributes, in layout order.
var DerivedPairs = []DerivedPair{
	{Target: Angle, Rate: RotationSpeed},
}
