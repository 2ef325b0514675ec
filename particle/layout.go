package particle

// NoOffset marks an attribute without per-particle storage.
const NoOffset = -1

// Layout is the packed per-particle byte layout derived from a model's states.
type Layout struct {
	// Offsets holds the byte offset of each attribute, or NoOffset.
	Offsets [NumAttributes]int
	// Sizes holds the byte size of each attribute's block (0 when unstored).
	Sizes [NumAttributes]int
	// DerivedOffsets holds the integral slot of each DerivedPairs entry, or NoOffset.
	DerivedOffsets []int

	StaticCount       int // Disabled, Constant, Fixed
	RandomCount       int
	ChangingCount     int // Changing, ChangingRandom
	InterpolatedCount int

	PackedByteSize int
}

// computeLayout assigns offsets in attribute index order, then derived
// integral slots in DerivedPairs order. The result depends only on states.
func computeLayout(states *[NumAttributes]ParamState) Layout {
	var l Layout
	off := 0
	for i := range states {
		s := states[i]
		switch s {
		case Random:
			l.RandomCount++
		case Changing, ChangingRandom:
			l.ChangingCount++
		case Interpolated:
			l.InterpolatedCount++
		default:
			l.StaticCount++
		}
		size := s.storageSize()
		if size == 0 {
			l.Offsets[i] = NoOffset
			continue
		}
		l.Offsets[i] = off
		l.Sizes[i] = size
		off += size
	}

	l.DerivedOffsets = make([]int, len(DerivedPairs))
	for i, d := range DerivedPairs {
		if !states[d.Rate].stored() {
			l.DerivedOffsets[i] = NoOffset
			continue
		}
		l.DerivedOffsets[i] = off
		off += 4
	}

	l.PackedByteSize = off
	return l
}

// Offset returns the byte offset of attr, or NoOffset.
func (l *Layout) Offset(attr Attribute) int {
	if !attr.Valid() {
		return NoOffset
	}
	return l.Offsets[attr]
}

// Equal reports whether two layouts are identical.
func (l *Layout) Equal(o *Layout) bool {
	if l.Offsets != o.Offsets || l.Sizes != o.Sizes || l.PackedByteSize != o.PackedByteSize {
		return false
	}
	if l.StaticCount != o.StaticCount || l.RandomCount != o.RandomCount ||
		l.ChangingCount != o.ChangingCount || l.InterpolatedCount != o.InterpolatedCount {
		return false
	}
	if len(l.DerivedOffsets) != len(o.DerivedOffsets) {
		return false
	}
	for i := range l.DerivedOffsets {
		if l.DerivedOffsets[i] != o.DerivedOffsets[i] {
			return false
		}
	}
	return true
}
