package bufpool

// swizzleBit flags a child-slot value as holding a frame index rather
// than a persistent page id — bit 31 of the slot's uint32. A page
// written back to the volume must never carry this bit set.
const swizzleBit uint32 = 1 << 31

// SwizzlePolicy is whether pointer swizzling is enabled, modeled as a
// runtime value so construction picks it once and the hot path dispatches
// through an interface rather than a template parameter.
type SwizzlePolicy interface {
	// Enabled reports whether this policy ever swizzles.
	Enabled() bool
	// Encode packs a frame index into a swizzled slot value.
	Encode(frame uint32) uint32
	// Decode unpacks a swizzled slot value into a frame index; ok is
	// false if v does not carry the swizzle bit.
	Decode(v uint32) (frame uint32, ok bool)
	// IsSwizzled reports whether v carries the swizzle bit.
	IsSwizzled(v uint32) bool
}

// NonePolicy never swizzles: child slots always hold persistent ids, and
// every swizzle operation is a no-op (Decode never reports ok).
type NonePolicy struct{}

func (NonePolicy) Enabled() bool                    { return false }
func (NonePolicy) Encode(frame uint32) uint32       { return frame }
func (NonePolicy) Decode(uint32) (uint32, bool)     { return 0, false }
func (NonePolicy) IsSwizzled(uint32) bool           { return false }

// SimplePolicy flags the high bit of a slot value; the low 31 bits hold
// a frame index.
type SimplePolicy struct{}

func (SimplePolicy) Enabled() bool { return true }

func (SimplePolicy) Encode(frame uint32) uint32 {
	return frame | swizzleBit
}

func (SimplePolicy) Decode(v uint32) (uint32, bool) {
	if v&swizzleBit == 0 {
		return 0, false
	}
	return v &^ swizzleBit, true
}

func (SimplePolicy) IsSwizzled(v uint32) bool {
	return v&swizzleBit != 0
}
