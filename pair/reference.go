// Package pair provides stable pair identity and the cross-frame pair cache
// of the narrow phase. During the parallel phase the previous frame's mapping
// is read-only; all mutation goes through worker-local deltas merged by a
// single-threaded flush.
package pair

import (
	"fmt"

	"github.com/akmonengine/talon/actor"
)

// Reference packs a collidable: the body handle in the low 30 bits, the
// mobility in the top 2.
type Reference uint32

const (
	mobilityShift = 30
	handleMask    = (1 << mobilityShift) - 1
)

// NewReference packs a handle and mobility.
func NewReference(handle actor.Handle, mobility actor.Mobility) Reference {
	return Reference(uint32(handle)&handleMask | uint32(mobility)<<mobilityShift)
}

// Handle unpacks the body handle.
func (r Reference) Handle() actor.Handle {
	return actor.Handle(r & handleMask)
}

// Mobility unpacks the mobility.
func (r Reference) Mobility() actor.Mobility {
	return actor.Mobility(r >> mobilityShift)
}

// Dynamic reports whether the referenced collidable can move in response to
// impulses.
func (r Reference) Dynamic() bool {
	return r.Mobility() == actor.MobilityDynamic
}

// ID is the canonical identity of an unordered collidable pair: the first
// reference in the high 32 bits.
type ID uint64

// Canonicalize produces the stable identity of an unordered pair: statics
// occupy the second slot; between two bodies the lower handle comes first.
// Canonicalization is total: the same two collidables always produce the
// same ID regardless of argument order.
func Canonicalize(a, b Reference) (first, second Reference) {
	aStatic := a.Mobility() == actor.MobilityStatic
	bStatic := b.Mobility() == actor.MobilityStatic
	switch {
	case bStatic && !aStatic:
		return a, b
	case aStatic && !bStatic:
		return b, a
	default:
		if a.Handle() <= b.Handle() {
			return a, b
		}
		return b, a
	}
}

// MakeID builds the canonical pair id.
func MakeID(a, b Reference) ID {
	first, second := Canonicalize(a, b)
	return ID(uint64(first)<<32 | uint64(second))
}

// First returns the canonical first reference.
func (id ID) First() Reference {
	return Reference(id >> 32)
}

// Second returns the canonical second reference.
func (id ID) Second() Reference {
	return Reference(id & 0xFFFFFFFF)
}

// Validate checks the narrow-phase preconditions for an incoming pair.
func Validate(a, b Reference) error {
	if a == b {
		return fmt.Errorf("self pair: %v", a)
	}
	if a.Mobility() == actor.MobilityStatic && b.Mobility() == actor.MobilityStatic {
		return fmt.Errorf("static-static pair: %v, %v", a, b)
	}
	return nil
}
