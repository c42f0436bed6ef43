package inject

import "github.com/hallgrim/uplift/internal/uitree"

// Mode selects how an injection target is identified.
type Mode int

const (
	// ModeAuto targets the first unoccupied high-priority slot, falling
	// back to the first high-priority slot as a replacement target.
	ModeAuto Mode = iota
	// ModeIndex targets by position within the priority-filtered slot list.
	ModeIndex
	// ModeStableID targets by stable identity.
	ModeStableID
	// ModeHandle targets a specific live control directly.
	ModeHandle
)

// Selector identifies the target slot of one injection.
type Selector struct {
	Mode     Mode
	Index    int
	StableID string
	Handle   uitree.Element

	// ExpectedStableID, when set alongside ModeIndex, is a consistency
	// check: if the slot at Index no longer carries this identity, an exact
	// identity match elsewhere in the list is preferred over the index.
	ExpectedStableID string
}

// Auto targets the first appropriate slot.
func Auto() Selector { return Selector{Mode: ModeAuto} }

// ByIndex targets position i in the priority-filtered list.
func ByIndex(i int) Selector { return Selector{Mode: ModeIndex, Index: i} }

// ByIndexExpecting targets position i but prefers an exact match on the
// stable identity observed when i was chosen.
func ByIndexExpecting(i int, stableID string) Selector {
	return Selector{Mode: ModeIndex, Index: i, ExpectedStableID: stableID}
}

// ByStableID targets a slot by stable identity.
func ByStableID(id string) Selector { return Selector{Mode: ModeStableID, StableID: id} }

// ByHandle targets a specific live control.
func ByHandle(el uitree.Element) Selector { return Selector{Mode: ModeHandle, Handle: el} }
