// Package slots discovers upload controls in the hosting UI tree and pins a
// durable logical identity onto each one.
//
// The hosting framework recreates its controls freely, and their document
// order changes between renders. Discovery therefore produces fresh handles
// on every pass, while the Assignor maps each physical control instance to a
// stable identifier that survives re-scans for as long as the instance does.
package slots

import (
	"github.com/hallgrim/uplift/internal/uitree"
)

// Slot is one discovered upload control.
type Slot struct {
	// Handle is the live control. Not serializable; becomes stale across
	// re-renders.
	Handle uitree.Element

	// ContainerHint is a best-effort textual classification derived from
	// ancestor identifiers.
	ContainerHint string

	// Priority is the page-context relevance score: 0 irrelevant, 5 generic
	// fallback, 10 page-matched.
	Priority int

	// HasContent reports whether the control visually holds content already.
	HasContent bool

	// StableID is assigned once per physical control, format "<base>#<seq>".
	// Empty until the Assignor has seen the slot.
	StableID string
}

// Relevance levels for Slot.Priority.
const (
	PriorityIrrelevant  = 0
	PriorityGeneric     = 5
	PriorityPageMatched = 10
)
