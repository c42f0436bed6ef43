package slots

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hallgrim/uplift/internal/uitree"
)

// fakeHandle is the minimal Element an Assignor touches: just the key.
type fakeHandle struct {
	uitree.Element
	key uitree.NodeKey
}

func (f fakeHandle) Key() uitree.NodeKey { return f.key }

func slotWithKey(key int64, hint string) Slot {
	return Slot{Handle: fakeHandle{key: uitree.NodeKey(key)}, ContainerHint: hint}
}

func TestAssignNumbersFirstObservationOrder(t *testing.T) {
	a := NewAssignor(nil)

	view := a.Assign([]Slot{
		slotWithKey(10, "image-upload-slot"),
		slotWithKey(20, "image-upload-slot"),
		slotWithKey(30, "image-upload-slot"),
	})

	require.Len(t, view, 3)
	assert.Equal(t, "image-upload-slot#0", view[0].StableID)
	assert.Equal(t, "image-upload-slot#1", view[1].StableID)
	assert.Equal(t, "image-upload-slot#2", view[2].StableID)
}

func TestAssignIsStableUnderReordering(t *testing.T) {
	a := NewAssignor(nil)

	a.Assign([]Slot{
		slotWithKey(10, "image-upload-slot"),
		slotWithKey(20, "image-upload-slot"),
	})

	// The hosting framework re-renders and flips document order; the
	// physical instances keep their identities.
	view := a.Assign([]Slot{
		slotWithKey(20, "image-upload-slot"),
		slotWithKey(10, "image-upload-slot"),
	})

	assert.Equal(t, "image-upload-slot#1", view[0].StableID)
	assert.Equal(t, "image-upload-slot#0", view[1].StableID)
}

func TestAssignSeparateSequencesPerBaseClass(t *testing.T) {
	a := NewAssignor(nil)

	view := a.Assign([]Slot{
		slotWithKey(1, "image-upload-slot"),
		slotWithKey(2, "reference-box"),
		slotWithKey(3, "image-upload-slot"),
	})

	assert.Equal(t, "image-upload-slot#0", view[0].StableID)
	assert.Equal(t, "reference-box#0", view[1].StableID)
	assert.Equal(t, "image-upload-slot#1", view[2].StableID)
}

func TestAssignRestoresPinnedHint(t *testing.T) {
	a := NewAssignor(nil)

	a.Assign([]Slot{slotWithKey(1, "image-upload-slot")})

	// The container hint computed on a later pass may differ; the pinned
	// one from first observation wins.
	view := a.Assign([]Slot{slotWithKey(1, "upload")})
	assert.Equal(t, "image-upload-slot#0", view[0].StableID)
	assert.Equal(t, "image-upload-slot", view[0].ContainerHint)
}

func TestPruneDropsDeadEntriesButNeverReusesNumbers(t *testing.T) {
	a := NewAssignor(nil)

	view := a.Assign([]Slot{
		slotWithKey(1, "image-upload-slot"),
		slotWithKey(2, "image-upload-slot"),
	})
	require.Equal(t, 2, a.Tracked())

	// Instance 1 was destroyed; only instance 2 survives the next pass.
	a.Prune(view[1:])
	assert.Equal(t, 1, a.Tracked())

	// A brand new instance never resurrects the dead slot's number.
	fresh := a.Assign([]Slot{slotWithKey(3, "image-upload-slot")})
	assert.Equal(t, "image-upload-slot#2", fresh[0].StableID)

	// The survivor still answers to its old identity.
	kept := a.Assign([]Slot{slotWithKey(2, "image-upload-slot")})
	assert.Equal(t, "image-upload-slot#1", kept[0].StableID)
}

func TestAssignSequenceIsDense(t *testing.T) {
	a := NewAssignor(nil)

	const k = 7
	in := make([]Slot, 0, k)
	for i := 0; i < k; i++ {
		in = append(in, slotWithKey(int64(100+i), "image-upload-slot"))
	}
	view := a.Assign(in)

	seen := make(map[string]bool, k)
	for _, s := range view {
		seen[s.StableID] = true
	}
	for i := 0; i < k; i++ {
		assert.True(t, seen[fmt.Sprintf("image-upload-slot#%d", i)], "missing sequence number %d", i)
	}
}

func TestBaseClassSanitization(t *testing.T) {
	testCases := []struct {
		hint string
		want string
	}{
		{"Image Upload Slot", "image-upload-slot"},
		{"ref/box", "ref-box"},
		{"", "slot"},
		{"---", "slot"},
		{"frame_start", "frame_start"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, baseClass(tc.hint), "hint %q", tc.hint)
	}
}
