package slots

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/uitree"
)

// Assignor maps each physical control instance to a durable stable
// identifier. Numbering depends only on first-observation order of a given
// instance, never on document order: document order is exactly what the
// hosting framework shuffles between renders, and numbering off it is how
// slots get transposed.
//
// The association is keyed by uitree.NodeKey, a plain value, so the map
// holds no reference that would keep a destroyed control alive. Entries for
// dead instances persist harmlessly until Prune rebuilds the map from a live
// enumeration.
type Assignor struct {
	mu     sync.Mutex
	byKey  map[uitree.NodeKey]assignment
	seq    map[string]int
	logger *zap.Logger
}

type assignment struct {
	id   string
	hint string
}

// NewAssignor builds an empty Assignor.
func NewAssignor(logger *zap.Logger) *Assignor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assignor{
		byKey:  make(map[uitree.NodeKey]assignment),
		seq:    make(map[string]int),
		logger: logger.Named("identity"),
	}
}

// Assign fills StableID (and pins ContainerHint) on each slot in place and
// returns the same slice. Idempotent: a slot whose instance was seen before
// gets its previous identity back unchanged; a new instance is allocated the
// next sequence number for its base class.
func (a *Assignor) Assign(in []Slot) []Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range in {
		key := in[i].Handle.Key()
		if prev, ok := a.byKey[key]; ok {
			in[i].StableID = prev.id
			in[i].ContainerHint = prev.hint
			continue
		}
		base := baseClass(in[i].ContainerHint)
		n := a.seq[base]
		a.seq[base] = n + 1
		id := fmt.Sprintf("%s#%d", base, n)
		a.byKey[key] = assignment{id: id, hint: in[i].ContainerHint}
		in[i].StableID = id
		a.logger.Debug("Assigned stable identity.",
			zap.String("stable_id", id), zap.Int64("key", int64(key)))
	}
	return in
}

// Prune rebuilds the association from a live slot set, dropping entries for
// instances no longer reachable. Sequence counters are kept: they only ever
// increase, so pruning never causes identifier reuse.
func (a *Assignor) Prune(live []Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	kept := make(map[uitree.NodeKey]assignment, len(live))
	for _, s := range live {
		if prev, ok := a.byKey[s.Handle.Key()]; ok {
			kept[s.Handle.Key()] = prev
		}
	}
	a.byKey = kept
}

// Tracked returns the number of live associations, for diagnostics.
func (a *Assignor) Tracked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.byKey)
}

var baseClassStrip = regexp.MustCompile(`[^a-z0-9_-]+`)

// baseClass reduces a container hint to the base string sequence counters
// are keyed by.
func baseClass(hint string) string {
	b := strings.ToLower(strings.TrimSpace(hint))
	b = baseClassStrip.ReplaceAllString(b, "-")
	b = strings.Trim(b, "-")
	if b == "" {
		return "slot"
	}
	return b
}
