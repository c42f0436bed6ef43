package slots

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/uitree"
)

const (
	fileInputSelector = `input[type="file"]`

	// Preview image sources shorter than this are treated as empty
	// placeholders rather than real content.
	minPreviewSrcLen = 64
)

// markerClassFragments are class-name fragments the target UI applies to an
// occupied slot container.
var markerClassFragments = []string{"has-image", "has-content", "filled", "uploaded"}

// Discoverer scans the current UI tree for candidate upload controls.
// Read-only; Discover may be called arbitrarily often.
type Discoverer struct {
	tree   uitree.Tree
	logger *zap.Logger
}

// NewDiscoverer builds a Discoverer over the given tree.
func NewDiscoverer(tree uitree.Tree, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{tree: tree, logger: logger.Named("discovery")}
}

// Discover enumerates all file-accepting controls, filters out video and
// hidden slots, scores each against the current page, and inspects
// occupancy. Sort order is priority descending then container hint
// ascending, stable across calls when nothing material changed.
func (d *Discoverer) Discover(ctx context.Context) ([]Slot, error) {
	path, err := d.tree.Path(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page path: %w", err)
	}
	pt := Classify(path)
	fragments := containerFragments(pt)

	elems, err := d.tree.Enumerate(ctx, fileInputSelector)
	if err != nil {
		return nil, fmt.Errorf("enumerate upload controls: %w", err)
	}

	var out []Slot
	for _, el := range elems {
		hints := el.AncestorHints()
		hint := containerHint(hints, fragments)
		priority := score(el, hints, pt, fragments)
		if priority == PriorityIrrelevant {
			continue
		}
		// Visibility is judged on the container, not the input: the
		// standard upload pattern hides the input itself and styles the
		// wrapper the user actually sees.
		probe := el.Parent()
		if probe == nil {
			probe = el
		}
		visible, err := probe.Visible(ctx)
		if err != nil {
			d.logger.Debug("Visibility probe failed, skipping control.",
				zap.Int64("key", int64(el.Key())), zap.Error(err))
			continue
		}
		if !visible {
			continue
		}
		out = append(out, Slot{
			Handle:        el,
			ContainerHint: hint,
			Priority:      priority,
			HasContent:    d.hasContent(ctx, el),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ContainerHint < out[j].ContainerHint
	})

	d.logger.Debug("Discovery pass complete.",
		zap.String("path", path), zap.String("page_type", string(pt)), zap.Int("slots", len(out)))
	return out, nil
}

// score computes the page-context relevance of one control. A video mention
// anywhere in the ancestor hints or the accept declaration always wins and
// yields 0.
func score(el uitree.Element, hints []string, pt PageType, fragments []string) int {
	accept := strings.ToLower(el.Attr("accept"))
	if strings.Contains(accept, "video") {
		return PriorityIrrelevant
	}
	for _, h := range hints {
		if strings.Contains(strings.ToLower(h), "video") {
			return PriorityIrrelevant
		}
	}
	if accept != "" && !strings.Contains(accept, "image") && !strings.Contains(accept, "*") {
		return PriorityIrrelevant
	}
	for _, h := range hints {
		lh := strings.ToLower(h)
		for _, f := range fragments {
			if strings.Contains(lh, f) {
				return PriorityPageMatched
			}
		}
	}
	return PriorityGeneric
}

// containerHint picks the most descriptive ancestor identifier: the nearest
// hint containing an expected fragment, else the nearest hint at all.
func containerHint(hints []string, fragments []string) string {
	for _, h := range hints {
		lh := strings.ToLower(h)
		for _, f := range fragments {
			if strings.Contains(lh, f) {
				return h
			}
		}
	}
	if len(hints) > 0 {
		return hints[0]
	}
	return "slot"
}

// hasContent combines several weak occupancy signals with OR semantics: a
// non-empty file value on the control itself, a marker class on the
// container, a rendered preview image of plausible size, or a background
// fill on the container.
func (d *Discoverer) hasContent(ctx context.Context, el uitree.Element) bool {
	if v, err := el.Value(ctx); err == nil && v != "" {
		return true
	}
	container := el.Parent()
	if container == nil {
		return false
	}
	cls := strings.ToLower(container.Attr("class"))
	for _, m := range markerClassFragments {
		if strings.Contains(cls, m) {
			return true
		}
	}
	for _, img := range container.Query("img") {
		src := img.Attr("src")
		if strings.HasPrefix(src, "blob:") || strings.HasPrefix(src, "http") || len(src) >= minPreviewSrcLen {
			return true
		}
	}
	if bg, err := container.Style(ctx, "background-image"); err == nil && bg != "" && bg != "none" {
		return true
	}
	return false
}
