package snapshot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/uitree"
)

// Selectors for the user-input surfaces capture walks. Central so the
// heuristics stay testable against fixtures.
const (
	textFieldSelector = `textarea, input[type="text"], input[type="search"], [contenteditable="true"]`
	modelSelector     = `[data-testid*="model"], [aria-label*="odel"]`
	ratioSelector     = `[data-testid*="aspect"], [data-testid*="ratio"], [aria-label*="spect"]`
)

var bgImageURL = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)

// Capturer walks the current page and records restorable user state.
type Capturer struct {
	tree     uitree.Tree
	disc     *slots.Discoverer
	assignor *slots.Assignor
	logger   *zap.Logger
}

// NewCapturer builds a Capturer sharing the session's identity assignor.
func NewCapturer(tree uitree.Tree, assignor *slots.Assignor, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		tree:     tree,
		disc:     slots.NewDiscoverer(tree, logger),
		assignor: assignor,
		logger:   logger.Named("capture"),
	}
}

// Capture records all non-empty free-text fields, the active selections, and
// every occupied slot's resolved image URL with its index and identity at
// capture time.
func (c *Capturer) Capture(ctx context.Context) (*PageStateSnapshot, error) {
	path, err := c.tree.Path(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page path: %w", err)
	}
	snap := &PageStateSnapshot{
		InputsByKey: make(map[string]string),
		Path:        path,
	}

	fields, err := c.tree.Enumerate(ctx, textFieldSelector)
	if err != nil {
		return nil, fmt.Errorf("enumerate text fields: %w", err)
	}
	for i, f := range fields {
		text := fieldText(ctx, f)
		if strings.TrimSpace(text) == "" {
			continue
		}
		snap.InputsByKey[FieldKey(f, i)] = text
	}

	snap.SelectedModel = c.selectionLabel(ctx, modelSelector)
	snap.SelectedAspectRatio = c.selectionLabel(ctx, ratioSelector)

	view, err := c.disc.Discover(ctx)
	if err != nil {
		return nil, err
	}
	view = c.assignor.Assign(view)
	for i, s := range view {
		if !s.HasContent {
			continue
		}
		url := resolveImageURL(ctx, s.Handle)
		if url == "" {
			c.logger.Debug("Occupied slot has no resolvable image URL; skipping.",
				zap.String("stable_id", s.StableID))
			continue
		}
		snap.Images = append(snap.Images, ImageRef{URL: url, SlotIndex: i, ContainerID: s.StableID})
	}

	c.logger.Debug("Capture complete.",
		zap.String("path", path),
		zap.Int("inputs", len(snap.InputsByKey)),
		zap.Int("images", len(snap.Images)))
	return snap, nil
}

// FieldKey derives the stable key a text field is captured under:
// aria-label, placeholder, name, id, then a positional fallback.
func FieldKey(el uitree.Element, position int) string {
	for _, attr := range []string{"aria-label", "placeholder", "name", "id"} {
		if v := strings.TrimSpace(el.Attr(attr)); v != "" {
			return v
		}
	}
	return fmt.Sprintf("field_%d", position)
}

func fieldText(ctx context.Context, el uitree.Element) string {
	if el.Attr("contenteditable") != "" {
		text, _ := el.Text(ctx)
		return text
	}
	v, _ := el.Value(ctx)
	return v
}

func (c *Capturer) selectionLabel(ctx context.Context, selector string) string {
	elems, err := c.tree.Enumerate(ctx, selector)
	if err != nil {
		return ""
	}
	for _, el := range elems {
		if visible, err := el.Visible(ctx); err != nil || !visible {
			continue
		}
		if text, err := el.Text(ctx); err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// resolveImageURL extracts the displayed image URL from a slot's container:
// a rendered preview image first, a background fill second.
func resolveImageURL(ctx context.Context, handle uitree.Element) string {
	container := handle.Parent()
	if container == nil {
		return ""
	}
	for _, img := range container.Query("img") {
		if src := img.Attr("src"); src != "" {
			return src
		}
	}
	if bg, err := container.Style(ctx, "background-image"); err == nil {
		if m := bgImageURL.FindStringSubmatch(bg); m != nil {
			return m[1]
		}
	}
	return ""
}
