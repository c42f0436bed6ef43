// Package uitree abstracts the hosting UI tree the engine automates.
//
// The engine never talks to a browser directly; it only requires the narrow
// capabilities defined here: enumerating elements matching a selector, reading
// coarse visual state, dispatching synthetic notifications, and observing
// tree mutations. Two implementations exist: cdptree (a live Chrome target
// over CDP) and HTMLTree (an in-memory document used by tests and dry runs).
package uitree

import (
	"context"
)

// NodeKey identifies one physical element instance for the lifetime of the
// hosting document. The same logical control re-rendered by the hosting
// framework yields a new key; the same live instance always yields the same
// key. Keys are comparable and safe to hold in maps without keeping the
// element itself reachable.
type NodeKey int64

// Event names a synthetic notification dispatched into the tree.
type Event string

const (
	EventChange       Event = "change"
	EventInput        Event = "input"
	EventPointerEnter Event = "pointerenter"
	EventPointerOver  Event = "pointerover"
	EventMouseEnter   Event = "mouseenter"
)

// FilePayload is binary content assigned into a file-accepting control.
type FilePayload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Element is a live handle to one node in the hosting tree. Handles become
// stale when the framework re-renders; callers are expected to re-enumerate
// rather than cache them across operations.
type Element interface {
	// Key returns the element's stable physical identity.
	Key() NodeKey

	// Tag returns the lowercase tag name.
	Tag() string

	// Attr returns the attribute value captured at enumeration time, or ""
	// when absent.
	Attr(name string) string

	// AncestorHints returns id/class tokens of the element's ancestors,
	// nearest first. Used for container classification only.
	AncestorHints() []string

	// Parent returns the parent element, or nil at the document root.
	Parent() Element

	// Query returns descendants matching a selector (see ParseSelector for
	// the supported subset), scoped to this element.
	Query(selector string) []Element

	// Visible reports whether the element's rendered box has nonzero area.
	Visible(ctx context.Context) (bool, error)

	// Style returns a computed style property value, or "" when unset.
	Style(ctx context.Context, property string) (string, error)

	// Text returns the element's visible text content.
	Text(ctx context.Context) (string, error)

	// Value returns the control's current value.
	Value(ctx context.Context) (string, error)

	// SetValue overwrites the control's value without dispatching events.
	SetValue(ctx context.Context, value string) error

	// SetText overwrites the element's text content without dispatching
	// events. The write path for contenteditable surfaces, whose content
	// lives in text nodes rather than a value property.
	SetText(ctx context.Context, text string) error

	// SetAttr overwrites an attribute value on the element.
	SetAttr(ctx context.Context, name, value string) error

	// SetFiles assigns file content to a file-accepting control.
	SetFiles(ctx context.Context, files []FilePayload) error

	// Click performs a synthetic activation.
	Click(ctx context.Context) error

	// Hover dispatches the pointer-enter family of events so that
	// reveal-on-hover affordances render.
	Hover(ctx context.Context) error

	// Dispatch sends a single synthetic event.
	Dispatch(ctx context.Context, ev Event) error
}

// Mutation is a coarse-grained notification that the tree changed shape.
// Consumers treat it as a cache-invalidation hint, not a delta.
type Mutation struct {
	// Kind is "childList", "document" or similar; informational only.
	Kind string
}

// Tree is the hosting UI tree.
type Tree interface {
	// Enumerate returns all elements in the current tree matching selector,
	// in document order. Read-only; may be called arbitrarily often.
	Enumerate(ctx context.Context, selector string) ([]Element, error)

	// Path returns the current page path (e.g. "/create/image").
	Path(ctx context.Context) (string, error)

	// Observe starts coarse mutation observation. The returned stop function
	// releases the observer; the channel is closed after stop.
	Observe(ctx context.Context) (<-chan Mutation, func(), error)
}
