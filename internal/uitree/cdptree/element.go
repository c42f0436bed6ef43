package cdptree

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"github.com/hallgrim/uplift/internal/uitree"
)

// element wraps one node of a document snapshot. It goes stale when the
// hosting framework re-renders; the engine re-enumerates before every
// operation, so staleness surfaces as an error on the next action rather
// than silent misdirection.
type element struct {
	t     *Tree
	node  *cdp.Node
	attrs map[string]string
}

func newElement(t *Tree, n *cdp.Node, attrs map[string]string) *element {
	return &element{t: t, node: n, attrs: attrs}
}

func (e *element) Key() uitree.NodeKey { return uitree.NodeKey(e.node.BackendNodeID) }

func (e *element) Tag() string { return strings.ToLower(e.node.NodeName) }

func (e *element) Attr(name string) string { return e.attrs[strings.ToLower(name)] }

func (e *element) AncestorHints() []string {
	var hints []string
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.NodeType != cdp.NodeTypeElement {
			continue
		}
		attrs := attributeMap(p)
		if id := attrs["id"]; id != "" {
			hints = append(hints, id)
		}
		if cls := attrs["class"]; cls != "" {
			hints = append(hints, strings.Fields(cls)...)
		}
	}
	return hints
}

func (e *element) Parent() uitree.Element {
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.NodeType == cdp.NodeTypeElement {
			return newElement(e.t, p, attributeMap(p))
		}
	}
	return nil
}

func (e *element) Query(selector string) []uitree.Element {
	sel, err := uitree.ParseSelector(selector)
	if err != nil {
		return nil
	}
	var out []uitree.Element
	walkNodes(e.node, func(n *cdp.Node) {
		if n == e.node || n.NodeType != cdp.NodeTypeElement {
			return
		}
		attrs := attributeMap(n)
		if sel.Matches(n.NodeName, func(name string) string { return attrs[name] }) {
			out = append(out, newElement(e.t, n, attrs))
		}
	})
	return out
}

// mark tags the live node so JavaScript can address it by selector.
func (e *element) mark(ctx context.Context) (string, error) {
	key := strconv.FormatInt(int64(e.node.BackendNodeID), 10)
	err := e.t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return dom.SetAttributeValue(e.node.NodeID, keyAttr, key).Do(c)
	}))
	if err != nil {
		return "", fmt.Errorf("mark node %s: %w", key, err)
	}
	return fmt.Sprintf(`[%s="%s"]`, keyAttr, key), nil
}

// evalOn runs a JS function body with `el` bound to this element.
func (e *element) evalOn(ctx context.Context, body string, res any) error {
	selector, err := e.mark(ctx)
	if err != nil {
		return err
	}
	js := fmt.Sprintf(`(function(el){ if (!el) throw new Error("stale element"); %s })(document.querySelector(%s))`,
		body, jsString(selector))
	return e.t.run(ctx, chromedp.Evaluate(js, res))
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var box *dom.BoxModel
	err := e.t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithNodeID(e.node.NodeID).Do(c)
		return err
	}))
	if err != nil {
		// Chrome reports "could not compute box model" for undisplayed
		// nodes; that is an answer, not a failure.
		if strings.Contains(err.Error(), "box model") {
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return box != nil && box.Width > 0 && box.Height > 0, nil
}

func (e *element) Style(ctx context.Context, property string) (string, error) {
	var val string
	body := fmt.Sprintf(`return getComputedStyle(el).getPropertyValue(%s);`, jsString(property))
	if err := e.evalOn(ctx, body, &val); err != nil {
		return "", err
	}
	return strings.TrimSpace(val), nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	if err := e.evalOn(ctx, `return el.innerText || el.textContent || "";`, &text); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	var val string
	if err := e.evalOn(ctx, `return el.value || "";`, &val); err != nil {
		return "", err
	}
	return val, nil
}

func (e *element) SetValue(ctx context.Context, value string) error {
	body := fmt.Sprintf(`el.value = %s;`, jsString(value))
	return e.evalOn(ctx, body, nil)
}

func (e *element) SetText(ctx context.Context, text string) error {
	body := fmt.Sprintf(`el.textContent = %s;`, jsString(text))
	return e.evalOn(ctx, body, nil)
}

func (e *element) SetAttr(ctx context.Context, name, value string) error {
	err := e.t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return dom.SetAttributeValue(e.node.NodeID, name, value).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("set attribute %q: %w", name, err)
	}
	e.attrs[strings.ToLower(name)] = value
	return nil
}

func (e *element) SetFiles(ctx context.Context, files []uitree.FilePayload) error {
	paths, err := e.t.writePayloadFiles(files)
	if err != nil {
		return err
	}
	err = e.t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		return dom.SetFileInputFiles(paths).WithBackendNodeID(e.node.BackendNodeID).Do(c)
	}))
	if err != nil {
		return fmt.Errorf("assign files to control: %w", err)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	return e.evalOn(ctx, `el.click();`, nil)
}

func (e *element) Hover(ctx context.Context) error {
	// Some delete affordances only render after a hover signal; dispatch
	// the whole pointer-enter family so every framework variant notices.
	body := `for (const type of ["pointerover", "pointerenter", "mouseover", "mouseenter"]) {
		el.dispatchEvent(new Event(type, {bubbles: type === "pointerover" || type === "mouseover"}));
	}`
	return e.evalOn(ctx, body, nil)
}

func (e *element) Dispatch(ctx context.Context, ev uitree.Event) error {
	body := fmt.Sprintf(`el.dispatchEvent(new Event(%s, {bubbles: true}));`, jsString(string(ev)))
	return e.evalOn(ctx, body, nil)
}
