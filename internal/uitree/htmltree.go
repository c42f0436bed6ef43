package uitree

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// HTMLTree is an in-memory Tree backed by a parsed HTML document. It powers
// package tests and the CLI's dry-run mode, where the engine is exercised
// against a saved page instead of a live browser.
//
// Hooks (OnClick, OnEvent) let tests make the fake page "react" to synthetic
// input the way the real hosting framework would, e.g. clearing a preview
// when a delete affordance is clicked.
type HTMLTree struct {
	mu      sync.Mutex
	doc     *html.Node
	path    string
	keys    map[*html.Node]NodeKey
	nextKey NodeKey
	values  map[NodeKey]string
	files   map[NodeKey][]FilePayload
	log     []string
	subs    []chan Mutation

	// OnClick, when set, runs after a synthetic click is recorded.
	OnClick func(el Element)
	// OnEvent, when set, runs after any synthetic event dispatch.
	OnEvent func(el Element, ev Event)
}

// ParseHTMLTree builds an HTMLTree from serialized HTML.
func ParseHTMLTree(src, path string) (*HTMLTree, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse fixture HTML: %w", err)
	}
	return &HTMLTree{
		doc:    doc,
		path:   path,
		keys:   make(map[*html.Node]NodeKey),
		values: make(map[NodeKey]string),
		files:  make(map[NodeKey][]FilePayload),
	}, nil
}

// Path implements Tree.
func (t *HTMLTree) Path(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path, nil
}

// SetPath repoints the fake document, as a navigation would.
func (t *HTMLTree) SetPath(p string) {
	t.mu.Lock()
	t.path = p
	t.mu.Unlock()
}

// Enumerate implements Tree.
func (t *HTMLTree) Enumerate(_ context.Context, selector string) ([]Element, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Element
	walk(t.doc, func(n *html.Node) {
		if n.Type == html.ElementNode && sel.Matches(n.Data, func(name string) string { return nodeAttr(n, name) }) {
			out = append(out, t.wrapLocked(n))
		}
	})
	return out, nil
}

// Observe implements Tree.
func (t *HTMLTree) Observe(context.Context) (<-chan Mutation, func(), error) {
	ch := make(chan Mutation, 16)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	stop := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s == ch {
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, stop, nil
}

// Bump publishes a coarse mutation to all observers.
func (t *HTMLTree) Bump(kind string) {
	t.mu.Lock()
	subs := append([]chan Mutation(nil), t.subs...)
	t.mu.Unlock()
	for _, s := range subs {
		select {
		case s <- Mutation{Kind: kind}:
		default:
		}
	}
}

// Log returns the ordered record of synthetic interactions, for tests that
// assert on call sequencing.
func (t *HTMLTree) Log() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.log...)
}

// SetAttr mutates an attribute on a wrapped element, as the hosting
// framework would during a re-render.
func (t *HTMLTree) SetAttr(el Element, name, val string) {
	he, ok := el.(*htmlElement)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	setNodeAttr(he.node, name, val)
}

func (t *HTMLTree) record(format string, args ...any) {
	t.mu.Lock()
	t.log = append(t.log, fmt.Sprintf(format, args...))
	t.mu.Unlock()
}

func (t *HTMLTree) wrapLocked(n *html.Node) *htmlElement {
	key, ok := t.keys[n]
	if !ok {
		t.nextKey++
		key = t.nextKey
		t.keys[n] = key
	}
	return &htmlElement{tree: t, node: n, key: key}
}

func (t *HTMLTree) wrap(n *html.Node) *htmlElement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wrapLocked(n)
}

type htmlElement struct {
	tree *HTMLTree
	node *html.Node
	key  NodeKey
}

func (e *htmlElement) Key() NodeKey { return e.key }

func (e *htmlElement) Tag() string { return strings.ToLower(e.node.Data) }

func (e *htmlElement) Attr(name string) string { return nodeAttr(e.node, name) }

func (e *htmlElement) AncestorHints() []string {
	var hints []string
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		if id := nodeAttr(p, "id"); id != "" {
			hints = append(hints, id)
		}
		if cls := nodeAttr(p, "class"); cls != "" {
			hints = append(hints, strings.Fields(cls)...)
		}
	}
	return hints
}

func (e *htmlElement) Parent() Element {
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return e.tree.wrap(p)
		}
	}
	return nil
}

func (e *htmlElement) Query(selector string) []Element {
	sel, err := ParseSelector(selector)
	if err != nil {
		return nil
	}
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	var out []Element
	walk(e.node, func(n *html.Node) {
		if n == e.node {
			return
		}
		if n.Type == html.ElementNode && sel.Matches(n.Data, func(name string) string { return nodeAttr(n, name) }) {
			out = append(out, e.tree.wrapLocked(n))
		}
	})
	return out
}

func (e *htmlElement) Visible(context.Context) (bool, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	for n := e.node; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if nodeAttr(n, "hidden") != "" {
			return false, nil
		}
		style := nodeAttr(n, "style")
		if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") {
			return false, nil
		}
		if strings.Contains(style, "width:0") || strings.Contains(style, "height:0") {
			return false, nil
		}
	}
	return true, nil
}

func (e *htmlElement) Style(_ context.Context, property string) (string, error) {
	e.tree.mu.Lock()
	style := nodeAttr(e.node, "style")
	e.tree.mu.Unlock()
	for _, decl := range strings.Split(style, ";") {
		name, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(name) == property {
			return strings.TrimSpace(val), nil
		}
	}
	return "", nil
}

func (e *htmlElement) Text(context.Context) (string, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	var sb strings.Builder
	walk(e.node, func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
	})
	return strings.TrimSpace(sb.String()), nil
}

func (e *htmlElement) Value(context.Context) (string, error) {
	e.tree.mu.Lock()
	defer e.tree.mu.Unlock()
	if v, ok := e.tree.values[e.key]; ok {
		return v, nil
	}
	return nodeAttr(e.node, "value"), nil
}

func (e *htmlElement) SetValue(_ context.Context, value string) error {
	e.tree.mu.Lock()
	e.tree.values[e.key] = value
	if value == "" {
		delete(e.tree.files, e.key)
	}
	e.tree.mu.Unlock()
	e.tree.record("SetValue(%d, %q)", e.key, value)
	return nil
}

func (e *htmlElement) SetText(_ context.Context, text string) error {
	e.tree.mu.Lock()
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	e.tree.mu.Unlock()
	e.tree.record("SetText(%d, %q)", e.key, text)
	return nil
}

func (e *htmlElement) SetAttr(_ context.Context, name, value string) error {
	e.tree.mu.Lock()
	setNodeAttr(e.node, name, value)
	e.tree.mu.Unlock()
	e.tree.record("SetAttr(%d, %s=%q)", e.key, name, value)
	return nil
}

func (e *htmlElement) SetFiles(_ context.Context, files []FilePayload) error {
	name := ""
	if len(files) > 0 {
		name = files[0].Filename
	}
	e.tree.mu.Lock()
	e.tree.files[e.key] = files
	e.tree.values[e.key] = name
	e.tree.mu.Unlock()
	e.tree.record("SetFiles(%d, %s)", e.key, name)
	return nil
}

func (e *htmlElement) Click(ctx context.Context) error {
	e.tree.record("Click(%d)", e.key)
	if e.tree.OnClick != nil {
		e.tree.OnClick(e)
	}
	return nil
}

func (e *htmlElement) Hover(ctx context.Context) error {
	e.tree.record("Hover(%d)", e.key)
	for _, ev := range []Event{EventPointerOver, EventPointerEnter, EventMouseEnter} {
		if e.tree.OnEvent != nil {
			e.tree.OnEvent(e, ev)
		}
	}
	return nil
}

func (e *htmlElement) Dispatch(_ context.Context, ev Event) error {
	e.tree.record("Dispatch(%d, %s)", e.key, ev)
	if e.tree.OnEvent != nil {
		e.tree.OnEvent(e, ev)
	}
	return nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func nodeAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func setNodeAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}
