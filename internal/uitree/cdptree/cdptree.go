// Package cdptree implements uitree.Tree against a live Chrome target over
// the Chrome DevTools Protocol.
//
// Enumeration walks a full document snapshot so ancestor information is
// available without extra round trips. Per-element operations mark the node
// with a key attribute and address it by attribute selector from JavaScript;
// typed DOM commands (box model, file assignment) go by node id. Handles are
// keyed by the backend node id, which survives re-scans for as long as the
// physical node does, which is exactly the identity the engine needs.
package cdptree

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/bridge"
	"github.com/hallgrim/uplift/internal/uitree"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// keyAttr marks elements so JavaScript operations can address them without
// object references.
const keyAttr = "data-uplift-key"

// Tree drives one chromedp target.
type Tree struct {
	ctx    context.Context
	bus    *bridge.Bus
	logger *zap.Logger
	tmpDir string

	mu       sync.Mutex
	watchers []chan uitree.Mutation
}

// Attach instruments an existing chromedp target context: installs the
// upload interceptor script, wires the completion binding into the bus, and
// starts forwarding announce signals into the page. The caller owns the
// chromedp context's lifetime.
func Attach(ctx context.Context, bus *bridge.Bus, logger *zap.Logger) (*Tree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpDir, err := os.MkdirTemp("", "uplift-payload-*")
	if err != nil {
		return nil, fmt.Errorf("create payload scratch dir: %w", err)
	}
	t := &Tree{ctx: ctx, bus: bus, logger: logger.Named("cdptree"), tmpDir: tmpDir}

	err = chromedp.Run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		if err := dom.Enable().Do(c); err != nil {
			return fmt.Errorf("enable DOM domain: %w", err)
		}
		if err := runtime.AddBinding(completionBinding).Do(c); err != nil {
			return fmt.Errorf("expose completion binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(interceptorScript).Do(c); err != nil {
			return fmt.Errorf("install interceptor script: %w", err)
		}
		// The current document predates the persistent script; inject now.
		_, exc, err := runtime.Evaluate(interceptorScript).Do(c)
		if err != nil {
			return fmt.Errorf("inject interceptor into current document: %w", err)
		}
		if exc != nil {
			return fmt.Errorf("interceptor script failed: %s", exc.Text)
		}
		return nil
	}))
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, err
	}

	chromedp.ListenTarget(ctx, t.listen)
	if bus != nil {
		go t.forwardAnnounces(ctx)
	}
	return t, nil
}

// Close removes scratch files. The chromedp context is not touched.
func (t *Tree) Close() error {
	return os.RemoveAll(t.tmpDir)
}

// listen feeds completion signals and coarse mutations from CDP events.
func (t *Tree) listen(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventBindingCalled:
		if e.Name != completionBinding {
			return
		}
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			t.logger.Warn("Malformed completion payload.", zap.Error(err))
			return
		}
		if t.bus != nil {
			t.bus.Publish(bridge.Signal{Name: bridge.SignalComplete, Token: payload.Token})
		}
	case *dom.EventDocumentUpdated:
		t.publishMutation("document")
	case *dom.EventChildNodeInserted:
		t.publishMutation("childList")
	case *dom.EventChildNodeRemoved:
		t.publishMutation("childList")
	}
}

// forwardAnnounces relays announce signals from the Go-side bus into the
// page as custom events, where the interceptor script picks them up.
func (t *Tree) forwardAnnounces(ctx context.Context) {
	ch, cancel := t.bus.Subscribe()
	defer cancel()
	for {
		select {
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if sig.Name != bridge.SignalAnnounce {
				continue
			}
			js := fmt.Sprintf(
				`document.dispatchEvent(new CustomEvent(%s, {detail: {url: %s}}));`,
				jsString(announceEvent), jsString(sig.Token))
			if err := chromedp.Run(t.ctx, chromedp.Evaluate(js, nil)); err != nil {
				t.logger.Warn("Could not forward announce into page.", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Tree) publishMutation(kind string) {
	t.mu.Lock()
	watchers := append([]chan uitree.Mutation(nil), t.watchers...)
	t.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- uitree.Mutation{Kind: kind}:
		default:
		}
	}
}

// Path implements uitree.Tree.
func (t *Tree) Path(ctx context.Context) (string, error) {
	var loc string
	if err := t.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	u, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("parse location %q: %w", loc, err)
	}
	return u.Path, nil
}

// Enumerate implements uitree.Tree. It takes a fresh full-depth document
// snapshot each call; the engine never trusts a stale view anyway.
func (t *Tree) Enumerate(ctx context.Context, selector string) ([]uitree.Element, error) {
	sel, err := uitree.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var root *cdp.Node
	err = t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		root, err = dom.GetDocument().WithDepth(-1).WithPierce(true).Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("snapshot document: %w", err)
	}
	linkParents(root, nil)

	var out []uitree.Element
	walkNodes(root, func(n *cdp.Node) {
		if n.NodeType != cdp.NodeTypeElement {
			return
		}
		attrs := attributeMap(n)
		if sel.Matches(n.NodeName, func(name string) string { return attrs[name] }) {
			out = append(out, newElement(t, n, attrs))
		}
	})
	return out, nil
}

// Observe implements uitree.Tree.
func (t *Tree) Observe(ctx context.Context) (<-chan uitree.Mutation, func(), error) {
	ch := make(chan uitree.Mutation, 64)
	t.mu.Lock()
	t.watchers = append(t.watchers, ch)
	t.mu.Unlock()
	stop := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, w := range t.watchers {
			if w == ch {
				t.watchers = append(t.watchers[:i], t.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, stop, nil
}

// run executes chromedp actions against the attached target, honoring the
// caller's context for cancellation.
func (t *Tree) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(t.ctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return ctx.Err()
}

func linkParents(n *cdp.Node, parent *cdp.Node) {
	n.Parent = parent
	for _, c := range n.Children {
		linkParents(c, n)
	}
	for _, s := range n.ShadowRoots {
		linkParents(s, n)
	}
	if n.ContentDocument != nil {
		linkParents(n.ContentDocument, n)
	}
}

func walkNodes(n *cdp.Node, fn func(*cdp.Node)) {
	fn(n)
	for _, c := range n.Children {
		walkNodes(c, fn)
	}
	for _, s := range n.ShadowRoots {
		walkNodes(s, fn)
	}
	if n.ContentDocument != nil {
		walkNodes(n.ContentDocument, fn)
	}
}

func attributeMap(n *cdp.Node) map[string]string {
	attrs := make(map[string]string, len(n.Attributes)/2)
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		attrs[strings.ToLower(n.Attributes[i])] = n.Attributes[i+1]
	}
	return attrs
}

// jsString renders a Go string as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// writePayloadFiles materializes payloads as scratch files for
// DOM.setFileInputFiles, which only accepts paths.
func (t *Tree) writePayloadFiles(files []uitree.FilePayload) ([]string, error) {
	paths := make([]string, 0, len(files))
	for i, f := range files {
		name := f.Filename
		if name == "" {
			name = "payload"
		}
		p := filepath.Join(t.tmpDir, strconv.Itoa(i)+"-"+filepath.Base(name))
		if err := os.WriteFile(p, f.Data, 0o600); err != nil {
			return nil, fmt.Errorf("write payload file: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
