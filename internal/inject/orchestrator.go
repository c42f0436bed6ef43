// Package inject places image content into discovered upload slots.
//
// Every Inject call is strictly sequential inside: resolve, clear, build,
// dispatch, await. The package provides no cross-call mutual exclusion;
// callers own the obligation not to run two injections against the same slot
// concurrently (the restore coordinator awaits each image fully, the
// interactive picker disables itself while a call is outstanding).
package inject

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/bridge"
	"github.com/hallgrim/uplift/internal/notify"
	"github.com/hallgrim/uplift/internal/relay"
	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/uitree"
)

// Config tunes the orchestrator.
type Config struct {
	// SettleDelay is the pause after hover reveal and between clear steps.
	SettleDelay time.Duration
	// PostClearDelay lets the hosting framework finish its own re-render
	// after a clear.
	PostClearDelay time.Duration
	// CompletionTimeout bounds the wait for a first-party completion signal.
	CompletionTimeout time.Duration
	// FirstPartyHosts are host fragments of the target application's own
	// asset domains.
	FirstPartyHosts []string
	// DeleteSelectors is the ordered list of delete-affordance selectors
	// searched during a clear.
	DeleteSelectors []string
}

// DefaultDeleteSelectors covers the delete affordances observed in the
// target UI. Ordered most to least specific.
var DefaultDeleteSelectors = []string{
	`button[aria-label*="emove"]`,
	`button[aria-label*="elete"]`,
	`[data-testid*="delete"]`,
	`[data-testid*="remove"]`,
	`.delete-button`,
	`.remove-button`,
	`button.close`,
}

func (c *Config) defaults() {
	if c.SettleDelay <= 0 {
		c.SettleDelay = 150 * time.Millisecond
	}
	if c.PostClearDelay <= 0 {
		c.PostClearDelay = 400 * time.Millisecond
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = bridge.DefaultTimeout
	}
	if len(c.DeleteSelectors) == 0 {
		c.DeleteSelectors = DefaultDeleteSelectors
	}
}

// Orchestrator drives the inject protocol against a UI tree.
type Orchestrator struct {
	tree     uitree.Tree
	disc     *slots.Discoverer
	assignor *slots.Assignor
	bridge   *bridge.Bridge
	relay    relay.Client
	notifier notify.Notifier
	logger   *zap.Logger
	cfg      Config
}

// New builds an Orchestrator. The assignor is shared with other components
// so identities stay coherent across the whole session.
func New(tree uitree.Tree, assignor *slots.Assignor, br *bridge.Bridge, rc relay.Client, n notify.Notifier, logger *zap.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.defaults()
	return &Orchestrator{
		tree:     tree,
		disc:     slots.NewDiscoverer(tree, logger),
		assignor: assignor,
		bridge:   br,
		relay:    rc,
		notifier: n,
		logger:   logger.Named("inject"),
		cfg:      cfg,
	}
}

// View runs a fresh discovery and identity pass. Never trust a view older
// than the current call.
func (o *Orchestrator) View(ctx context.Context) ([]slots.Slot, error) {
	found, err := o.disc.Discover(ctx)
	if err != nil {
		return nil, err
	}
	view := o.assignor.Assign(found)
	// A full enumeration is the one safe moment to drop identities of
	// removed nodes; survivors keep their stable IDs.
	o.assignor.Prune(view)
	return view, nil
}

// Inject places the content behind sourceURL into the slot identified by
// sel. It reports success; any failure is caught, surfaced as a transient
// notice where the user should know, and returned as false. It never panics
// or errors past this boundary.
func (o *Orchestrator) Inject(ctx context.Context, sourceURL string, sel Selector) bool {
	log := o.logger.With(zap.String("url", sourceURL))

	view, err := o.View(ctx)
	if err != nil {
		log.Warn("Slot discovery failed.", zap.Error(err))
		o.notifier.Notice(ctx, "Could not scan the page for upload slots.")
		return false
	}
	if len(view) == 0 {
		log.Warn("No upload slots found.")
		o.notifier.Notice(ctx, "No upload slot available on this page.")
		return false
	}

	target, mismatch, err := resolve(sel, view)
	if err != nil {
		log.Warn("Slot resolution failed.", zap.Error(err))
		o.notifier.Notice(ctx, "Could not locate the requested upload slot.")
		return false
	}
	if mismatch {
		log.Warn("Slot identity mismatch; proceeding with index match.",
			zap.String("expected", sel.ExpectedStableID),
			zap.String("resolved", target.StableID))
	}
	log = log.With(zap.String("stable_id", target.StableID))

	if target.HasContent {
		if err := o.clear(ctx, target); err != nil {
			log.Warn("Clear protocol failed.", zap.Error(err))
			return false
		}
	}

	firstParty := o.isFirstPartyAsset(sourceURL)
	var payload uitree.FilePayload
	if firstParty {
		payload = buildPlaceholder(sourceURL)
	} else {
		payload, err = o.buildFetched(ctx, sourceURL)
		if err != nil {
			log.Warn("Payload fetch failed.", zap.Error(err))
			o.notifier.Notice(ctx, "Could not fetch the image for upload.")
			return false
		}
	}

	// Arm the completion wait and announce before dispatching, so a fast
	// completion cannot slip between dispatch and subscribe.
	var pending *bridge.Pending
	if firstParty {
		pending = o.bridge.Expect(sourceURL)
		o.bridge.Announce(sourceURL)
	}

	if err := target.Handle.SetFiles(ctx, []uitree.FilePayload{payload}); err != nil {
		log.Warn("Payload dispatch failed.", zap.Error(err))
		o.notifier.Notice(ctx, "Could not place the image into the upload slot.")
		return false
	}
	if err := target.Handle.Dispatch(ctx, uitree.EventChange); err != nil {
		log.Warn("Change notification failed.", zap.Error(err))
		return false
	}

	if firstParty {
		if !pending.Wait(ctx, o.cfg.CompletionTimeout) {
			// Best-effort failure: the visual state may have changed even
			// though completion was never confirmed.
			log.Warn("Upload completion not confirmed before timeout.")
			o.notifier.Notice(ctx, "Upload confirmation timed out.")
			return false
		}
	}

	log.Info("Injection complete.", zap.Bool("first_party", firstParty))
	return true
}

// resolve maps a Selector onto one slot of the freshest view. With an
// expected identity that disagrees with the index match, an exact identity
// match elsewhere wins; otherwise the index match proceeds and the mismatch
// is reported for logging.
func resolve(sel Selector, view []slots.Slot) (slots.Slot, bool, error) {
	switch sel.Mode {
	case ModeHandle:
		for _, s := range view {
			if s.Handle.Key() == sel.Handle.Key() {
				return s, false, nil
			}
		}
		return slots.Slot{}, false, fmt.Errorf("handle %d not in current view", sel.Handle.Key())

	case ModeStableID:
		for _, s := range view {
			if s.StableID == sel.StableID {
				return s, false, nil
			}
		}
		return slots.Slot{}, false, fmt.Errorf("stable id %q not in current view", sel.StableID)

	case ModeIndex:
		if sel.Index < 0 || sel.Index >= len(view) {
			return slots.Slot{}, false, fmt.Errorf("slot index %d out of range (%d slots)", sel.Index, len(view))
		}
		byIndex := view[sel.Index]
		if sel.ExpectedStableID == "" || byIndex.StableID == sel.ExpectedStableID {
			return byIndex, false, nil
		}
		for _, s := range view {
			if s.StableID == sel.ExpectedStableID {
				return s, false, nil
			}
		}
		return byIndex, true, nil

	default: // ModeAuto
		for _, s := range view {
			if !s.HasContent {
				return s, false, nil
			}
		}
		return view[0], false, nil
	}
}

// clear empties an occupied slot: reveal hover-gated affordances, settle,
// search the ordered delete-affordance selectors across the slot's ancestor
// siblings, and click the first visible hit. With no affordance found, the
// preview and file value are blanked manually instead; that path never
// escalates.
func (o *Orchestrator) clear(ctx context.Context, target slots.Slot) error {
	container := target.Handle.Parent()
	if container != nil {
		_ = container.Hover(ctx)
	}
	_ = target.Handle.Hover(ctx)
	if err := o.sleep(ctx, o.cfg.SettleDelay); err != nil {
		return err
	}

	if affordance := o.findDeleteAffordance(ctx, target); affordance != nil {
		if err := affordance.Click(ctx); err != nil {
			return fmt.Errorf("click delete affordance: %w", err)
		}
	} else {
		o.logger.Debug("No delete affordance found; blanking manually.",
			zap.String("stable_id", target.StableID))
		if container != nil {
			for _, img := range container.Query("img") {
				_ = img.SetAttr(ctx, "src", "")
			}
		}
		if err := target.Handle.SetValue(ctx, ""); err != nil {
			return fmt.Errorf("blank file value: %w", err)
		}
		_ = target.Handle.Dispatch(ctx, uitree.EventChange)
	}

	return o.sleep(ctx, o.cfg.PostClearDelay)
}

// findDeleteAffordance walks outward from the slot wrapper. The delete
// control is frequently rendered as a sibling of the wrapper, not a
// descendant, so each ancestor level is searched in full.
func (o *Orchestrator) findDeleteAffordance(ctx context.Context, target slots.Slot) uitree.Element {
	const maxAncestorLevels = 4
	scope := target.Handle.Parent()
	for level := 0; scope != nil && level < maxAncestorLevels; level++ {
		for _, sel := range o.cfg.DeleteSelectors {
			for _, cand := range scope.Query(sel) {
				if visible, err := cand.Visible(ctx); err == nil && visible {
					return cand
				}
			}
		}
		scope = scope.Parent()
	}
	return nil
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
