package snapshot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/inject"
	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/uitree"
)

// State is the restore coordinator's phase.
type State string

const (
	StateIdle                State = "idle"
	StateWaitingForControls  State = "waiting_for_controls"
	StateRestoringSelections State = "restoring_selections"
	StateRestoringText       State = "restoring_text"
	StateRestoringImages     State = "restoring_images"
	StateDone                State = "done"
	StateAbandoned           State = "abandoned"
)

// Injector is the slice of the injection orchestrator the coordinator
// drives. Satisfied by *inject.Orchestrator.
type Injector interface {
	Inject(ctx context.Context, sourceURL string, sel inject.Selector) bool
	View(ctx context.Context) ([]slots.Slot, error)
}

// ManualPicker receives images that failed automatic restoration so the
// user can place them by hand instead of losing them silently.
type ManualPicker interface {
	OfferManual(ctx context.Context, urls []string)
}

// RestoreConfig tunes the coordinator.
type RestoreConfig struct {
	// PollInterval separates control-existence polls while the target UI
	// finishes its own asynchronous render.
	PollInterval time.Duration
	// MaxPolls is the retry budget for WaitingForControls.
	MaxPolls int
	// PickerRetries bounds option-matching attempts inside an open picker.
	PickerRetries int
	// AddSlotSelectors locate the target UI's "add slot" affordance.
	AddSlotSelectors []string
	// OptionSelector locates options inside an open picker.
	OptionSelector string
}

func (c *RestoreConfig) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxPolls <= 0 {
		c.MaxPolls = 3
	}
	if c.PickerRetries <= 0 {
		c.PickerRetries = 3
	}
	if len(c.AddSlotSelectors) == 0 {
		c.AddSlotSelectors = []string{
			`button[aria-label*="Add"]`,
			`[data-testid*="add-slot"]`,
			`[data-testid*="add-image"]`,
		}
	}
	if c.OptionSelector == "" {
		c.OptionSelector = `[role="option"], li`
	}
}

// Coordinator replays a stored snapshot against a freshly (re)loaded UI.
// One restoration attempt walks Idle → WaitingForControls →
// RestoringSelections → RestoringText → RestoringImages → Done, bailing to
// Abandoned when the page never produces the controls it needs.
type Coordinator struct {
	tree   uitree.Tree
	store  *Store
	inj    Injector
	picker ManualPicker
	logger *zap.Logger
	cfg    RestoreConfig

	mu    sync.Mutex
	state State
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(tree uitree.Tree, store *Store, inj Injector, picker ManualPicker, logger *zap.Logger, cfg RestoreConfig) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.defaults()
	return &Coordinator{
		tree:   tree,
		store:  store,
		inj:    inj,
		picker: picker,
		logger: logger.Named("restore"),
		cfg:    cfg,
		state:  StateIdle,
	}
}

// State returns the coordinator's current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.logger.Debug("Restore state change.", zap.String("state", string(s)))
}

// Restore consumes the stored snapshot, if any, and replays it. It reports
// whether a snapshot was applied. A missing, expired, or wrong-page
// snapshot is a silent no-op, the common case on ordinary navigation.
func (c *Coordinator) Restore(ctx context.Context) bool {
	path, err := c.tree.Path(ctx)
	if err != nil {
		c.logger.Warn("Could not read page path; skipping restore.", zap.Error(err))
		return false
	}
	snap, err := c.store.LoadAndClear(ctx, path)
	if err != nil {
		c.logger.Warn("Snapshot load failed.", zap.Error(err))
		return false
	}
	if snap == nil || snap.Empty() {
		c.setState(StateIdle)
		return false
	}

	c.setState(StateWaitingForControls)
	if !c.waitForControls(ctx, snap) {
		c.setState(StateAbandoned)
		c.logger.Warn("Controls never appeared; abandoning restore.",
			zap.Int("attempts", c.cfg.MaxPolls))
		return false
	}

	c.setState(StateRestoringSelections)
	c.restoreSelection(ctx, modelSelector, snap.SelectedModel)
	c.restoreSelection(ctx, ratioSelector, snap.SelectedAspectRatio)

	c.setState(StateRestoringText)
	c.restoreText(ctx, snap)

	c.setState(StateRestoringImages)
	c.restoreImages(ctx, snap)

	c.setState(StateDone)
	c.logger.Info("Restore complete.", zap.String("path", path))
	return true
}

// waitForControls polls until the controls the snapshot needs exist. The
// target UI keeps rendering after the page script starts, so the first check
// routinely fails.
func (c *Coordinator) waitForControls(ctx context.Context, snap *PageStateSnapshot) bool {
	for attempt := 0; attempt < c.cfg.MaxPolls; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.cfg.PollInterval); err != nil {
				return false
			}
		}
		ready := true
		if len(snap.InputsByKey) > 0 {
			fields, err := c.tree.Enumerate(ctx, textFieldSelector)
			ready = err == nil && len(fields) > 0
		}
		if ready && len(snap.Images) > 0 {
			view, err := c.inj.View(ctx)
			ready = err == nil && len(view) > 0
		}
		if ready {
			return true
		}
	}
	return false
}

// restoreSelection reopens a picker and matches the captured option by
// exact visible label. With no match after the retry budget, the picker is
// closed unresolved.
func (c *Coordinator) restoreSelection(ctx context.Context, triggerSelector, want string) {
	if want == "" {
		return
	}
	trigger := c.firstVisible(ctx, triggerSelector)
	if trigger == nil {
		c.logger.Debug("Selection trigger not found.", zap.String("selector", triggerSelector))
		return
	}
	if err := trigger.Click(ctx); err != nil {
		return
	}
	for attempt := 0; attempt < c.cfg.PickerRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.cfg.PollInterval); err != nil {
				break
			}
		}
		options, err := c.tree.Enumerate(ctx, c.cfg.OptionSelector)
		if err != nil {
			continue
		}
		for _, opt := range options {
			text, err := opt.Text(ctx)
			if err != nil || strings.TrimSpace(text) != want {
				continue
			}
			if err := opt.Click(ctx); err == nil {
				c.logger.Debug("Selection restored.", zap.String("label", want))
				return
			}
		}
	}
	// No exact match: close the picker unresolved.
	_ = trigger.Click(ctx)
	c.logger.Debug("Selection label not found; picker closed unresolved.", zap.String("label", want))
}

// restoreText replays captured text, matching each live field by exact key,
// then positional fallback, then truncated-label partial match. The main
// free-text field additionally accepts an unused long value best-effort.
func (c *Coordinator) restoreText(ctx context.Context, snap *PageStateSnapshot) {
	fields, err := c.tree.Enumerate(ctx, textFieldSelector)
	if err != nil {
		c.logger.Warn("Text field enumeration failed.", zap.Error(err))
		return
	}
	used := make(map[string]bool, len(snap.InputsByKey))
	for i, f := range fields {
		key := FieldKey(f, i)
		capturedKey, ok := matchCapturedKey(key, i, snap.InputsByKey, used)
		if !ok && isMainField(f, key) {
			capturedKey, ok = unusedLongValue(snap.InputsByKey, used)
		}
		if !ok {
			continue
		}
		used[capturedKey] = true
		c.setFieldText(ctx, f, snap.InputsByKey[capturedKey])
	}
}

func matchCapturedKey(liveKey string, position int, captured map[string]string, used map[string]bool) (string, bool) {
	if _, ok := captured[liveKey]; ok && !used[liveKey] {
		return liveKey, true
	}
	positional := "field_" + strconv.Itoa(position)
	if _, ok := captured[positional]; ok && !used[positional] {
		return positional, true
	}
	// Truncated-label partial match: labels get cut off between renders.
	const minOverlap = 8
	for k := range captured {
		if used[k] {
			continue
		}
		if len(k) >= minOverlap && len(liveKey) >= minOverlap &&
			(strings.HasPrefix(k, liveKey) || strings.HasPrefix(liveKey, k)) {
			return k, true
		}
	}
	return "", false
}

// isMainField recognizes the page's main free-text field by label heuristic.
func isMainField(el uitree.Element, key string) bool {
	lk := strings.ToLower(key)
	if strings.Contains(lk, "prompt") || strings.Contains(lk, "describ") {
		return true
	}
	return el.Tag() == "textarea"
}

func unusedLongValue(captured map[string]string, used map[string]bool) (string, bool) {
	const minLongValue = 40
	for k, v := range captured {
		if !used[k] && len(v) >= minLongValue {
			return k, true
		}
	}
	return "", false
}

// setFieldText writes through the same surface the capture read from:
// text content for contenteditable elements, the value property otherwise.
func (c *Coordinator) setFieldText(ctx context.Context, el uitree.Element, text string) {
	var err error
	if el.Attr("contenteditable") != "" {
		err = el.SetText(ctx, text)
	} else {
		err = el.SetValue(ctx, text)
	}
	if err != nil {
		c.logger.Debug("Could not restore field text.", zap.Error(err))
		return
	}
	_ = el.Dispatch(ctx, uitree.EventInput)
	_ = el.Dispatch(ctx, uitree.EventChange)
}

// restoreImages adds slots if the UI exposes an add affordance and too few
// exist, then replays each image through the orchestrator sequentially,
// never in parallel, so two clear/inject cycles cannot race on the shared
// UI. Images that still fail go to the manual picker rather than being
// dropped.
func (c *Coordinator) restoreImages(ctx context.Context, snap *PageStateSnapshot) {
	if len(snap.Images) == 0 {
		return
	}
	view, err := c.inj.View(ctx)
	if err != nil {
		c.logger.Warn("Slot view failed before image restore.", zap.Error(err))
		c.offerManual(ctx, snap.Images)
		return
	}
	for missing := len(snap.Images) - len(view); missing > 0; missing-- {
		if !c.clickAddSlot(ctx) {
			break
		}
		if err := sleep(ctx, c.cfg.PollInterval); err != nil {
			return
		}
	}

	var failed []ImageRef
	for _, img := range snap.Images {
		sel := inject.ByIndexExpecting(img.SlotIndex, img.ContainerID)
		if !c.inj.Inject(ctx, img.URL, sel) {
			failed = append(failed, img)
		}
	}
	if len(failed) > 0 {
		c.offerManual(ctx, failed)
	}
}

func (c *Coordinator) clickAddSlot(ctx context.Context) bool {
	for _, sel := range c.cfg.AddSlotSelectors {
		if el := c.firstVisible(ctx, sel); el != nil {
			return el.Click(ctx) == nil
		}
	}
	return false
}

func (c *Coordinator) offerManual(ctx context.Context, imgs []ImageRef) {
	if c.picker == nil {
		return
	}
	urls := make([]string, len(imgs))
	for i, img := range imgs {
		urls[i] = img.URL
	}
	c.logger.Info("Handing images to the manual picker.", zap.Int("count", len(urls)))
	c.picker.OfferManual(ctx, urls)
}

func (c *Coordinator) firstVisible(ctx context.Context, selector string) uitree.Element {
	elems, err := c.tree.Enumerate(ctx, selector)
	if err != nil {
		return nil
	}
	for _, el := range elems {
		if visible, err := el.Visible(ctx); err == nil && visible {
			return el
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
