// Package engine assembles the slot engine for one attached page: discovery,
// identity, injection, capture and restore, glued to a uitree and two
// snapshot stores.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/bridge"
	"github.com/hallgrim/uplift/internal/config"
	"github.com/hallgrim/uplift/internal/inject"
	"github.com/hallgrim/uplift/internal/notify"
	"github.com/hallgrim/uplift/internal/relay"
	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/snapshot"
	"github.com/hallgrim/uplift/internal/storage"
	"github.com/hallgrim/uplift/internal/uitree"
)

const (
	sessionKey = "uplift.page_state.session"
	durableKey = snapshot.DefaultKey
)

// Session owns the per-page engine state. All operations on a Session are
// strictly sequential; nothing here is safe for concurrent callers.
type Session struct {
	tree     uitree.Tree
	assignor *slots.Assignor
	bridge   *bridge.Bridge
	relay    *relay.Relay
	orch     *inject.Orchestrator
	capturer *snapshot.Capturer

	sessionStore *snapshot.Store
	durableStore *snapshot.Store
	coordinator  *snapshot.Coordinator

	captureInterval time.Duration
	logger          *zap.Logger
}

// Options carries the externally owned pieces a Session wires together.
type Options struct {
	Tree uitree.Tree
	// Bus is the completion-signal bus the tree feeds. Required.
	Bus *bridge.Bus
	// Durable is the store that survives reloads. Nil falls back to an
	// in-memory store, which makes restore-after-reload a no-op.
	Durable storage.KV
	// Notifier surfaces user-facing notices. Nil logs them.
	Notifier notify.Notifier
	// Picker receives images that could not be restored automatically.
	// Nil falls back to notices through Notifier.
	Picker snapshot.ManualPicker
}

// New wires a Session from configuration.
func New(opts Options, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	if opts.Tree == nil || opts.Bus == nil {
		return nil, fmt.Errorf("engine: tree and bus are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLogNotifier(logger)
	}
	if opts.Durable == nil {
		opts.Durable = storage.NewMemory()
	}
	if opts.Picker == nil {
		opts.Picker = noticePicker{n: opts.Notifier}
	}

	s := &Session{
		tree:            opts.Tree,
		assignor:        slots.NewAssignor(logger),
		bridge:          bridge.New(opts.Bus, logger),
		captureInterval: cfg.Snapshot.CaptureInterval,
		logger:          logger.Named("engine"),
	}

	s.relay = relay.New(logger,
		relay.WithRateLimit(cfg.Relay.RatePerSecond),
		relay.WithMaxBodySize(cfg.Relay.MaxBodyBytes),
	)

	s.orch = inject.New(s.tree, s.assignor, s.bridge, s.relay, opts.Notifier, logger, inject.Config{
		SettleDelay:       cfg.Engine.SettleDelay,
		PostClearDelay:    cfg.Engine.PostClearDelay,
		CompletionTimeout: cfg.Engine.CompletionTimeout,
		FirstPartyHosts:   cfg.Engine.FirstPartyHosts,
		DeleteSelectors:   cfg.Engine.DeleteSelectors,
	})

	s.capturer = snapshot.NewCapturer(s.tree, s.assignor, logger)
	s.sessionStore = snapshot.NewStore(storage.NewMemory(), sessionKey, snapshot.SessionTTL, logger)
	s.durableStore = snapshot.NewStore(opts.Durable, durableKey, snapshot.DurableTTL, logger)
	s.coordinator = snapshot.NewCoordinator(s.tree, s.durableStore, s.orch, opts.Picker, logger, snapshot.RestoreConfig{
		PollInterval:  cfg.Restore.PollInterval,
		MaxPolls:      cfg.Restore.MaxPolls,
		PickerRetries: cfg.Restore.PickerRetries,
	})
	return s, nil
}

// Orchestrator exposes the injection boundary.
func (s *Session) Orchestrator() *inject.Orchestrator { return s.orch }

// Inject runs one injection. The boolean is the only outcome callers get.
func (s *Session) Inject(ctx context.Context, sourceURL string, sel inject.Selector) bool {
	return s.orch.Inject(ctx, sourceURL, sel)
}

// View reports the current slot view.
func (s *Session) View(ctx context.Context) ([]slots.Slot, error) {
	return s.orch.View(ctx)
}

// Capture takes a snapshot of the page and writes it to both stores.
func (s *Session) Capture(ctx context.Context) error {
	snap, err := s.capturer.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	if snap.Empty() {
		return nil
	}
	if err := s.sessionStore.Save(ctx, snap); err != nil {
		return err
	}
	return s.durableStore.Save(ctx, snap)
}

// Restore replays the durable snapshot, if one is still fresh and matches
// the current page type.
func (s *Session) Restore(ctx context.Context) bool {
	return s.coordinator.Restore(ctx)
}

// Run attaches the session loop: an initial restore attempt, then periodic
// capture, with coarse DOM mutations invalidating dead slot identities.
// Blocks until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.Restore(ctx)

	mutations, stop, err := s.tree.Observe(ctx)
	if err != nil {
		s.logger.Warn("Mutation observation unavailable", zap.Error(err))
		mutations = nil
	} else {
		defer stop()
	}

	interval := s.captureInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Capture(ctx); err != nil {
				s.logger.Debug("Periodic capture skipped", zap.Error(err))
			}
		case _, ok := <-mutations:
			if !ok {
				mutations = nil
				continue
			}
			s.pruneIdentities(ctx)
		}
	}
}

// pruneIdentities refreshes the slot view so identities of removed nodes
// are dropped while surviving nodes keep their stable IDs.
func (s *Session) pruneIdentities(ctx context.Context) {
	view, err := s.orch.View(ctx)
	if err != nil {
		s.logger.Debug("Identity prune skipped", zap.Error(err))
		return
	}
	s.logger.Debug("Slot view refreshed after mutation", zap.Int("slots", len(view)))
}

// noticePicker routes manually recoverable images through the notifier.
type noticePicker struct {
	n notify.Notifier
}

func (p noticePicker) OfferManual(ctx context.Context, urls []string) {
	for _, u := range urls {
		p.n.Notice(ctx, "image could not be restored automatically: "+u)
	}
}
