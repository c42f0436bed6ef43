package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/slots"
	"github.com/hallgrim/uplift/internal/storage"
)

// DefaultKey is the fixed name snapshots are stored under.
const DefaultKey = "uplift.page_state"

// Store persists snapshots in a key-value store under a fixed key and
// enforces the read-once, TTL and page-type invariants on the way out.
type Store struct {
	kv     storage.KV
	key    string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewStore builds a Store over kv with the given TTL.
func NewStore(kv storage.KV, key string, ttl time.Duration, logger *zap.Logger) *Store {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, key: key, ttl: ttl, logger: logger.Named("snapstore"), now: time.Now}
}

// Save stamps the snapshot and writes it, replacing any previous record.
func (s *Store) Save(ctx context.Context, snap *PageStateSnapshot) error {
	snap.SavedAt = s.now()
	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		return err
	}
	s.logger.Debug("Snapshot saved.",
		zap.String("path", snap.Path),
		zap.Int("inputs", len(snap.InputsByKey)),
		zap.Int("images", len(snap.Images)))
	return nil
}

// LoadAndClear reads the stored snapshot and deletes it back-to-back, so a
// second call returns nil without an intervening Save. A snapshot past its
// TTL, or whose page-type classification disagrees with currentPath's, is
// discarded silently; that is the expected case on ordinary navigation, not
// an error.
func (s *Store) LoadAndClear(ctx context.Context, currentPath string) (*PageStateSnapshot, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	// Read-then-clear: the record must not be re-applied on a later reload.
	if err := s.kv.Remove(ctx, s.key); err != nil {
		return nil, err
	}

	snap, err := Unmarshal(data)
	if err != nil {
		s.logger.Debug("Discarding unreadable snapshot.", zap.Error(err))
		return nil, nil
	}
	if age := s.now().Sub(snap.SavedAt); age > s.ttl {
		s.logger.Debug("Discarding expired snapshot.",
			zap.Duration("age", age), zap.Duration("ttl", s.ttl))
		return nil, nil
	}
	if slots.Classify(snap.Path) != slots.Classify(currentPath) {
		s.logger.Debug("Discarding snapshot from a different page type.",
			zap.String("snapshot_path", snap.Path), zap.String("current_path", currentPath))
		return nil, nil
	}
	return snap, nil
}
