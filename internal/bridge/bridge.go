// Package bridge implements the cross-context completion channel for
// first-party uploads.
//
// A placeholder payload dispatched into the page is announced to a script
// running in the page's own execution context; that script substitutes the
// real asset URL into the upload request it observes and, once the request
// succeeds, broadcasts a completion signal carrying the original URL as
// correlation token. The two contexts share no memory and run as
// uncoordinated event-loop tasks, so correlation by token is the only
// reliable join point and the bridge must shrug off signals for unrelated
// tokens.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Signal names carried over the bus.
const (
	SignalAnnounce = "uplift-upload-announce"
	SignalComplete = "uplift-upload-complete"
)

// DefaultTimeout bounds how long a completion wait may block.
const DefaultTimeout = 4 * time.Second

// Signal is one broadcast message.
type Signal struct {
	Name  string
	Token string
}

// Bus is a broadcast publish/subscribe channel. Publishing never blocks; a
// subscriber that falls behind drops signals rather than stalling the
// publisher.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Signal
	next int
}

// NewBus builds an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Signal)}
}

// Publish broadcasts a signal to all current subscribers.
func (b *Bus) Publish(sig Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The cancel function unregisters it
// and closes the channel.
func (b *Bus) Subscribe() (<-chan Signal, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Signal, 32)
	b.subs[id] = ch
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Bridge turns the fire-and-forget completion broadcast into an awaitable
// call with a timeout.
type Bridge struct {
	bus    *Bus
	logger *zap.Logger
}

// New builds a Bridge over the given bus.
func New(bus *Bus, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{bus: bus, logger: logger.Named("bridge")}
}

// Bus exposes the underlying bus so transport adapters can feed it.
func (br *Bridge) Bus() *Bus { return br.bus }

// Announce broadcasts the real asset URL for the page-context script to pick
// up before the placeholder payload is dispatched.
func (br *Bridge) Announce(url string) {
	br.logger.Debug("Announcing first-party asset.", zap.String("url", url))
	br.bus.Publish(Signal{Name: SignalAnnounce, Token: url})
}

// Pending is an armed completion wait. Arm it with Expect before dispatching
// the payload, so a completion that races the dispatch is not lost.
type Pending struct {
	br     *Bridge
	token  string
	ch     <-chan Signal
	cancel func()
}

// Expect subscribes for a completion signal carrying token.
func (br *Bridge) Expect(token string) *Pending {
	ch, cancel := br.bus.Subscribe()
	return &Pending{br: br, token: token, ch: ch, cancel: cancel}
}

// Wait blocks until the expected completion arrives, the timeout elapses, or
// ctx is done. A timeout or cancellation reports false; side effects in the
// page are not rolled back.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) bool {
	defer p.cancel()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case sig, ok := <-p.ch:
			if !ok {
				return false
			}
			if sig.Name == SignalComplete && sig.Token == p.token {
				p.br.logger.Debug("Completion confirmed.", zap.String("token", p.token))
				return true
			}
			// Unrelated token; keep waiting.
		case <-timer.C:
			p.br.logger.Debug("Completion wait timed out.",
				zap.String("token", p.token), zap.Duration("timeout", timeout))
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// AwaitCompletion is the one-shot form of Expect+Wait for callers that have
// already dispatched.
func (br *Bridge) AwaitCompletion(ctx context.Context, token string, timeout time.Duration) bool {
	return br.Expect(token).Wait(ctx, timeout)
}
