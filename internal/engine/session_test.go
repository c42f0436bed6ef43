package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hallgrim/uplift/internal/bridge"
	"github.com/hallgrim/uplift/internal/config"
	"github.com/hallgrim/uplift/internal/inject"
	"github.com/hallgrim/uplift/internal/notify"
	"github.com/hallgrim/uplift/internal/storage"
	"github.com/hallgrim/uplift/internal/uitree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sessionPage = `
<html><body>
  <textarea placeholder="Describe your image"></textarea>
  <div class="image-upload-slot">
    <input type="file" accept="image/*">
    <img src="">
  </div>
</body></html>`

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Restore.PollInterval = time.Millisecond
	cfg.Snapshot.CaptureInterval = 5 * time.Millisecond
	s, err := New(opts, cfg, nil)
	require.NoError(t, err)
	return s
}

func sessionTree(t *testing.T) *uitree.HTMLTree {
	t.Helper()
	tree, err := uitree.ParseHTMLTree(sessionPage, "/create/image")
	require.NoError(t, err)
	return tree
}

func TestNewRequiresTreeAndBus(t *testing.T) {
	cfg := config.NewDefaultConfig()

	_, err := New(Options{Bus: bridge.NewBus()}, cfg, nil)
	assert.Error(t, err)

	_, err = New(Options{Tree: sessionTree(t)}, cfg, nil)
	assert.Error(t, err)
}

func TestSessionViewAssignsIdentities(t *testing.T) {
	s := newSession(t, Options{Tree: sessionTree(t), Bus: bridge.NewBus()})

	view, err := s.View(context.Background())
	require.NoError(t, err)
	require.Len(t, view, 1)
	assert.Equal(t, "image-upload-slot#0", view[0].StableID)
	assert.False(t, view[0].HasContent)
}

func TestSessionCaptureThenRestoreAcrossReload(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()

	tree := sessionTree(t)
	s := newSession(t, Options{Tree: tree, Bus: bridge.NewBus(), Durable: durable})

	areas, err := tree.Enumerate(ctx, "textarea")
	require.NoError(t, err)
	require.NoError(t, areas[0].SetValue(ctx, "a lighthouse in fog"))
	require.NoError(t, s.Capture(ctx))

	// A reload produces a new tree and a new session over the same durable
	// store.
	reloaded := sessionTree(t)
	s2 := newSession(t, Options{Tree: reloaded, Bus: bridge.NewBus(), Durable: durable})

	require.True(t, s2.Restore(ctx))
	areas, err = reloaded.Enumerate(ctx, "textarea")
	require.NoError(t, err)
	v, err := areas[0].Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a lighthouse in fog", v)

	// The durable record is read-once.
	assert.False(t, newSession(t, Options{Tree: sessionTree(t), Bus: bridge.NewBus(), Durable: durable}).Restore(ctx))
}

func TestSessionCaptureSkipsEmptyPage(t *testing.T) {
	ctx := context.Background()
	durable := storage.NewMemory()
	s := newSession(t, Options{Tree: sessionTree(t), Bus: bridge.NewBus(), Durable: durable})

	require.NoError(t, s.Capture(ctx))

	_, ok, err := durable.Get(ctx, "uplift.page_state")
	require.NoError(t, err)
	assert.False(t, ok, "an empty page must not overwrite a stored snapshot")
}

func TestSessionRunStopsOnCancel(t *testing.T) {
	tree := sessionTree(t)
	s := newSession(t, Options{Tree: tree, Bus: bridge.NewBus()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Let the loop take at least one capture tick and one mutation.
	time.Sleep(20 * time.Millisecond)
	tree.Bump("childList")
	time.Sleep(5 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNoticePickerRoutesThroughNotifier(t *testing.T) {
	rec := &notify.Recorder{}
	p := noticePicker{n: rec}
	p.OfferManual(context.Background(), []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"})

	msgs := rec.Messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "https://cdn.example.com/a.png")
}

func TestSessionInjectEndToEnd(t *testing.T) {
	tree := sessionTree(t)
	s := newSession(t, Options{Tree: tree, Bus: bridge.NewBus()})

	// The slot is empty, so auto targeting picks it; the URL is first-party
	// only if configured, and the default config has no first-party hosts,
	// so this goes through the relay. Without a reachable origin the fetch
	// fails and Inject degrades to false instead of erroring.
	ok := s.Inject(context.Background(), "https://127.0.0.1:1/never.png", inject.Auto())
	assert.False(t, ok)
}
