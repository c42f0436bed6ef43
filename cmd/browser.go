package cmd

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/hallgrim/uplift/internal/bridge"
	"github.com/hallgrim/uplift/internal/config"
	"github.com/hallgrim/uplift/internal/uitree/cdptree"
)

// browserSession bundles an attached target with its teardown.
type browserSession struct {
	Tree *cdptree.Tree
	Bus  *bridge.Bus
	// Ctx is the chromedp target context, used for navigation.
	Ctx    context.Context
	cancel []context.CancelFunc
}

// Close tears the session down in reverse construction order.
func (b *browserSession) Close() {
	if b.Tree != nil {
		b.Tree.Close()
	}
	for i := len(b.cancel) - 1; i >= 0; i-- {
		b.cancel[i]()
	}
}

// attachBrowser connects to Chrome per configuration, navigates to the
// target URL when one is set, and instruments the page.
func attachBrowser(ctx context.Context, bcfg config.BrowserConfig, logger *zap.Logger) (*browserSession, error) {
	sess := &browserSession{Bus: bridge.NewBus()}

	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if bcfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, bcfg.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", bcfg.Headless),
		)
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(ctx, opts...)
	}
	sess.cancel = append(sess.cancel, cancelAlloc)

	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		logger.Sugar().Debugf(format, args...)
	}))
	sess.cancel = append(sess.cancel, cancelTask)
	sess.Ctx = taskCtx

	if bcfg.TargetURL != "" {
		if err := chromedp.Run(taskCtx, chromedp.Navigate(bcfg.TargetURL)); err != nil {
			sess.Close()
			return nil, fmt.Errorf("navigate to %s: %w", bcfg.TargetURL, err)
		}
	} else if err := chromedp.Run(taskCtx); err != nil {
		// Force target creation even without a navigation.
		sess.Close()
		return nil, fmt.Errorf("attach browser target: %w", err)
	}

	tree, err := cdptree.Attach(taskCtx, sess.Bus, logger)
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("instrument page: %w", err)
	}
	sess.Tree = tree
	return sess, nil
}
