package cdptree

import (
	"context"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Toast shows transient notices inside the attached page, stacked in the
// top-right corner and removed after a few seconds. It satisfies
// notify.Notifier for live sessions where the user is watching the page,
// not the terminal.
type Toast struct {
	tree   *Tree
	logger *zap.Logger
}

// NewToast builds a Toast bound to an attached tree.
func NewToast(tree *Tree, logger *zap.Logger) *Toast {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toast{tree: tree, logger: logger.Named("toast")}
}

// Notice renders one toast. Failures fall back to the log so the message
// is never lost.
func (t *Toast) Notice(ctx context.Context, message string) {
	js := `(() => {
		let host = document.getElementById('__uplift_toasts');
		if (!host) {
			host = document.createElement('div');
			host.id = '__uplift_toasts';
			host.style.cssText = 'position:fixed;top:16px;right:16px;z-index:2147483647;display:flex;flex-direction:column;gap:8px;';
			document.documentElement.appendChild(host);
		}
		const el = document.createElement('div');
		el.textContent = ` + jsString(message) + `;
		el.style.cssText = 'background:rgba(30,30,30,.92);color:#fff;padding:10px 14px;border-radius:6px;font:13px/1.4 system-ui,sans-serif;max-width:320px;box-shadow:0 2px 8px rgba(0,0,0,.35);';
		host.appendChild(el);
		setTimeout(() => el.remove(), 5000);
		return true;
	})()`

	var ok bool
	if err := t.tree.run(ctx, chromedp.Evaluate(js, &ok)); err != nil {
		t.logger.Warn(message, zap.Error(err))
	}
}
