// Package notify delivers user-visible transient notices. The engine never
// throws across its boundary; failures that the user should know about come
// through here instead.
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Notifier shows a transient notice to the user.
type Notifier interface {
	Notice(ctx context.Context, message string)
}

// LogNotifier surfaces notices through the structured log, the default in
// headless runs.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notice")}
}

// Notice implements Notifier.
func (n *LogNotifier) Notice(_ context.Context, message string) {
	n.logger.Warn(message)
}

// Recorder captures notices for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

// Notice implements Notifier.
func (r *Recorder) Notice(_ context.Context, message string) {
	r.mu.Lock()
	r.messages = append(r.messages, message)
	r.mu.Unlock()
}

// Messages returns everything recorded so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
