package simulate

import (
	"context"
	"log/slog"
	"sync"
)

// Alerter stands in for the buyer's blocking dialog. It logs each message
// and keeps it for inspection.
type Alerter struct {
	logger *slog.Logger

	mu       sync.Mutex
	messages []string
}

// NewAlerter returns an alerter logging to logger. A nil logger only records.
func NewAlerter(logger *slog.Logger) *Alerter {
	return &Alerter{logger: logger}
}

// Alert shows message to the buyer.
func (a *Alerter) Alert(ctx context.Context, message string) {
	a.mu.Lock()
	a.messages = append(a.messages, message)
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.InfoContext(ctx, "buyer alert", slog.String("message", message))
	}
}

// Messages returns every alert shown, oldest first.
func (a *Alerter) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

// Last returns the latest alert, or "" when none was shown.
func (a *Alerter) Last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.messages) == 0 {
		return ""
	}
	return a.messages[len(a.messages)-1]
}
