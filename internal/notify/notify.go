package notify

import "context"

// Notifier delivers operator notifications. Delivery is best effort: callers
// log send failures and keep going, a broken notifier must never fail a run.
type Notifier interface {
	Send(ctx context.Context, subject, body string) error
}
