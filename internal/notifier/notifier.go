// Package notifier delivers transactional email. The core depends only on
// the Notifier interface; transport lives behind it.
package notifier

import "context"

// Notifier sends a plain-text message to a single recipient
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Func adapts a function to the Notifier interface (test helper)
type Func func(ctx context.Context, to, subject, body string) error

// Send implements Notifier
func (f Func) Send(ctx context.Context, to, subject, body string) error {
	return f(ctx, to, subject, body)
}
