// Package notify delivers discovery notifications to configured channels.
// Channels are independent: a failure in one never affects another, and the
// caller decides how failures are reported.
package notify

import (
	"context"

	"regwatch/pkg/domain"
)

// Notifier delivers a single event notification to one channel
type Notifier interface {
	Name() string
	Send(ctx context.Context, ev domain.Event) error
}
