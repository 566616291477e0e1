package identity

import "context"

// Restorer is implemented by providers that can bring back a persisted user at
// start-up. Restore must run before the first Subscribe so the restored user is
// delivered as the initial notification.
type Restorer interface {
	Restore(ctx context.Context) error
}
