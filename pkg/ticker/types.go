// Package ticker runs a callback at a fixed interval until stopped.
//
// The bot uses it for periodic hub announcements. The callback receives a
// context that is cancelled when the ticker stops, so a slow send to the hub
// is abandoned instead of delaying Stop.
//
// Example usage:
//
//	t, err := ticker.New(10*time.Minute, func(ctx context.Context) {
//	    _ = session.SendPublic("Type +help for commands")
//	}, log)
//	if err != nil {
//	    return err
//	}
//	if err := t.Start(); err != nil {
//	    return err
//	}
//	defer t.Stop()
package ticker

import "context"

// Func is the periodic callback.
type Func func(ctx context.Context)
