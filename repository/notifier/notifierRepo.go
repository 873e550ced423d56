// Package notifierrepo is the fire-and-forget notification capability.
// Failures never propagate into lifecycle transactions; callers log and move on.
package notifierrepo

import "context"

type Repo interface {
	Notify(ctx context.Context, text string) error
}

type noop struct{}

// NewNoop is used when no bot token is configured.
func NewNoop() Repo { return noop{} }

func (noop) Notify(context.Context, string) error { return nil }
