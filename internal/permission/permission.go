// Package permission answers whether the process may use the microphone.
package permission

import (
	"context"
	"log/slog"
)

// Provider answers a microphone permission request by calling done exactly
// once, possibly from another goroutine.
type Provider interface {
	RequestPermission(ctx context.Context, done func(granted bool))
}

// Func adapts a plain function to Provider.
type Func func(ctx context.Context, done func(granted bool))

func (f Func) RequestPermission(ctx context.Context, done func(granted bool)) { f(ctx, done) }

// Static always gives the same answer.
type Static bool

func (s Static) RequestPermission(_ context.Context, done func(granted bool)) { done(bool(s)) }

// SourceLister enumerates capture sources on the host.
type SourceLister interface {
	ListSources(ctx context.Context) ([]string, error)
}

// Sources grants access when the host exposes at least one capture source.
// Desktop sound servers have no consent prompt, so a reachable source is
// the closest thing to a grant.
type Sources struct {
	Lister SourceLister
}

func (s Sources) RequestPermission(ctx context.Context, done func(granted bool)) {
	go func() {
		sources, err := s.Lister.ListSources(ctx)
		if err != nil {
			slog.Warn("Could not list capture sources", "error", err)
			done(false)
			return
		}
		done(len(sources) > 0)
	}()
}
