// Package supervisor wraps github.com/thejerf/suture/v4 so both processes
// build their service tree the same way: add each long-running unit once,
// call Serve, and let suture own restart backoff and shutdown propagation.
package supervisor

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Tree is a single-level supervisor: every service added runs as a sibling,
// restarted independently on panic or error per suture's default backoff.
type Tree struct {
	sup *suture.Supervisor
}

// New builds a Tree named for the owning process, logging restarts through
// lg rather than suture's default stderr writer.
func New(name string, lg zerolog.Logger) *Tree {
	sup := suture.New(name, suture.Spec{
		EventHook: func(event suture.Event) {
			lg.Warn().Str("supervisor", name).Str("event", event.String()).Msg("supervisor event")
		},
	})
	return &Tree{sup: sup}
}

// Add registers a service to run under the tree. Must be called before Serve.
func (t *Tree) Add(svc suture.Service) {
	t.sup.Add(svc)
}

// Serve runs every added service until ctx is cancelled, restarting any
// service that returns or panics, and returns once the tree has stopped.
// Errors returned by services are reported through the event hook, not
// returned from Serve.
func (t *Tree) Serve(ctx context.Context) error {
	return t.sup.Serve(ctx)
}
