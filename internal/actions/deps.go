// Package actions contains the user-facing lifecycle orchestrators. Each
// orchestrator coordinates locking, broker calls, local persistence, event
// recording, and handoff to the state poller; all collaborators are injected
// through Deps.
package actions

import (
	"time"

	"maestro/internal/clock"
	"maestro/internal/config"
	"maestro/internal/events"
	"maestro/internal/jobs"
	"maestro/internal/locks"
	"maestro/internal/osb"
	"maestro/internal/store"
)

// Deps bundles the collaborators shared by every orchestrator.
type Deps struct {
	Store     *store.Store
	Broker    osb.Client
	Locker    *locks.Locker
	Events    *events.Recorder
	Config    *config.Manager
	Clock     clock.Clock
	Queue     jobs.Enqueuer
	Mitigator *Mitigator
}

// pollerDeps adapts Deps for the state-fetch tasks.
func (d Deps) pollerDeps() jobs.Deps {
	return jobs.Deps{
		Store:     d.Store,
		Broker:    d.Broker,
		Events:    d.Events,
		Config:    d.Config,
		Clock:     d.Clock,
		Enqueuer:  d.Queue,
		Mitigator: d.Mitigator,
	}
}

// firstPollAt is the scheduled time of the first last-operation poll after a
// broker responded asynchronously.
func (d Deps) firstPollAt() time.Time {
	return d.Clock.Now().Add(d.Config.Get().PollInterval())
}
