package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Session loop
// ============================================================================
//
// All session work happens on one goroutine:
//
//	events -> Reduce -> Commands -> runEffect -> observation Events -> Reduce
//
// Explicit queues keep execution non-reentrant: a command runs to completion
// and its observations are reduced before the next command runs. Requests from
// concurrent IPC clients are therefore serialized in arrival order.
// ============================================================================

// runDaemon runs the session until ctx is canceled or events is closed.
//
// broadcasts may be nil. Sends to it never block; observers that fall behind
// lose notifications, not the session.
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	host *engineHost,
	cfg SessionConfig,
	state *SessionState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		logger.Error("session state is nil")
		return
	}

	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bs []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bs {
			select {
			case broadcasts <- b:
			default:
				logger.Debug("broadcast channel full; dropping", "type", broadcastType(b))
			}
		}
	}

	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			logger.Debug("run command", "command", cmd.String())
			runEffect(host, cmd, logger, func(obs Event) {
				enqueueEvent(TimedEvent{Event: obs, At: time.Now()})
			})
			flushEvents()
		}
	}

	enqueueEvent(TimedEvent{Event: SessionStarted{}, At: time.Now()})
	flushEvents()
	flushCommands()

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			flushEvents()
			flushCommands()
		}
	}
}

// asyncPoster returns a notify func that delivers events to the session without
// blocking the caller. Engine callbacks and timers run on foreign goroutines and
// the session goroutine itself may be the one posting.
func asyncPoster(ctx context.Context, events chan<- Event) func(Event) {
	return func(ev Event) {
		go func() {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}()
	}
}
