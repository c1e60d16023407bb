package main

import (
	"context"
	"log/slog"
	"os"
	"syscall"
)

// Host lifecycle signals. A supervisor (session manager, systemd unit, the
// app shell embedding the daemon) sends these when it is backgrounded or
// brought back.
var (
	signalBackground os.Signal = syscall.SIGUSR1
	signalForeground os.Signal = syscall.SIGUSR2
)

// lifecycleSignals lists the signals runLifecycleMonitor understands.
func lifecycleSignals() []os.Signal {
	return []os.Signal{signalBackground, signalForeground}
}

func lifecycleEvent(sig os.Signal) (Event, bool) {
	switch sig {
	case signalBackground:
		return AppBackground{}, true
	case signalForeground:
		return AppForeground{}, true
	default:
		return nil, false
	}
}

// runLifecycleMonitor forwards lifecycle signals to the session until ctx is
// canceled or sigs is closed. Transitions are never dropped: the send blocks
// until the session takes the event.
func runLifecycleMonitor(ctx context.Context, sigs <-chan os.Signal, events chan<- Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigs:
			if !ok {
				return
			}
			ev, known := lifecycleEvent(sig)
			if !known {
				logger.Debug("ignoring signal", "signal", sig)
				continue
			}
			logger.Info("host lifecycle transition", "signal", sig, "event", lifecycleName(ev))
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func lifecycleName(ev Event) string {
	switch ev.(type) {
	case AppBackground:
		return "background"
	case AppForeground:
		return "foreground"
	default:
		return "unknown"
	}
}
